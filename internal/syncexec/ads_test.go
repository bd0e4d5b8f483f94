package syncexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/OneClickTag/tracksync/internal/core/domain"
	"github.com/OneClickTag/tracksync/internal/infra/storage/memory"
)

// =============================================================================
// Mock Ads Client
// =============================================================================

type mockAdsClient struct {
	actions      []ConversionAction
	createCalls  int
	listErr      error
	createErr    error
	pendingLabel bool // newly created actions have no label yet
}

func (c *mockAdsClient) ListConversionActions(ctx context.Context, customerID string) ([]ConversionAction, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.actions, nil
}

func (c *mockAdsClient) CreateConversionAction(ctx context.Context, customerID, name string) (*ConversionAction, error) {
	if c.createErr != nil {
		return nil, c.createErr
	}
	c.createCalls++
	action := ConversionAction{
		ID:    fmt.Sprintf("ca-%d", c.createCalls),
		Name:  name,
		Label: fmt.Sprintf("label-%d", c.createCalls),
	}
	if c.pendingLabel {
		action.Label = ""
	}
	c.actions = append(c.actions, action)
	return &action, nil
}

func newAdsFixture(t *testing.T, destinations ...domain.Destination) (*memory.MemoryStorage, *domain.Tracking) {
	t.Helper()
	store := memory.NewMemoryStorage()
	tr := &domain.Tracking{
		ID:           "trk-1",
		TenantID:     "tenant-1",
		CustomerID:   "cust-1",
		Name:         "Signup",
		Destinations: destinations,
		Status:       domain.TrackingStatusCreating,
	}
	store.AddTracking(tr)
	return store, tr
}

// =============================================================================
// Tests
// =============================================================================

func TestAdsSync_CreatesConversionAction(t *testing.T) {
	store, tr := newAdsFixture(t, domain.DestinationTagManager, domain.DestinationAds)
	client := &mockAdsClient{}
	exec := NewAdsSync(client, store.Trackings(), slog.Default())

	if err := exec.Execute(context.Background(), tr); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if client.createCalls != 1 {
		t.Errorf("expected 1 create call, got %d", client.createCalls)
	}
	if tr.ConversionActionID != "ca-1" || tr.ConversionLabel != "label-1" {
		t.Errorf("artifacts not applied to tracking: %+v", tr)
	}

	persisted, err := store.Trackings().GetByID(context.Background(), tr.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if persisted.ConversionLabel != "label-1" {
		t.Errorf("expected persisted label label-1, got %q", persisted.ConversionLabel)
	}
}

func TestAdsSync_Idempotent(t *testing.T) {
	store, tr := newAdsFixture(t, domain.DestinationAds)
	client := &mockAdsClient{}
	exec := NewAdsSync(client, store.Trackings(), slog.Default())
	ctx := context.Background()

	if err := exec.Execute(ctx, tr); err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}
	if err := exec.Execute(ctx, tr); err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}

	if client.createCalls != 1 {
		t.Errorf("expected no duplicate create, got %d calls", client.createCalls)
	}
}

func TestAdsSync_ReusesExistingAction(t *testing.T) {
	store, tr := newAdsFixture(t, domain.DestinationAds)
	// Remote action exists from a previous attempt whose local write was lost.
	client := &mockAdsClient{actions: []ConversionAction{
		{ID: "ca-old", Name: conversionActionName(tr), Label: "label-old"},
	}}
	exec := NewAdsSync(client, store.Trackings(), slog.Default())

	if err := exec.Execute(context.Background(), tr); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if client.createCalls != 0 {
		t.Errorf("expected reuse, got %d create calls", client.createCalls)
	}
	if tr.ConversionActionID != "ca-old" {
		t.Errorf("expected ca-old, got %s", tr.ConversionActionID)
	}
}

func TestAdsSync_SkipsWithoutAdsDestination(t *testing.T) {
	store, tr := newAdsFixture(t, domain.DestinationTagManager)
	client := &mockAdsClient{}
	exec := NewAdsSync(client, store.Trackings(), slog.Default())

	if err := exec.Execute(context.Background(), tr); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if client.createCalls != 0 {
		t.Errorf("expected no remote calls, got %d creates", client.createCalls)
	}
}

func TestAdsSync_PendingLabelIsRetryable(t *testing.T) {
	store, tr := newAdsFixture(t, domain.DestinationAds)
	client := &mockAdsClient{pendingLabel: true}
	exec := NewAdsSync(client, store.Trackings(), slog.Default())

	err := exec.Execute(context.Background(), tr)
	if err == nil {
		t.Fatal("expected error for missing label")
	}
	if !strings.Contains(err.Error(), "retry should resolve this") {
		t.Errorf("expected retryable marker in error, got: %v", err)
	}
	if tr.ConversionLabel != "" {
		t.Errorf("label must not be applied: %q", tr.ConversionLabel)
	}
}

func TestAdsSync_PropagatesClientError(t *testing.T) {
	store, tr := newAdsFixture(t, domain.DestinationAds)
	client := &mockAdsClient{listErr: errors.New("429 too many requests")}
	exec := NewAdsSync(client, store.Trackings(), slog.Default())

	err := exec.Execute(context.Background(), tr)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected wrapped client error, got: %v", err)
	}
}
