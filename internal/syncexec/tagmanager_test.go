package syncexec

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/OneClickTag/tracksync/internal/core/domain"
	"github.com/OneClickTag/tracksync/internal/infra/storage/memory"
)

// =============================================================================
// Mock Tag Manager Client
// =============================================================================

type mockTagManagerClient struct {
	triggers       []Entity
	tags           []Entity
	tagSpecs       []TagSpec
	triggerCreates int
	tagCreates     int
	workspaces     int
}

func (c *mockTagManagerClient) EnsureWorkspace(ctx context.Context, tenantID string) (string, error) {
	c.workspaces++
	return "ws-1", nil
}

func (c *mockTagManagerClient) ListTriggers(ctx context.Context, workspaceID string) ([]Entity, error) {
	return c.triggers, nil
}

func (c *mockTagManagerClient) CreateTrigger(ctx context.Context, workspaceID, name string) (*Entity, error) {
	c.triggerCreates++
	e := Entity{ID: fmt.Sprintf("trig-%d", c.triggerCreates), Name: name}
	c.triggers = append(c.triggers, e)
	return &e, nil
}

func (c *mockTagManagerClient) ListTags(ctx context.Context, workspaceID string) ([]Entity, error) {
	return c.tags, nil
}

func (c *mockTagManagerClient) CreateTag(ctx context.Context, workspaceID string, spec TagSpec) (*Entity, error) {
	c.tagCreates++
	e := Entity{ID: fmt.Sprintf("tag-%d", c.tagCreates), Name: spec.Name}
	c.tags = append(c.tags, e)
	c.tagSpecs = append(c.tagSpecs, spec)
	return &e, nil
}

func newTagManagerFixture(t *testing.T, destinations ...domain.Destination) (*memory.MemoryStorage, *domain.Tracking) {
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

func TestTagManagerSync_CreatesTriggerAndTag(t *testing.T) {
	store, tr := newTagManagerFixture(t, domain.DestinationTagManager)
	client := &mockTagManagerClient{}
	exec := NewTagManagerSync(client, store.Trackings(), slog.Default())

	if err := exec.Execute(context.Background(), tr); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if tr.WorkspaceID != "ws-1" {
		t.Errorf("expected workspace ws-1, got %s", tr.WorkspaceID)
	}
	if tr.TriggerID == "" || tr.TagID == "" {
		t.Errorf("expected trigger and tag ids, got %+v", tr)
	}
	if tr.AdsTagID != "" {
		t.Errorf("no ads destination, ads tag must be empty: %s", tr.AdsTagID)
	}
	if client.tagCreates != 1 || client.triggerCreates != 1 {
		t.Errorf("expected 1 trigger + 1 tag create, got %d/%d",
			client.triggerCreates, client.tagCreates)
	}
}

func TestTagManagerSync_ConsumesConversionLabel(t *testing.T) {
	store, tr := newTagManagerFixture(t, domain.DestinationTagManager, domain.DestinationAds)
	tr.ConversionLabel = "label-1" // produced by the ads sync
	client := &mockTagManagerClient{}
	exec := NewTagManagerSync(client, store.Trackings(), slog.Default())

	if err := exec.Execute(context.Background(), tr); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if client.tagCreates != 2 {
		t.Fatalf("expected event + conversion tags, got %d creates", client.tagCreates)
	}
	var conversionSpec *TagSpec
	for i := range client.tagSpecs {
		if client.tagSpecs[i].Type == TagTypeAdsConversion {
			conversionSpec = &client.tagSpecs[i]
		}
	}
	if conversionSpec == nil {
		t.Fatal("no ads conversion tag was created")
	}
	if conversionSpec.ConversionLabel != "label-1" {
		t.Errorf("expected conversion label label-1, got %q", conversionSpec.ConversionLabel)
	}
	if tr.AdsTagID == "" {
		t.Error("ads tag id not recorded on tracking")
	}
}

func TestTagManagerSync_MissingLabelFails(t *testing.T) {
	store, tr := newTagManagerFixture(t, domain.DestinationAds)
	exec := NewTagManagerSync(&mockTagManagerClient{}, store.Trackings(), slog.Default())

	err := exec.Execute(context.Background(), tr)
	if err == nil {
		t.Fatal("expected error when conversion label is missing")
	}
	if !strings.Contains(err.Error(), "retry should resolve this") {
		t.Errorf("expected retryable marker, got: %v", err)
	}
}

func TestTagManagerSync_Idempotent(t *testing.T) {
	store, tr := newTagManagerFixture(t, domain.DestinationTagManager, domain.DestinationAds)
	tr.ConversionLabel = "label-1"
	client := &mockTagManagerClient{}
	exec := NewTagManagerSync(client, store.Trackings(), slog.Default())
	ctx := context.Background()

	if err := exec.Execute(ctx, tr); err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}
	triggerCreates, tagCreates := client.triggerCreates, client.tagCreates

	if err := exec.Execute(ctx, tr); err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}

	if client.triggerCreates != triggerCreates || client.tagCreates != tagCreates {
		t.Errorf("second run created duplicates: triggers %d->%d tags %d->%d",
			triggerCreates, client.triggerCreates, tagCreates, client.tagCreates)
	}
}
