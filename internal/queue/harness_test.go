package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/OneClickTag/tracksync/internal/core/domain"
	"github.com/OneClickTag/tracksync/internal/infra/storage/memory"
)

// =============================================================================
// Test doubles
// =============================================================================

type capturingBroadcaster struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
}

func (b *capturingBroadcaster) Publish(ctx context.Context, event domain.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *capturingBroadcaster) byType(eventType domain.EventType) []domain.ProgressEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var res []domain.ProgressEvent
	for _, e := range b.events {
		if e.EventType == eventType {
			res = append(res, e)
		}
	}
	return res
}

type fakeExecutor struct {
	mu    sync.Mutex
	fn    func(ctx context.Context, tr *domain.Tracking) error
	calls int
}

func (e *fakeExecutor) Execute(ctx context.Context, tr *domain.Tracking) error {
	e.mu.Lock()
	e.calls++
	fn := e.fn
	e.mu.Unlock()
	if fn != nil {
		return fn(ctx, tr)
	}
	return nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// =============================================================================
// Harness
// =============================================================================

type harness struct {
	store   *memory.MemoryStorage
	events  *capturingBroadcaster
	clock   *fakeClock
	ads     *fakeExecutor
	tags    *fakeExecutor
	handler *ErrorHandler
	proc    *Processor
	driver  *Driver
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:  memory.NewMemoryStorage(),
		events: &capturingBroadcaster{},
		clock:  &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		ads:    &fakeExecutor{},
		tags:   &fakeExecutor{},
	}

	log := slog.Default()
	h.handler = NewErrorHandler(h.store, h.events, log)
	h.handler.now = h.clock.Now
	h.proc = NewProcessor(h.store, h.ads, h.tags, h.events, h.handler, log)
	h.proc.now = h.clock.Now
	h.driver = NewDriver(h.store, h.proc, h.handler, h.events, log)
	h.driver.now = h.clock.Now

	h.useWorkingExecutors()
	return h
}

// useWorkingExecutors installs executors that behave like successful syncs:
// they persist the artifacts the verification step checks for.
func (h *harness) useWorkingExecutors() {
	h.ads.fn = func(ctx context.Context, tr *domain.Tracking) error {
		if !tr.HasDestination(domain.DestinationAds) {
			return nil
		}
		tr.ConversionActionID = "ca-" + tr.ID
		tr.ConversionLabel = "label-" + tr.ID
		return h.store.Trackings().SetAdsArtifacts(ctx, tr.ID, tr.ConversionActionID, tr.ConversionLabel)
	}
	h.tags.fn = func(ctx context.Context, tr *domain.Tracking) error {
		adsTagID := ""
		if tr.HasDestination(domain.DestinationAds) {
			adsTagID = "adstag-" + tr.ID
		}
		tr.WorkspaceID = "ws-1"
		tr.TriggerID = "trig-" + tr.ID
		tr.TagID = "tag-" + tr.ID
		tr.AdsTagID = adsTagID
		return h.store.Trackings().SetTagManagerArtifacts(ctx, tr.ID, "ws-1", tr.TriggerID, tr.TagID, adsTagID)
	}
}

// seedBatch creates n trackings and a batch with one job each.
func (h *harness) seedBatch(t *testing.T, n int, destinations ...domain.Destination) (*domain.Batch, []*domain.Job) {
	t.Helper()
	if len(destinations) == 0 {
		destinations = []domain.Destination{domain.DestinationTagManager}
	}

	trackingIDs := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("trk-%d", i)
		h.store.AddTracking(&domain.Tracking{
			ID:           id,
			TenantID:     "tenant-1",
			CustomerID:   "cust-1",
			Name:         fmt.Sprintf("Tracking %d", i),
			Destinations: destinations,
			Status:       domain.TrackingStatusCreating,
		})
		trackingIDs = append(trackingIDs, id)
	}

	batch, jobs := NewBatch("cust-1", "tenant-1", "user-1", trackingIDs, h.clock.Now())
	if err := h.store.CreateBatch(context.Background(), batch, jobs); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	return batch, jobs
}

// claim claims the batch's next job or fails the test.
func (h *harness) claim(t *testing.T, batchID string) *domain.Job {
	t.Helper()
	job, err := h.store.Jobs().ClaimNext(context.Background(), batchID, h.clock.Now())
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if job == nil {
		t.Fatal("expected a claimable job, got none")
	}
	return job
}

func (h *harness) job(t *testing.T, id string) *domain.Job {
	t.Helper()
	job, err := h.store.Jobs().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	return job
}

func (h *harness) batch(t *testing.T, id string) *domain.Batch {
	t.Helper()
	batch, err := h.store.Batches().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	return batch
}
