package memory

import (
	"context"
	"sync"
	"time"

	"github.com/OneClickTag/tracksync/internal/core/domain"
	"github.com/OneClickTag/tracksync/internal/infra/storage"
)

// MemoryStorage is an in-memory Store used for tests and DB-less local runs.
type MemoryStorage struct {
	mu       sync.RWMutex
	txMu     sync.Mutex
	jobs     map[string]*domain.Job
	jobOrder []string
	batches  map[string]*domain.Batch
	tracks   map[string]*domain.Tracking
	recs     map[string]domain.RecommendationStatus
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		jobs:    make(map[string]*domain.Job),
		batches: make(map[string]*domain.Batch),
		tracks:  make(map[string]*domain.Tracking),
		recs:    make(map[string]domain.RecommendationStatus),
	}
}

func (s *MemoryStorage) Jobs() storage.JobRepository            { return &JobRepo{store: s} }
func (s *MemoryStorage) Batches() storage.BatchRepository       { return &BatchRepo{store: s} }
func (s *MemoryStorage) Trackings() storage.TrackingRepository  { return &TrackingRepo{store: s} }
func (s *MemoryStorage) Recommendations() storage.RecommendationRepository {
	return &RecommendationRepo{store: s}
}

// WithinTx serializes transaction groups behind a dedicated mutex. The
// individual operations are already atomic under the store lock; serializing
// the groups keeps interleavings equivalent to the SQL transaction semantics.
func (s *MemoryStorage) WithinTx(ctx context.Context, fn func(storage.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(s)
}

func (s *MemoryStorage) Health(ctx context.Context) error { return nil }

// CreateBatch inserts the batch and its jobs under one lock acquisition.
func (s *MemoryStorage) CreateBatch(ctx context.Context, batch *domain.Batch, jobs []*domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := *batch
	s.batches[b.ID] = &b
	for _, job := range jobs {
		j := *job
		s.jobs[j.ID] = &j
		s.jobOrder = append(s.jobOrder, j.ID)
	}
	return nil
}

// AddTracking seeds a tracking record. Test helper; the real intake lives in
// the surrounding application.
func (s *MemoryStorage) AddTracking(tr *domain.Tracking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tr
	s.tracks[cp.ID] = &cp
	if _, ok := s.recs[cp.ID]; !ok {
		s.recs[cp.ID] = domain.RecommendationStatusPending
	}
}

// RecommendationStatus returns the recommendation state for a tracking.
func (s *MemoryStorage) RecommendationStatus(trackingID string) domain.RecommendationStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recs[trackingID]
}

// -----------------------------------------------------------------------------
// Job Repository
// -----------------------------------------------------------------------------

type JobRepo struct {
	store *MemoryStorage
}

func (r *JobRepo) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	j, ok := r.store.jobs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *JobRepo) ListByBatch(ctx context.Context, batchID string) ([]*domain.Job, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var res []*domain.Job
	for _, id := range r.store.jobOrder {
		j := r.store.jobs[id]
		if j != nil && j.BatchID == batchID {
			cp := *j
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (r *JobRepo) ClaimNext(ctx context.Context, batchID string, now time.Time) (*domain.Job, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, j := range r.store.jobs {
		if j.BatchID == batchID && j.Status == domain.JobStatusProcessing {
			return nil, nil // single-flight per batch
		}
	}

	for _, id := range r.store.jobOrder {
		j := r.store.jobs[id]
		if j == nil || j.BatchID != batchID {
			continue
		}
		runnable := false
		switch j.Status {
		case domain.JobStatusQueued:
			runnable = j.NextRetryAt == nil || !j.NextRetryAt.After(now)
		case domain.JobStatusRetrying:
			runnable = j.NextRetryAt != nil && !j.NextRetryAt.After(now)
		}
		if !runnable {
			continue
		}

		j.Status = domain.JobStatusProcessing
		started := now
		j.StartedAt = &started
		j.NextRetryAt = nil
		j.Attempts++
		cp := *j
		return &cp, nil
	}
	return nil, nil
}

func (r *JobRepo) ListStuckExhausted(ctx context.Context, olderThan time.Time) ([]*domain.Job, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var res []*domain.Job
	for _, id := range r.store.jobOrder {
		j := r.store.jobs[id]
		if j != nil && j.Status == domain.JobStatusProcessing &&
			j.StartedAt != nil && j.StartedAt.Before(olderThan) &&
			j.Attempts >= j.MaxAttempts {
			cp := *j
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (r *JobRepo) ResetStuck(ctx context.Context, olderThan time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for _, j := range r.store.jobs {
		if j.Status == domain.JobStatusProcessing && j.StartedAt != nil &&
			j.StartedAt.Before(olderThan) && j.Attempts < j.MaxAttempts {
			j.Status = domain.JobStatusQueued
			j.StartedAt = nil
			n++
		}
	}
	return n, nil
}

func (r *JobRepo) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	return r.transition(id, domain.JobStatusProcessing, func(j *domain.Job) {
		j.Status = domain.JobStatusCompleted
		done := at
		j.CompletedAt = &done
		j.LastError = ""
		j.ErrorCode = ""
	})
}

func (r *JobRepo) MarkRetrying(ctx context.Context, id, errMsg string, code domain.ErrorClass, nextRetryAt time.Time) error {
	return r.transition(id, domain.JobStatusProcessing, func(j *domain.Job) {
		j.Status = domain.JobStatusRetrying
		j.LastError = errMsg
		j.ErrorCode = code
		next := nextRetryAt
		j.NextRetryAt = &next
		j.StartedAt = nil
	})
}

func (r *JobRepo) MarkFailed(ctx context.Context, id, errMsg string, code domain.ErrorClass, at time.Time) error {
	return r.transition(id, domain.JobStatusProcessing, func(j *domain.Job) {
		j.Status = domain.JobStatusFailed
		j.LastError = errMsg
		j.ErrorCode = code
		done := at
		j.CompletedAt = &done
		j.StartedAt = nil
	})
}

func (r *JobRepo) RequeueForQuota(ctx context.Context, id, errMsg string) error {
	return r.transition(id, domain.JobStatusProcessing, func(j *domain.Job) {
		j.Status = domain.JobStatusQueued
		j.LastError = errMsg
		j.ErrorCode = domain.ErrorClassQuota
		j.StartedAt = nil
		if j.Attempts > 0 {
			j.Attempts--
		}
	})
}

func (r *JobRepo) CountByStatus(ctx context.Context, batchID string) (map[domain.JobStatus]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	counts := make(map[domain.JobStatus]int)
	for _, j := range r.store.jobs {
		if j.BatchID == batchID {
			counts[j.Status]++
		}
	}
	return counts, nil
}

func (r *JobRepo) CountByErrorCode(ctx context.Context, batchID string, code domain.ErrorClass) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	count := 0
	for _, j := range r.store.jobs {
		if j.BatchID == batchID && j.ErrorCode == code {
			count++
		}
	}
	return count, nil
}

func (r *JobRepo) transition(id string, from domain.JobStatus, apply func(*domain.Job)) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	j, ok := r.store.jobs[id]
	if !ok || j.Status != from {
		return storage.ErrNotFound
	}
	apply(j)
	return nil
}

// -----------------------------------------------------------------------------
// Batch Repository
// -----------------------------------------------------------------------------

type BatchRepo struct {
	store *MemoryStorage
}

func (r *BatchRepo) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	b, ok := r.store.batches[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *BatchRepo) ListByStatus(ctx context.Context, status domain.BatchStatus) ([]*domain.Batch, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var res []*domain.Batch
	for _, b := range r.store.batches {
		if b.Status == status {
			cp := *b
			res = append(res, &cp)
		}
	}
	sortBatches(res)
	return res, nil
}

// Lock only verifies the batch exists: the store mutex already makes each
// claim atomic, and WithinTx serializes the transaction groups.
func (r *BatchRepo) Lock(ctx context.Context, id string) error {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if _, ok := r.store.batches[id]; !ok {
		return storage.ErrNotFound
	}
	return nil
}

func (r *BatchRepo) Pause(ctx context.Context, id, reason string, pausedAt, resumeAfter time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	b, ok := r.store.batches[id]
	if !ok || b.Status != domain.BatchStatusProcessing {
		return storage.ErrNotFound
	}
	b.Status = domain.BatchStatusPaused
	p, ra := pausedAt, resumeAfter
	b.PausedAt = &p
	b.ResumeAfter = &ra
	b.PauseReason = reason
	return nil
}

func (r *BatchRepo) ResumeDue(ctx context.Context, now time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for _, b := range r.store.batches {
		if b.Status == domain.BatchStatusPaused && b.ResumeAfter != nil && !b.ResumeAfter.After(now) {
			b.Status = domain.BatchStatusProcessing
			b.PausedAt = nil
			b.ResumeAfter = nil
			b.PauseReason = ""
			n++
		}
	}
	return n, nil
}

func (r *BatchRepo) IncrementCompleted(ctx context.Context, id string) error {
	return r.update(id, func(b *domain.Batch) { b.CompletedJobs++ })
}

func (r *BatchRepo) IncrementFailed(ctx context.Context, id string) error {
	return r.update(id, func(b *domain.Batch) { b.FailedJobs++ })
}

func (r *BatchRepo) Finalize(ctx context.Context, id string, completed, failed int) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	b, ok := r.store.batches[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if b.Status != domain.BatchStatusProcessing {
		return false, nil
	}
	b.Status = domain.BatchStatusCompleted
	b.CompletedJobs = completed
	b.FailedJobs = failed
	b.PausedAt = nil
	b.ResumeAfter = nil
	b.PauseReason = ""
	return true, nil
}

func (r *BatchRepo) update(id string, apply func(*domain.Batch)) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	b, ok := r.store.batches[id]
	if !ok {
		return storage.ErrNotFound
	}
	apply(b)
	return nil
}

func sortBatches(batches []*domain.Batch) {
	for i := 1; i < len(batches); i++ {
		for j := i; j > 0 && batches[j].CreatedAt.Before(batches[j-1].CreatedAt); j-- {
			batches[j], batches[j-1] = batches[j-1], batches[j]
		}
	}
}

// -----------------------------------------------------------------------------
// Tracking Repository
// -----------------------------------------------------------------------------

type TrackingRepo struct {
	store *MemoryStorage
}

func (r *TrackingRepo) GetByID(ctx context.Context, id string) (*domain.Tracking, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	t, ok := r.store.tracks[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	cp.Destinations = append([]domain.Destination(nil), t.Destinations...)
	return &cp, nil
}

func (r *TrackingRepo) SetAdsArtifacts(ctx context.Context, id, conversionActionID, conversionLabel string) error {
	return r.update(id, func(t *domain.Tracking) {
		t.ConversionActionID = conversionActionID
		t.ConversionLabel = conversionLabel
	})
}

func (r *TrackingRepo) SetTagManagerArtifacts(ctx context.Context, id, workspaceID, triggerID, tagID, adsTagID string) error {
	return r.update(id, func(t *domain.Tracking) {
		t.WorkspaceID = workspaceID
		t.TriggerID = triggerID
		t.TagID = tagID
		t.AdsTagID = adsTagID
	})
}

func (r *TrackingRepo) MarkActive(ctx context.Context, id string) error {
	return r.update(id, func(t *domain.Tracking) {
		t.Status = domain.TrackingStatusActive
		t.LastError = ""
	})
}

func (r *TrackingRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	return r.update(id, func(t *domain.Tracking) {
		t.Status = domain.TrackingStatusFailed
		t.LastError = errMsg
	})
}

func (r *TrackingRepo) update(id string, apply func(*domain.Tracking)) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t, ok := r.store.tracks[id]
	if !ok {
		return storage.ErrNotFound
	}
	apply(t)
	return nil
}

// -----------------------------------------------------------------------------
// Recommendation Repository
// -----------------------------------------------------------------------------

type RecommendationRepo struct {
	store *MemoryStorage
}

func (r *RecommendationRepo) MarkCreated(ctx context.Context, trackingID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.recs[trackingID] = domain.RecommendationStatusCreated
	return nil
}

func (r *RecommendationRepo) MarkFailed(ctx context.Context, trackingID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.recs[trackingID] = domain.RecommendationStatusFailed
	return nil
}
