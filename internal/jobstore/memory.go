package jobstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store used for contract tests; it satisfies
// exactly the same interface the Postgres implementation does.
type Memory struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*Job)}
}

// Seed inserts a job directly, bypassing the enqueuer collaborator, for
// test setup.
func (m *Memory) Seed(j Job) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = j.CreatedAt
	}
	if j.State == "" {
		j.State = StatePending
	}
	if j.Family == "" {
		j.Family = FamilyExport
	}
	cp := j
	m.jobs[j.ID] = &cp
	return &cp
}

func (m *Memory) Claim(ctx context.Context, family Family, workerID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var eligible []*Job
	for _, j := range m.jobs {
		if j.Family == family && j.State == StatePending && !j.AvailableAt.After(now) {
			eligible = append(eligible, j)
		}
	}
	sort.Slice(eligible, func(i, k int) bool {
		if eligible[i].Priority != eligible[k].Priority {
			return eligible[i].Priority > eligible[k].Priority
		}
		return eligible[i].CreatedAt.Before(eligible[k].CreatedAt)
	})
	if len(eligible) == 0 {
		return nil, ErrEmpty
	}
	j := eligible[0]
	j.State = StateProcessing
	j.WorkerID = workerID
	started := now
	j.StartedAt = &started
	j.UpdatedAt = now
	cp := *j
	return &cp, nil
}

func (m *Memory) SetProcessingFields(ctx context.Context, id string, storagePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.State != StateProcessing {
		return ErrNotFound
	}
	j.StoragePath = storagePath
	j.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) Complete(ctx context.Context, id string, storagePath, artifactURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.State != StateProcessing {
		return ErrNotFound
	}
	now := time.Now()
	j.State = StateCompleted
	j.StoragePath = storagePath
	j.ArtifactURL = artifactURL
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

func (m *Memory) FailTerminal(ctx context.Context, id string, userMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	j.State = StateFailed
	j.ErrorMessage = userMessage
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

func (m *Memory) ResetWithBackoff(ctx context.Context, id string, delay time.Duration, internalMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.State != StateProcessing {
		return ErrNotFound
	}
	j.State = StatePending
	j.RetryCount++
	j.AvailableAt = time.Now().Add(delay)
	j.WorkerID = ""
	j.StartedAt = nil
	j.ErrorMessage = internalMessage
	j.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) ResetImmediate(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.State != StateProcessing {
		return ErrNotFound
	}
	j.State = StatePending
	j.AvailableAt = time.Now()
	j.WorkerID = ""
	j.StartedAt = nil
	j.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) FindStale(ctx context.Context, threshold time.Duration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-threshold)
	var ids []string
	for _, j := range m.jobs {
		if j.State == StateProcessing && j.StartedAt != nil && j.StartedAt.Before(cutoff) {
			ids = append(ids, j.ID)
		}
	}
	return ids, nil
}

func (m *Memory) ResetAllStale(ctx context.Context, threshold time.Duration) (int, error) {
	ids, _ := m.FindStale(ctx, threshold)
	for _, id := range ids {
		_ = m.ResetImmediate(ctx, id)
	}
	return len(ids), nil
}

func (m *Memory) QueueDepth(ctx context.Context, family Family) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var n int64
	for _, j := range m.jobs {
		if j.Family == family && j.State == StatePending && !j.AvailableAt.After(now) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s Stats
	now := time.Now()
	var procSum float64
	var procCount int64
	for _, j := range m.jobs {
		switch j.State {
		case StatePending:
			s.Pending++
			if age := now.Sub(j.CreatedAt).Seconds(); age > s.OldestPendingSeconds {
				s.OldestPendingSeconds = age
			}
		case StateProcessing:
			s.Processing++
		case StateCompleted:
			if j.CompletedAt != nil && now.Sub(*j.CompletedAt) < 24*time.Hour {
				s.Completed24h++
				if j.StartedAt != nil {
					procSum += j.CompletedAt.Sub(*j.StartedAt).Seconds()
					procCount++
				}
			}
		case StateFailed:
			if j.CompletedAt != nil && now.Sub(*j.CompletedAt) < 24*time.Hour {
				s.Failed24h++
			}
		}
	}
	if procCount > 0 {
		s.AvgProcessingSeconds = procSum / float64(procCount)
	}
	return s, nil
}

func (m *Memory) Peek(ctx context.Context, state State, n int) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Job
	for _, j := range m.jobs {
		if j.State == state {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *Memory) FindOldCompleted(ctx context.Context, before time.Time) ([]CompletedRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var refs []CompletedRef
	for _, j := range m.jobs {
		if j.State == StateCompleted && j.CreatedAt.Before(before) {
			refs = append(refs, CompletedRef{ID: j.ID, StoragePath: j.StoragePath})
		}
	}
	return refs, nil
}

func (m *Memory) DeleteOldCompleted(ctx context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int
	for id, j := range m.jobs {
		if j.State == StateCompleted && j.CreatedAt.Before(before) {
			delete(m.jobs, id)
			count++
		}
	}
	return count, nil
}

func (m *Memory) CountRecentForOwner(ctx context.Context, ownerID string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-window)
	var n int64
	for _, j := range m.jobs {
		if j.OwnerID == ownerID && j.CreatedAt.After(cutoff) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountActiveForOwner(ctx context.Context, ownerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.jobs {
		if j.OwnerID == ownerID && (j.State == StatePending || j.State == StateProcessing) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close() error                   { return nil }

var _ Store = (*Memory)(nil)
