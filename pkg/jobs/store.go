package jobs

import (
	"context"
	"sync"
	"time"
)

// Store persists job snapshots. Update runs fn on the current snapshot under
// the store's lock and saves the result; it returns ErrFinished without
// calling fn when the job is already terminal.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Update(ctx context.Context, id string, fn func(*Job) error) (*Job, error)
	Get(ctx context.Context, id string) (*Job, error)
}

// apply is the shared mutation step of every Store.
func apply(job *Job, fn func(*Job) error) (*Job, error) {
	if job.Status.Terminal() {
		return nil, ErrFinished
	}
	next := job.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	return next, nil
}

// MemoryStore keeps jobs in a map. Finished jobs older than the TTL are
// pruned when new jobs are created.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*Job) error) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	next, err := apply(job, fn)
	if err != nil {
		return nil, err
	}
	s.jobs[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

// put replaces a snapshot without transition checks.
func (s *MemoryStore) put(job *Job) {
	s.mu.Lock()
	s.jobs[job.ID] = job.Clone()
	s.mu.Unlock()
}

func (s *MemoryStore) prune() {
	if s.ttl <= 0 {
		return
	}
	cutoff := s.now().Add(-s.ttl)
	for id, job := range s.jobs {
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}
