package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/OFFIS-RIT/testcase-agent/internal/util"
	"github.com/OFFIS-RIT/testcase-agent/pkg/logger"
)

// Runner executes one job. It reports progress through the tracker and
// returns the final artifact, or an error that becomes the job's message.
type Runner func(ctx context.Context, payload json.RawMessage, tracker *Tracker) (Outcome, error)

// Dispatcher hands a submitted task to whatever will execute it.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, task Task) error

func (f DispatcherFunc) Dispatch(ctx context.Context, task Task) error {
	return f(ctx, task)
}

// Manager creates jobs, executes them with registered runners and answers
// status queries. A job past its type's timeout is reported as failed the
// next time it is read; the run itself is not interrupted.
type Manager struct {
	store    Store
	timeouts map[Type]time.Duration
	now      func() time.Time

	mu         sync.RWMutex
	runners    map[Type]Runner
	dispatcher Dispatcher
}

// NewManagerParams configures a Manager.
//
// Store defaults to an unbounded MemoryStore. Timeouts maps a job type to
// its wall-clock ceiling; a missing or zero entry disables the watchdog for
// that type. Dispatcher defaults to running tasks in a local goroutine.
type NewManagerParams struct {
	Store      Store
	Timeouts   map[Type]time.Duration
	Dispatcher Dispatcher
}

func NewManager(params NewManagerParams) *Manager {
	m := &Manager{
		store:      params.Store,
		timeouts:   params.Timeouts,
		now:        time.Now,
		runners:    make(map[Type]Runner),
		dispatcher: params.Dispatcher,
	}
	if m.store == nil {
		m.store = NewMemoryStore(0)
	}
	if m.timeouts == nil {
		m.timeouts = map[Type]time.Duration{}
	}
	if m.dispatcher == nil {
		m.dispatcher = m.LocalDispatcher()
	}
	return m
}

// Register binds a runner to a job type.
func (m *Manager) Register(typ Type, runner Runner) {
	m.mu.Lock()
	m.runners[typ] = runner
	m.mu.Unlock()
}

// SetDispatcher replaces the dispatcher used by Submit.
func (m *Manager) SetDispatcher(d Dispatcher) {
	m.mu.Lock()
	m.dispatcher = d
	m.mu.Unlock()
}

// Store returns the backing store.
func (m *Manager) Store() Store {
	return m.store
}

// LocalDispatcher runs tasks in a goroutine of this process. The goroutine
// outlives the submitting request.
func (m *Manager) LocalDispatcher() Dispatcher {
	return DispatcherFunc(func(ctx context.Context, task Task) error {
		go func() {
			if err := m.Execute(context.WithoutCancel(ctx), task); err != nil {
				logger.Error("[Jobs] Execution failed", "job", task.JobID, "err", err)
			}
		}()
		return nil
	})
}

// Submit creates a pending job for payload and dispatches it.
func (m *Manager) Submit(ctx context.Context, typ Type, payload any) (*Job, error) {
	m.mu.RLock()
	_, known := m.runners[typ]
	dispatcher := m.dispatcher
	m.mu.RUnlock()
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typ)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}

	job := &Job{
		ID:        util.NewID(),
		Type:      typ,
		Status:    StatusPending,
		CreatedAt: m.now().UTC(),
	}
	if err := m.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	logger.Info("[Jobs] Submitted", "job", job.ID, "type", typ)

	if err := dispatcher.Dispatch(ctx, Task{JobID: job.ID, Type: typ, Payload: raw}); err != nil {
		m.fail(ctx, job.ID, fmt.Sprintf("dispatch failed: %v", err))
		return nil, fmt.Errorf("dispatch job: %w", err)
	}
	return job, nil
}

// Complete finishes a pending or running job with an outcome computed
// elsewhere, for example a cache hit.
func (m *Manager) Complete(ctx context.Context, id string, outcome Outcome) (*Job, error) {
	return m.finish(ctx, id, outcome, nil)
}

// Execute runs task to completion and records the outcome. A task whose job
// is already finished is skipped. Panics in the runner are recovered and
// recorded as an internal error. The returned error reports failures to
// record state, not failures of the run itself.
func (m *Manager) Execute(ctx context.Context, task Task) (err error) {
	m.mu.RLock()
	runner, ok := m.runners[task.Type]
	m.mu.RUnlock()
	if !ok {
		m.fail(ctx, task.JobID, fmt.Sprintf("%v: %s", ErrUnknownType, task.Type))
		return fmt.Errorf("%w: %s", ErrUnknownType, task.Type)
	}

	started := m.now().UTC()
	job, err := m.store.Update(ctx, task.JobID, func(j *Job) error {
		j.Status = StatusRunning
		j.StartedAt = &started
		return nil
	})
	if errors.Is(err, ErrFinished) {
		logger.Info("[Jobs] Skipping finished job", "job", task.JobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("start job %s: %w", task.JobID, err)
	}
	logger.Info("[Jobs] Running", "job", job.ID, "type", job.Type)

	tracker := newTracker(m.store, job.ID, started, m.now)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("[Jobs] Runner panicked", "job", job.ID, "panic", r, "stack", string(debug.Stack()))
			_, err = m.finish(ctx, job.ID, Outcome{}, fmt.Errorf("internal error: %v", r))
		}
	}()

	outcome, runErr := runner(ctx, task.Payload, tracker)
	if runErr != nil {
		logger.Warn("[Jobs] Job failed", "job", job.ID, "err", runErr)
	} else {
		logger.Info("[Jobs] Job done", "job", job.ID, "duration", m.now().Sub(started).Round(time.Millisecond))
	}
	_, err = m.finish(ctx, job.ID, outcome, runErr)
	return err
}

// Get returns the job snapshot, expiring a run that exceeded its timeout.
func (m *Manager) Get(ctx context.Context, id string) (*Job, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusRunning || job.StartedAt == nil {
		return job, nil
	}

	limit := m.timeouts[job.Type]
	if limit <= 0 || m.now().Sub(*job.StartedAt) <= limit {
		return job, nil
	}

	now := m.now().UTC()
	expired, err := m.store.Update(ctx, id, func(j *Job) error {
		j.Status = StatusError
		j.Error = fmt.Sprintf("job timed out after %s", limit)
		j.ETASeconds = nil
		j.FinishedAt = &now
		return nil
	})
	if errors.Is(err, ErrFinished) {
		// finished between the read and the update
		return m.store.Get(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	logger.Warn("[Jobs] Job exceeded its timeout", "job", id, "limit", limit)
	return expired, nil
}

func (m *Manager) finish(ctx context.Context, id string, outcome Outcome, runErr error) (*Job, error) {
	now := m.now().UTC()
	job, err := m.store.Update(ctx, id, func(j *Job) error {
		j.FinishedAt = &now
		if runErr != nil {
			j.Status = StatusError
			j.Error = runErr.Error()
			j.ETASeconds = nil
			return nil
		}
		j.Status = StatusDone
		j.Result = outcome.Result
		j.Meta = outcome.Meta
		j.ETASeconds = intPtr(0)
		if j.Progress.Total == 0 {
			j.Progress = Progress{Current: 1, Total: 1}
		}
		return nil
	})
	if errors.Is(err, ErrFinished) {
		logger.Warn("[Jobs] Late completion ignored", "job", id)
		return m.store.Get(ctx, id)
	}
	return job, err
}

func (m *Manager) fail(ctx context.Context, id, msg string) {
	if _, err := m.finish(ctx, id, Outcome{}, errors.New(msg)); err != nil {
		logger.Error("[Jobs] Could not record failure", "job", id, "err", err)
	}
}
