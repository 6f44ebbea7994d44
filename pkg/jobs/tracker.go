package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/OFFIS-RIT/testcase-agent/internal/util"
	"github.com/OFFIS-RIT/testcase-agent/pkg/logger"
)

// Tracker records batch completions for one running job. The ETA is the
// average time per finished unit so far multiplied by the units left,
// recomputed after every completion. Safe for concurrent use.
type Tracker struct {
	store Store
	id    string
	start time.Time
	now   func() time.Time

	mu    sync.Mutex
	done  int
	total int
}

func newTracker(store Store, id string, start time.Time, now func() time.Time) *Tracker {
	return &Tracker{store: store, id: id, start: start, now: now}
}

// SetTotal announces the number of units and resets progress to zero.
func (t *Tracker) SetTotal(ctx context.Context, total int) {
	t.mu.Lock()
	t.done = 0
	t.total = total
	t.mu.Unlock()

	t.write(ctx, func(j *Job) error {
		j.Progress = Progress{Current: 0, Total: total}
		j.ETASeconds = nil
		return nil
	})
}

// Advance marks one more unit as finished, whatever its outcome.
func (t *Tracker) Advance(ctx context.Context) {
	// the store write stays under the lock so snapshots never go backwards
	t.mu.Lock()
	defer t.mu.Unlock()

	t.done++
	if t.done > t.total {
		t.total = t.done
	}
	done, total := t.done, t.total
	eta, ok := util.ETASeconds(t.now().Sub(t.start), done, total)

	t.write(ctx, func(j *Job) error {
		j.Progress = Progress{Current: done, Total: total}
		if ok {
			j.ETASeconds = intPtr(eta)
		}
		return nil
	})
}

// Progress returns the tracker's own counters.
func (t *Tracker) Progress() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Progress{Current: t.done, Total: t.total}
}

func (t *Tracker) write(ctx context.Context, fn func(*Job) error) {
	if t.store == nil {
		return
	}
	if _, err := t.store.Update(ctx, t.id, fn); err != nil && !errors.Is(err, ErrFinished) {
		logger.Warn("[Jobs] Progress update failed", "job", t.id, "err", err)
	}
}
