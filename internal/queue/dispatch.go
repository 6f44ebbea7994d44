package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/OFFIS-RIT/testcase-agent/pkg/jobs"
	"github.com/OFFIS-RIT/testcase-agent/pkg/logger"
)

// Dispatcher publishes job tasks for a worker process to execute.
type Dispatcher struct {
	mu    sync.Mutex
	ch    publisher
	queue string
}

func NewDispatcher(ch publisher, queueName string) *Dispatcher {
	if queueName == "" {
		queueName = JobQueue
	}
	return &Dispatcher{ch: ch, queue: queueName}
}

func (d *Dispatcher) Dispatch(ctx context.Context, task jobs.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}

	// channels are not safe for concurrent publishing
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := PublishFIFO(ctx, d.ch, d.queue, data); err != nil {
		return fmt.Errorf("publish to %s: %w", d.queue, err)
	}
	logger.Debug("[Queue] Dispatched", "job", task.JobID, "queue", d.queue)
	return nil
}
