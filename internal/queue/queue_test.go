package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/OFFIS-RIT/testcase-agent/pkg/jobs"

	"github.com/rabbitmq/amqp091-go"
)

type published struct {
	key string
	msg amqp091.Publishing
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakePublisher) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp091.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{key: key, msg: msg})
	return nil
}

type fakeAcker struct {
	acks, nacks int
	requeued    bool
}

func (a *fakeAcker) Ack(uint64, bool) error { a.acks++; return nil }
func (a *fakeAcker) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacks++
	a.requeued = requeue
	return nil
}
func (a *fakeAcker) Reject(uint64, bool) error { return nil }

func TestHandleProcessingError_RetryThenDLQ(t *testing.T) {
	tests := []struct {
		name      string
		headers   amqp091.Table
		permanent bool
		wantQueue string
		wantRetry any
	}{
		{"first_failure_goes_to_retry", nil, false, "job_queue_retry", int32(1)},
		{"counts_up_from_int32", amqp091.Table{"x-retries": int32(4)}, false, "job_queue_retry", int32(5)},
		{"counts_up_from_int64", amqp091.Table{"x-retries": int64(9)}, false, "job_queue_retry", int32(10)},
		{"exhausted_goes_to_dlq", amqp091.Table{"x-retries": int32(10)}, false, "job_queue_dlq", int32(10)},
		{"malformed_goes_to_dlq", nil, true, "job_queue_dlq", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pub := &fakePublisher{}
			ack := &fakeAcker{}
			msg := amqp091.Delivery{Acknowledger: ack, Body: []byte(`{}`), Headers: tc.headers}

			handleProcessingError(context.Background(), pub, msg, JobQueue, tc.permanent)

			if len(pub.sent) != 1 || pub.sent[0].key != tc.wantQueue {
				t.Fatalf("published to %+v, want %s", pub.sent, tc.wantQueue)
			}
			if got := pub.sent[0].msg.Headers["x-retries"]; got != tc.wantRetry {
				t.Fatalf("x-retries = %v (%T), want %v", got, got, tc.wantRetry)
			}
			if ack.acks != 1 || ack.nacks != 0 {
				t.Fatalf("original delivery must be acked once, got acks=%d nacks=%d", ack.acks, ack.nacks)
			}
		})
	}
}

func TestHandleProcessingError_PublishFailureRequeues(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	ack := &fakeAcker{}
	handleProcessingError(context.Background(), pub, amqp091.Delivery{Acknowledger: ack}, JobQueue, false)

	if ack.acks != 0 || ack.nacks != 1 || !ack.requeued {
		t.Fatalf("want nack with requeue, got %+v", ack)
	}
}

func TestDispatchAndExecute(t *testing.T) {
	pub := &fakePublisher{}
	m := jobs.NewManager(jobs.NewManagerParams{Dispatcher: NewDispatcher(pub, "")})
	m.Register(jobs.TypeEnhance, func(ctx context.Context, payload json.RawMessage, tr *jobs.Tracker) (jobs.Outcome, error) {
		var in struct {
			TestCases string `json:"test_cases"`
		}
		if err := json.Unmarshal(payload, &in); err != nil {
			return jobs.Outcome{}, err
		}
		tr.SetTotal(ctx, 1)
		tr.Advance(ctx)
		return jobs.Outcome{Result: in.TestCases + "!"}, nil
	})

	ctx := context.Background()
	job, err := m.Submit(ctx, jobs.TypeEnhance, map[string]string{"test_cases": "a,b"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(pub.sent) != 1 || pub.sent[0].key != JobQueue {
		t.Fatalf("task not published to %s: %+v", JobQueue, pub.sent)
	}
	if pub.sent[0].msg.DeliveryMode != amqp091.Persistent {
		t.Fatalf("task must be persistent")
	}

	pending, _ := m.Get(ctx, job.ID)
	if pending.Status != jobs.StatusPending {
		t.Fatalf("job should wait for a worker, got %s", pending.Status)
	}

	ack := &fakeAcker{}
	process(ctx, pub, JobQueue, amqp091.Delivery{Acknowledger: ack, Body: pub.sent[0].msg.Body}, ExecuteHandler(m))

	done, err := m.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if done.Status != jobs.StatusDone || done.Result != "a,b!" {
		t.Fatalf("unexpected job %+v", done)
	}
	if ack.acks != 1 {
		t.Fatalf("delivery not acked")
	}
}

func TestExecuteHandler_Malformed(t *testing.T) {
	h := ExecuteHandler(jobs.NewManager(jobs.NewManagerParams{}))
	for _, body := range []string{"not json", `{"type":"generate"}`} {
		if err := h(context.Background(), []byte(body)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%q: want ErrMalformed, got %v", body, err)
		}
	}
}
