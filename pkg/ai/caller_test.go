package ai

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OFFIS-RIT/testcase-agent/pkg/ratelimit"
)

type scriptedClient struct {
	mu      sync.Mutex
	calls   int
	replies []func(context.Context) (string, error)
	seen    []GenerateOptions
}

func (c *scriptedClient) GenerateChat(ctx context.Context, _ []ChatMessage, opts ...GenerateOption) (string, error) {
	c.mu.Lock()
	i := c.calls
	c.calls++
	c.seen = append(c.seen, ApplyOptions(GenerateOptions{}, opts...))
	c.mu.Unlock()
	if i >= len(c.replies) {
		return "", errors.New("unexpected call")
	}
	return c.replies[i](ctx)
}

func (c *scriptedClient) ResetMetrics()            {}
func (c *scriptedClient) GetMetrics() ModelMetrics { return ModelMetrics{} }

func fail(msg string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return "", errors.New(msg) }
}

func ok(s string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return s, nil }
}

func TestCaller_RetriesUntilSuccess(t *testing.T) {
	client := &scriptedClient{replies: []func(context.Context) (string, error){fail("a"), fail("b"), ok("done")}}
	c := NewCaller(NewCallerParams{Client: client, MaxRetries: 2, BackoffBase: time.Millisecond})

	out, err := c.Call(context.Background(), []ChatMessage{{Role: RoleUser, Message: "x"}}, WithModel("m"))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if out != "done" || client.calls != 3 {
		t.Fatalf("got %q after %d calls", out, client.calls)
	}
	if client.seen[2].Model != "m" {
		t.Fatalf("options not forwarded: %+v", client.seen[2])
	}
}

func TestCaller_ExhaustedBudgetNamesLastFailure(t *testing.T) {
	client := &scriptedClient{replies: []func(context.Context) (string, error){fail("a"), fail("b"), fail("last one")}}
	c := NewCaller(NewCallerParams{Client: client, MaxRetries: 2, BackoffBase: time.Millisecond})

	_, err := c.Call(context.Background(), nil)
	var re *RetryError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetryError, got %v", err)
	}
	if re.Attempts != 3 || re.Last.Error() != "last one" {
		t.Fatalf("unexpected retry error %+v", re)
	}
	if err.Error() != "model call: failed after 3 attempts: last one" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestCaller_BackoffDoubles(t *testing.T) {
	var stamps []time.Time
	rec := func(context.Context) (string, error) {
		stamps = append(stamps, time.Now())
		return "", errors.New("nope")
	}
	client := &scriptedClient{replies: []func(context.Context) (string, error){rec, rec, rec}}
	c := NewCaller(NewCallerParams{Client: client, MaxRetries: 2, BackoffBase: 20 * time.Millisecond})

	_, _ = c.Call(context.Background(), nil)
	if len(stamps) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(stamps))
	}
	if d := stamps[1].Sub(stamps[0]); d < 20*time.Millisecond {
		t.Fatalf("first wait too short: %v", d)
	}
	if d := stamps[2].Sub(stamps[1]); d < 40*time.Millisecond {
		t.Fatalf("second wait should double: %v", d)
	}
}

func TestCaller_EmptyResponseIsFailure(t *testing.T) {
	client := &scriptedClient{replies: []func(context.Context) (string, error){ok("")}}
	c := NewCaller(NewCallerParams{Client: client, MaxRetries: -1})

	if _, err := c.CallOnce(context.Background(), nil); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected empty response error, got %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("CallOnce must not retry, got %d calls", client.calls)
	}
}

func TestCaller_EveryAttemptTimesOut(t *testing.T) {
	slow := func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	client := &scriptedClient{replies: []func(context.Context) (string, error){slow, slow}}
	c := NewCaller(NewCallerParams{Client: client, MaxRetries: 1, BackoffBase: time.Millisecond, Timeout: 10 * time.Millisecond})

	_, err := c.Call(context.Background(), nil)
	var re *RetryError
	if !errors.As(err, &re) {
		t.Fatalf("expected RetryError, got %v", err)
	}
	if re.Attempts != 2 || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("unexpected retry error %+v", re)
	}
	if err.Error() != "model call: failed after 2 attempts: context deadline exceeded" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestCaller_CanceledParentIsNotWrapped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blocked := func(ctx context.Context) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	}
	client := &scriptedClient{replies: []func(context.Context) (string, error){blocked}}
	c := NewCaller(NewCallerParams{Client: client, MaxRetries: 2, BackoffBase: time.Millisecond})

	_, err := c.Call(ctx, nil)
	var re *RetryError
	if errors.As(err, &re) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected bare cancellation, got %v", err)
	}
}

func TestCaller_TimeoutPerAttempt(t *testing.T) {
	slow := func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	client := &scriptedClient{replies: []func(context.Context) (string, error){slow, ok("late")}}
	c := NewCaller(NewCallerParams{Client: client, MaxRetries: 1, BackoffBase: time.Millisecond, Timeout: 20 * time.Millisecond})

	out, err := c.Call(context.Background(), nil)
	if err != nil || out != "late" {
		t.Fatalf("attempt timeout should be retried: %q %v", out, err)
	}
}

func TestCaller_SharesLimiterSlots(t *testing.T) {
	var inFlight, peak atomic.Int32
	call := func(context.Context) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return "x", nil
	}
	replies := make([]func(context.Context) (string, error), 12)
	for i := range replies {
		replies[i] = call
	}
	client := &scriptedClient{replies: replies}
	limiter := ratelimit.NewLimiter(ratelimit.NewLimiterParams{MaxConcurrent: 2})
	a := NewCaller(NewCallerParams{Client: client, Limiter: limiter})
	b := NewCaller(NewCallerParams{Client: client, Limiter: limiter})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); _, _ = a.Call(context.Background(), nil) }()
		go func() { defer wg.Done(); _, _ = b.Call(context.Background(), nil) }()
	}
	wg.Wait()
	if peak.Load() > 2 {
		t.Fatalf("limiter shared by callers allowed %d concurrent calls", peak.Load())
	}
}
