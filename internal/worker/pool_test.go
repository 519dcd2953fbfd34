package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type testJob struct {
	id      int
	err     error
	counter *int32
}

type testResult struct {
	id  int
	err error
}

func (r *testResult) GetError() error { return r.err }

func (j *testJob) Execute(_ context.Context) Result {
	if j.counter != nil {
		atomic.AddInt32(j.counter, 1)
	}
	return &testResult{id: j.id, err: j.err}
}

func TestPool_AllJobsExecute(t *testing.T) {
	pool := NewPool(3)
	pool.Start()

	var executed int32
	for i := 0; i < 10; i++ {
		pool.Submit(&testJob{id: i, counter: &executed})
	}

	results := pool.Wait()
	if len(results) != 10 {
		t.Errorf("expected 10 results, got %d", len(results))
	}
	if n := atomic.LoadInt32(&executed); n != 10 {
		t.Errorf("expected 10 executions, got %d", n)
	}
}

func TestPool_ErrorsDoNotAbortBatch(t *testing.T) {
	pool := NewPool(2)
	pool.Start()

	pool.Submit(&testJob{id: 0, err: errors.New("boom")})
	pool.Submit(&testJob{id: 1})
	pool.Submit(&testJob{id: 2})

	results := pool.Wait()
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	var failed int
	for _, r := range results {
		if r.GetError() != nil {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("expected 1 failed result, got %d", failed)
	}
}

func TestPool_ZeroWorkersClamped(t *testing.T) {
	pool := NewPool(0)
	pool.Start()
	pool.Submit(&testJob{id: 1})

	results := pool.Wait()
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

func TestLimiter_WaitRespectsContext(t *testing.T) {
	limiter := NewLimiter(0.001, 1)
	limiter.Allow("slow") // drain the burst

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx, "slow"); err == nil {
		t.Error("expected context deadline to interrupt Wait")
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewLimiter(0.001, 1)
	if !limiter.Allow("a") {
		t.Error("first request for key a should pass")
	}
	if limiter.Allow("a") {
		t.Error("burst for key a should be spent")
	}
	if !limiter.Allow("b") {
		t.Error("key b has its own burst")
	}
}

func TestLimiter_SetRate(t *testing.T) {
	limiter := NewLimiter(0.001, 1)
	limiter.SetRate("fast", 1000, 100)

	for i := 0; i < 50; i++ {
		if !limiter.Allow("fast") {
			t.Fatalf("request %d unexpectedly limited", i)
		}
	}
}
