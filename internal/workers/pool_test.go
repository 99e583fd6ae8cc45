package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestPool(workers, queue int) *Pool {
	return NewPool(zap.NewNop(), &PoolConfig{
		Name:            "test",
		NumWorkers:      workers,
		QueueSize:       queue,
		ShutdownTimeout: time.Second,
		PanicRecovery:   true,
	})
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPoolRunsTasks(t *testing.T) {
	pool := newTestPool(3, 16)
	pool.Start()
	defer pool.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int]bool)

	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		err := pool.SubmitFunc(func(ctx context.Context) error {
			defer wg.Done()
			mu.Lock()
			seen[i] = true
			mu.Unlock()
			return nil
		})
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	wg.Wait()

	if len(seen) != 10 {
		t.Errorf("Expected 10 tasks to run, got %d", len(seen))
	}
	waitFor(t, func() bool { return pool.Stats().TasksCompleted == 10 })
	if pool.Stats().TasksSubmitted != 10 {
		t.Errorf("Expected 10 submitted, got %d", pool.Stats().TasksSubmitted)
	}
}

func TestPoolSubmitWhenStopped(t *testing.T) {
	pool := newTestPool(1, 1)

	if err := pool.SubmitFunc(func(context.Context) error { return nil }); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Expected ErrPoolStopped before Start, got %v", err)
	}

	pool.Start()
	if err := pool.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := pool.SubmitFunc(func(context.Context) error { return nil }); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("Expected ErrPoolStopped after Stop, got %v", err)
	}
}

func TestPoolQueueFull(t *testing.T) {
	pool := newTestPool(1, 1)
	pool.Start()
	defer pool.Stop()

	release := make(chan struct{})
	started := make(chan struct{})

	// Occupy the only worker
	if err := pool.SubmitFunc(func(context.Context) error {
		close(started)
		<-release
		return nil
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started

	// Fill the queue
	if err := pool.SubmitFunc(func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Submit to queue: %v", err)
	}

	if err := pool.SubmitFunc(func(context.Context) error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
	close(release)
}

func TestPoolRecoversPanicsAndCountsFailures(t *testing.T) {
	pool := newTestPool(1, 4)
	pool.Start()
	defer pool.Stop()

	_ = pool.SubmitFunc(func(context.Context) error { panic("boom") })
	_ = pool.SubmitFunc(func(context.Context) error { return errors.New("failed") })

	waitFor(t, func() bool {
		s := pool.Stats()
		return s.PanicRecovered == 1 && s.TasksFailed == 2
	})
}

func TestPoolTaskTimeoutCancelsContext(t *testing.T) {
	pool := NewPool(zap.NewNop(), &PoolConfig{
		Name:        "timeout",
		NumWorkers:  1,
		QueueSize:   1,
		TaskTimeout: 20 * time.Millisecond,
	})
	pool.Start()
	defer pool.Stop()

	_ = pool.SubmitFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	waitFor(t, func() bool { return pool.Stats().TasksTimeout == 1 })
}

func TestPoolStopCancelsRunningTasks(t *testing.T) {
	pool := newTestPool(1, 1)
	pool.Start()

	cancelled := make(chan struct{})
	started := make(chan struct{})
	_ = pool.SubmitFunc(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})
	<-started

	if err := pool.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-cancelled:
	default:
		t.Error("Expected running task to observe cancellation")
	}
	if pool.IsRunning() {
		t.Error("Pool should not be running after Stop")
	}
}
