package rerank

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/codevoyager1984/math-agent/internal/domain"
)

func TestLazyModel_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	var loads atomic.Int32
	m := newLazyModel(func(context.Context) error {
		loads.Add(1)
		<-release
		return nil
	}, time.Minute, zap.NewNop())

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.ensure(context.Background())
		}()
	}

	// wait until at least one caller started the load
	deadline := time.After(5 * time.Second)
	for m.State() != ModelLoading {
		select {
		case <-deadline:
			t.Fatal("load never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("ensure() = %v", err)
		}
	}
	if n := loads.Load(); n != 1 {
		t.Errorf("load ran %d times, want 1", n)
	}
	if m.State() != ModelLoaded {
		t.Errorf("State() = %q, want loaded", m.State())
	}

	// loaded: no further loads
	if err := m.ensure(context.Background()); err != nil || loads.Load() != 1 {
		t.Errorf("ensure after load = %v, loads = %d", err, loads.Load())
	}
}

func TestLazyModel_FailedLoadRetries(t *testing.T) {
	var loads atomic.Int32
	m := newLazyModel(func(context.Context) error {
		if loads.Add(1) == 1 {
			return errors.New("connection refused")
		}
		return nil
	}, time.Minute, zap.NewNop())

	err := m.ensure(context.Background())
	if !errors.Is(err, domain.ErrRerankFailure) {
		t.Fatalf("first ensure() = %v, want ErrRerankFailure", err)
	}
	if m.State() != ModelUnloaded {
		t.Errorf("State() after failure = %q, want unloaded", m.State())
	}

	if err := m.ensure(context.Background()); err != nil {
		t.Fatalf("second ensure() = %v", err)
	}
	if loads.Load() != 2 {
		t.Errorf("loads = %d, want 2", loads.Load())
	}
}

func TestLazyModel_CallerCancelDoesNotAbortLoad(t *testing.T) {
	release := make(chan struct{})
	loadCtxErr := make(chan error, 1)
	m := newLazyModel(func(ctx context.Context) error {
		<-release
		loadCtxErr <- ctx.Err()
		return nil
	}, time.Minute, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.ensure(ctx) }()

	for m.State() != ModelLoading {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("ensure() = %v, want context.Canceled", err)
	}

	close(release)
	if err := <-loadCtxErr; err != nil {
		t.Errorf("load context was cancelled: %v", err)
	}
	if err := m.ensure(context.Background()); err != nil {
		t.Errorf("ensure() after detached load = %v", err)
	}
	if m.State() != ModelLoaded {
		t.Errorf("State() = %q, want loaded", m.State())
	}
}

func TestLazyModel_LoadTimeout(t *testing.T) {
	m := newLazyModel(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 10*time.Millisecond, zap.NewNop())

	err := m.ensure(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ensure() = %v, want DeadlineExceeded", err)
	}
	if m.State() != ModelUnloaded {
		t.Errorf("State() = %q, want unloaded", m.State())
	}
}
