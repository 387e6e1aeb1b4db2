package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunExecutesMainOnCallingGoroutine(t *testing.T) {
	l := New()

	called := false

	err := l.Run(context.Background(), func(ctx context.Context) error {
		called = true

		if !Running(ctx) {
			t.Fatal("expected context to carry the running loop")
		}

		if FromContext(ctx) != l {
			t.Fatal("FromContext returned a different loop")
		}

		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !called {
		t.Fatal("main was not called")
	}
}

func TestRunRejectsNestedLoop(t *testing.T) {
	outer := New()

	err := outer.Run(context.Background(), func(ctx context.Context) error {
		return New().Run(ctx, func(context.Context) error { return nil })
	})

	if !errors.Is(err, ErrNestedLoop) {
		t.Fatalf("Run() error = %v, want ErrNestedLoop", err)
	}
}

func TestRunRejectsConcurrentDrivers(t *testing.T) {
	l := New()

	err := l.Run(context.Background(), func(ctx context.Context) error {
		return l.Run(context.Background(), func(context.Context) error { return nil })
	})

	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Run() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestOnlyOneTaskRunsAtATime(t *testing.T) {
	l := New()

	var (
		active  atomic.Int32
		maxSeen atomic.Int32
	)

	work := func(ctx context.Context) (int, error) {
		for i := 0; i < 5; i++ {
			n := active.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}

			time.Sleep(time.Millisecond)
			active.Add(-1)

			if err := Sleep(ctx, time.Millisecond); err != nil {
				return 0, err
			}
		}

		return 1, nil
	}

	err := l.Run(context.Background(), func(ctx context.Context) error {
		futures := make([]*Future[int], 0, 4)
		for i := 0; i < 4; i++ {
			futures = append(futures, Spawn(ctx, work))
		}

		for _, f := range futures {
			if _, err := f.Await(ctx); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := maxSeen.Load(); got != 1 {
		t.Fatalf("max concurrently active tasks = %d, want 1", got)
	}
}

func TestOffloadLetsOtherTasksRun(t *testing.T) {
	l := New()

	var order []string

	var mu sync.Mutex

	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	err := l.Run(context.Background(), func(ctx context.Context) error {
		release := make(chan struct{})

		bg := Spawn(ctx, func(context.Context) (struct{}, error) {
			record("background")
			close(release)

			return struct{}{}, nil
		})

		_, err := Offload(ctx, func(context.Context) (struct{}, error) {
			<-release
			record("offloaded")

			return struct{}{}, nil
		})
		if err != nil {
			return err
		}

		_, err = bg.Await(ctx)

		return err
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(order) != 2 || order[0] != "background" || order[1] != "offloaded" {
		t.Fatalf("order = %v, want [background offloaded]", order)
	}
}

func TestOffloadWorkDoesNotSeeLoop(t *testing.T) {
	l := New()

	err := l.Run(context.Background(), func(ctx context.Context) error {
		_, err := Offload(ctx, func(inner context.Context) (struct{}, error) {
			if Running(inner) {
				t.Error("offloaded work must not observe the loop")
			}

			return struct{}{}, nil
		})

		return err
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestOffloadWithoutLoopBlocks(t *testing.T) {
	got, err := Offload(context.Background(), func(context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("Offload() = (%d, %v), want (42, nil)", got, err)
	}
}

func TestSpawnWithoutLoop(t *testing.T) {
	f := Spawn(context.Background(), func(context.Context) (int, error) { return 1, nil })

	<-f.Done()

	if _, err := f.Result(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Result() error = %v, want ErrNotRunning", err)
	}
}

func TestTaskPanicBecomesError(t *testing.T) {
	l := New()

	err := l.Run(context.Background(), func(ctx context.Context) error {
		f := Spawn(ctx, func(context.Context) (int, error) {
			panic("boom")
		})

		_, err := f.Await(ctx)

		return err
	})

	if err == nil || err.Error() != "task panicked: boom" {
		t.Fatalf("Run() error = %v, want task panic error", err)
	}
}

func TestSleepHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep() error = %v, want context.Canceled", err)
	}
}

func TestClaim(t *testing.T) {
	l := New()

	release, ok := l.Claim("first")
	if !ok {
		t.Fatal("first claim failed")
	}

	if _, ok := l.Claim("second"); ok {
		t.Fatal("second claim succeeded while first is held")
	}

	release()

	release2, ok := l.Claim("second")
	if !ok {
		t.Fatal("claim after release failed")
	}

	release2()
}

func TestFutureResolveOnce(t *testing.T) {
	f := NewFuture[int]()
	f.Resolve(1, nil)
	f.Resolve(2, errors.New("ignored"))

	got, err := f.Await(context.Background())
	if got != 1 || err != nil {
		t.Fatalf("Await() = (%d, %v), want (1, nil)", got, err)
	}
}
