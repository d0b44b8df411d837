package lazy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeferredRunsOnce(t *testing.T) {
	var calls atomic.Int32
	d := New(func() (int, error) {
		calls.Add(1)
		time.Sleep(5 * time.Millisecond)
		return 42, nil
	})

	if _, ok := d.TryGet(); ok {
		t.Fatalf("TryGet must not construct")
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := d.Get()
			if err != nil || v != 42 {
				t.Errorf("got %d, %v", v, err)
			}
		}()
	}
	wg.Wait()
	if calls.Load() != 1 {
		t.Fatalf("init ran %d times", calls.Load())
	}
	if v, ok := d.TryGet(); !ok || v != 42 {
		t.Fatalf("TryGet after init: %d %v", v, ok)
	}
}

func TestDeferredError(t *testing.T) {
	boom := errors.New("boom")
	d := New(func() (string, error) { return "", boom })
	if _, err := d.Get(); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if _, ok := d.TryGet(); ok {
		t.Fatalf("failed construction must not be readable")
	}
}

func TestDeferredGetContext(t *testing.T) {
	release := make(chan struct{})
	d := New(func() (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := d.GetContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline, got %v", err)
	}

	close(release)
	v, err := d.GetContext(context.Background())
	if err != nil || v != 1 {
		t.Fatalf("got %d %v", v, err)
	}
}

func TestReady(t *testing.T) {
	d := Ready("x")
	if v, ok := d.TryGet(); !ok || v != "x" {
		t.Fatalf("Ready not constructed")
	}
}

func TestDeferredPanicReportedToWaiters(t *testing.T) {
	d := New(func() (int, error) { panic("bad init") })
	d.Start()
	_, err := d.GetContext(context.Background())
	if !errors.Is(err, ErrPanicked) {
		t.Fatalf("want ErrPanicked, got %v", err)
	}
}
