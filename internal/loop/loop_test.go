package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

func TestDoRunsOnLoop(t *testing.T) {
	l := startLoop(t)
	ran := false
	if err := l.Do(context.Background(), func() { ran = true }); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Error("fn did not run")
	}
}

func TestPostPreservesOrder(t *testing.T) {
	l := startLoop(t)
	var got []int
	for i := range 100 {
		l.Post(func() { got = append(got, i) })
	}
	if err := l.Do(context.Background(), func() {}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 100 {
		t.Fatalf("ran %d functions, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, functions ran out of order", i, v)
		}
	}
}

// TestSerialExecution posts from many goroutines and checks that no two
// functions ever overlap.
func TestSerialExecution(t *testing.T) {
	l := startLoop(t)
	var (
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do(context.Background(), func() {
				active++
				if active > maxSeen {
					maxSeen = active
				}
				time.Sleep(time.Millisecond)
				active--
			})
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Errorf("max concurrent = %d, want 1", maxSeen)
	}
}

func TestPostAfterStop(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	cancel()

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	if l.Post(func() {}) {
		t.Error("Post() = true after stop")
	}
	if err := l.Do(context.Background(), func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("Do() error = %v, want ErrStopped", err)
	}
}

func TestDoHonoursContext(t *testing.T) {
	l := startLoop(t)
	block := make(chan struct{})
	l.Post(func() { <-block })
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Do(ctx, func() {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want DeadlineExceeded", err)
	}
}
