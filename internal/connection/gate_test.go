package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSendGate_FIFO(t *testing.T) {
	var g sendGate
	ctx := context.Background()

	if err := g.acquire(ctx); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := g.acquire(ctx); err != nil {
				t.Errorf("acquire %d failed: %v", i, err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			g.release()
		}(i)

		// Queue each waiter before starting the next.
		want := i + 2
		deadline := time.Now().Add(time.Second)
		for g.pending() != want && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}

	g.release()
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
	if n := g.pending(); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
}

func TestSendGate_CancelledWaiterLeavesQueue(t *testing.T) {
	var g sendGate
	if err := g.acquire(context.Background()); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := g.acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("acquire = %v, want DeadlineExceeded", err)
	}
	if n := g.pending(); n != 1 {
		t.Errorf("pending = %d, want 1 (owner only)", n)
	}

	g.release()
	if err := g.acquire(context.Background()); err != nil {
		t.Errorf("acquire after release failed: %v", err)
	}
}
