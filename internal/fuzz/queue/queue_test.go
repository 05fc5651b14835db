package queue

import (
	"context"
	"testing"
	"time"

	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
)

func TestPriorityQueueOrdersByRLevelThenSeq(t *testing.T) {
	q := NewPriorityQueue(0)
	ctx := context.Background()

	low := &model.FuzzResult{NRes: 1, RLevel: 0}
	high := &model.FuzzResult{NRes: 2, RLevel: 2}
	mid := &model.FuzzResult{NRes: 3, RLevel: 1}

	for _, it := range []*model.FuzzResult{low, high, mid} {
		if err := q.Put(ctx, it); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	var order []int64
	for i := 0; i < 3; i++ {
		item, err := q.Get(ctx)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		order = append(order, item.NRes)
	}
	if order[0] != 2 || order[1] != 3 || order[2] != 1 {
		t.Fatalf("expected rlevel-descending drain order [2,3,1], got %v", order)
	}
}

func TestPriorityQueuePoisonSortsLast(t *testing.T) {
	q := NewPriorityQueue(0)
	ctx := context.Background()

	if err := q.Put(ctx, Poison); err != nil {
		t.Fatalf("Put poison: %v", err)
	}
	real := &model.FuzzResult{NRes: 9, RLevel: 0}
	if err := q.Put(ctx, real); err != nil {
		t.Fatalf("Put real: %v", err)
	}

	first, err := q.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first != real {
		t.Fatalf("expected the real item to drain before poison even though poison was enqueued first")
	}
	second, err := q.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if second != Poison {
		t.Fatalf("expected poison to drain last")
	}
}

func TestPriorityQueuePutBlocksAtCapacity(t *testing.T) {
	q := NewPriorityQueue(1)
	ctx := context.Background()

	if err := q.Put(ctx, &model.FuzzResult{NRes: 1}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	putDone := make(chan error, 1)
	go func() {
		putDone <- q.Put(ctx, &model.FuzzResult{NRes: 2})
	}()

	select {
	case <-putDone:
		t.Fatalf("second Put should have blocked at capacity 1")
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := q.Get(ctx); err != nil {
		t.Fatalf("Get: %v", err)
	}

	select {
	case err := <-putDone:
		if err != nil {
			t.Fatalf("unexpected error unblocking Put: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Put did not unblock after Get freed capacity")
	}
}

func TestPriorityQueueGetRespectsContextCancellation(t *testing.T) {
	q := NewPriorityQueue(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := q.Get(ctx); err == nil {
		t.Fatalf("expected Get to return an error for an already-cancelled context")
	}
}
