// Package queue implements the priority-ordered, back-pressured
// channel that connects pipeline stages (spec.md §5): a bounded heap
// ordered by (rlevel DESC, seq ASC), with a poison pill that always
// sorts last so in-flight work drains before shutdown propagates.
package queue

import (
	"container/heap"
	"context"
	"sync"

	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
)

// Poison is a sentinel FuzzResult signaling "no more input"; it always
// sorts after every real item regardless of rlevel.
var Poison = &model.FuzzResult{RLevel: -1 << 30}

func isPoison(r *model.FuzzResult) bool { return r == Poison }

type entry struct {
	item *model.FuzzResult
	seq  uint64
}

type heapSlice []entry

func (h heapSlice) Len() int { return len(h) }

func (h heapSlice) Less(i, j int) bool {
	pi, pj := isPoison(h[i].item), isPoison(h[j].item)
	if pi != pj {
		return pj // poison (pj=true) sorts after: i before j iff j is poison
	}
	if pi && pj {
		return h[i].seq < h[j].seq
	}
	if h[i].item.RLevel != h[j].item.RLevel {
		return h[i].item.RLevel > h[j].item.RLevel // higher rlevel first
	}
	if h[i].item.Priority() != h[j].item.Priority() {
		return h[i].item.Priority() < h[j].item.Priority() // lower type rank first
	}
	return h[i].seq < h[j].seq
}

func (h heapSlice) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *heapSlice) Push(x any) { *h = append(*h, x.(entry)) }

func (h *heapSlice) Pop() any {
	old := *h
	n := len(old)
	last := old[n-1]
	*h = old[:n-1]
	return last
}

// PriorityQueue is a bounded, thread-safe priority queue of FuzzResults.
// A capacity of 0 means unbounded.
type PriorityQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	h        heapSlice
	seq      uint64
	capacity int
	closed   bool
}

func NewPriorityQueue(capacity int) *PriorityQueue {
	q := &PriorityQueue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Put inserts an item, blocking while the queue is at capacity. It
// returns ctx.Err() if ctx is cancelled first.
func (q *PriorityQueue) Put(ctx context.Context, item *model.FuzzResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.capacity > 0 && len(q.h) >= q.capacity && !q.closed {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		q.waitInterruptible(ctx, q.notFull)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if q.closed {
		return nil
	}
	heap.Push(&q.h, entry{item: item, seq: q.seq})
	q.seq++
	q.notEmpty.Broadcast()
	return nil
}

// Get removes and returns the highest-priority item, blocking until
// one is available or ctx is cancelled.
func (q *PriorityQueue) Get(ctx context.Context) (*model.FuzzResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.h) == 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		q.waitInterruptible(ctx, q.notEmpty)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	e := heap.Pop(&q.h).(entry)
	q.notFull.Broadcast()
	return e.item, nil
}

// Len reports the current number of buffered items.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

// waitInterruptible waits on cond; a helper goroutine broadcasts on cond
// when ctx is cancelled, since sync.Cond has no native context support.
func (q *PriorityQueue) waitInterruptible(ctx context.Context, cond *sync.Cond) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			cond.Broadcast()
			q.mu.Unlock()
		case <-done:
		}
	}()
	cond.Wait()
	close(done)
}
