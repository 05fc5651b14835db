package queue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
)

// Stage is anything the QueueManager can run as one (or more) worker
// goroutines reading from an input queue and writing to an output
// queue (spec.md §4.3 "every concrete stage shares this shape").
type Stage interface {
	Name() string
	// Run drains in until it yields Poison, invoking Process per item
	// and forwarding to out; it returns once the stage has observed
	// Poison and forwarded its own Poison downstream (or ctx is done).
	Run(ctx context.Context, in, out *PriorityQueue) error
}

// Manager wires a chain of stages together with a PriorityQueue
// between each pair, starts one goroutine per stage (more for
// fan-out stages that manage their own worker pool internally), and
// propagates the first fatal error and cancellation across the chain.
type Manager struct {
	log    *slog.Logger
	stages []Stage
	queues []*PriorityQueue

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	errOnce sync.Once
	firstErr error
	stats   *model.FuzzStats
}

// NewManager builds a Manager. Queue capacity is given per Bind call
// (0 means unbounded, back-pressure disabled).
func NewManager(log *slog.Logger, stats *model.FuzzStats) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{log: log, stats: stats}
}

// Bind appends a stage to the chain and returns its output queue
// (equivalently, the next stage's input), so callers that need a
// back-edge reference — RoutingStage redirecting a recursive seed
// back to SeedStage's input, or backfeed back to the HTTP stage's
// input — can capture the right queue at wiring time. The first Bind
// call also creates the head queue (the generator feeds it directly).
func (m *Manager) Bind(stage Stage, queueCapacity int) *PriorityQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queues) == 0 {
		m.queues = append(m.queues, NewPriorityQueue(queueCapacity))
	}
	m.stages = append(m.stages, stage)
	out := NewPriorityQueue(queueCapacity)
	m.queues = append(m.queues, out)
	return out
}

// Head returns the queue a producer (the RequestGenerator driving
// loop) should Put into.
func (m *Manager) Head() *PriorityQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queues[0]
}

// Tail returns the queue the final stage writes to, for a consumer
// (e.g. the top-level Fuzzer's result channel) to Get from.
func (m *Manager) Tail() *PriorityQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queues[len(m.queues)-1]
}

// Start launches one goroutine per bound stage.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	for i, stage := range m.stages {
		in, out := m.queues[i], m.queues[i+1]
		m.wg.Add(1)
		go func(s Stage, in, out *PriorityQueue) {
			defer m.wg.Done()
			if err := s.Run(ctx, in, out); err != nil && ctx.Err() == nil {
				m.log.Error("stage failed", "stage", s.Name(), "error", err)
				m.errOnce.Do(func() { m.firstErr = err })
				if m.stats != nil {
					m.stats.Cancel()
				}
				cancel()
			}
		}(stage, in, out)
	}
}

// Cancel stops every stage's goroutine and marks the run cancelled.
func (m *Manager) Cancel() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if m.stats != nil {
		m.stats.Cancel()
	}
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until every stage goroutine has exited, returning the
// first fatal stage error (if any).
func (m *Manager) Wait() error {
	m.wg.Wait()
	return m.firstErr
}
