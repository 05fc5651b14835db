package stage

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/fuzzforge/webfuzz/internal/fuzz/generator"
	"github.com/fuzzforge/webfuzz/internal/fuzz/httpwire"
	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
	"github.com/fuzzforge/webfuzz/internal/fuzz/plugin"
	"github.com/fuzzforge/webfuzz/internal/fuzz/queue"
)

func drainAll(t *testing.T, ctx context.Context, q *queue.PriorityQueue) []*model.FuzzResult {
	t.Helper()
	var out []*model.FuzzResult
	for {
		item, err := q.Get(ctx)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if item == queue.Poison {
			return out
		}
		out = append(out, item)
	}
}

type fixedPredicate struct {
	visible bool
	active  bool
}

func (p fixedPredicate) IsVisible(res *model.FuzzResult) bool { return p.visible }
func (p fixedPredicate) IsActive() bool                       { return p.active }

func TestSliceStageDropsRejectedResults(t *testing.T) {
	ctx := context.Background()
	in := queue.NewPriorityQueue(0)
	out := queue.NewPriorityQueue(0)
	stats := model.NewFuzzStats()
	stats.IncPendingFuzz(2)

	s := NewSliceStage(fixedPredicate{visible: false, active: true}, stats)

	in.Put(ctx, &model.FuzzResult{NRes: 1})
	in.Put(ctx, queue.Poison)

	if err := s.Run(ctx, in, out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := drainAll(t, ctx, out); len(got) != 0 {
		t.Fatalf("expected rejected result to be dropped, got %v", got)
	}
	if snap := stats.Snapshot(); snap.PendingFuzz != 1 {
		t.Fatalf("expected PendingFuzz decremented to 1, got %d", snap.PendingFuzz)
	}
}

func TestFilterStagePassesVisibleResults(t *testing.T) {
	ctx := context.Background()
	in := queue.NewPriorityQueue(0)
	out := queue.NewPriorityQueue(0)

	s := NewFilterStage(fixedPredicate{visible: true, active: true}, model.NewFuzzStats())
	in.Put(ctx, &model.FuzzResult{NRes: 1})
	in.Put(ctx, queue.Poison)

	if err := s.Run(ctx, in, out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := drainAll(t, ctx, out); len(got) != 1 {
		t.Fatalf("expected visible result to pass, got %v", got)
	}
}

func TestDryRunStageSynthesizesResponse(t *testing.T) {
	ctx := context.Background()
	in := queue.NewPriorityQueue(0)
	out := queue.NewPriorityQueue(0)

	s := NewDryRunStage()
	in.Put(ctx, &model.FuzzResult{NRes: 1})
	in.Put(ctx, queue.Poison)

	if err := s.Run(ctx, in, out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := drainAll(t, ctx, out)
	if len(got) != 1 || got[0].History.Response == nil {
		t.Fatalf("expected a synthesized response, got %v", got)
	}
}

type stubScript struct {
	enrich   map[string]string
	backfeed []*model.FuzzResult
}

func (s stubScript) Name() string { return "stub" }
func (s stubScript) Process(ctx context.Context, res *model.FuzzResult) (map[string]string, []*model.FuzzResult, error) {
	return s.enrich, s.backfeed, nil
}

func TestPluginStageMergesEnrichAndEmitsBackfeed(t *testing.T) {
	ctx := context.Background()
	in := queue.NewPriorityQueue(0)
	out := queue.NewPriorityQueue(0)

	bf := &model.FuzzResult{NRes: 2}
	script := stubScript{enrich: map[string]string{"k": "v"}, backfeed: []*model.FuzzResult{bf}}
	s := NewPluginStage([]plugin.ScriptPlugin{script}, 2, model.NewFuzzStats())

	in.Put(ctx, &model.FuzzResult{NRes: 1})
	in.Put(ctx, queue.Poison)

	if err := s.Run(ctx, in, out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := drainAll(t, ctx, out)
	if len(got) != 2 {
		t.Fatalf("expected original + backfeed, got %d results", len(got))
	}
	var sawEnriched, sawBackfeed bool
	for _, r := range got {
		if r.Enrich["k"] == "v" {
			sawEnriched = true
		}
		if r.Type == model.TypeBackfeed {
			sawBackfeed = true
		}
	}
	if !sawEnriched || !sawBackfeed {
		t.Fatalf("expected one enriched result and one backfeed result, got %+v", got)
	}
}

func TestRoutingStageSendsSeedAndBackfeedToTheirQueues(t *testing.T) {
	ctx := context.Background()
	in := queue.NewPriorityQueue(0)
	out := queue.NewPriorityQueue(0)
	seedQ := queue.NewPriorityQueue(0)
	httpQ := queue.NewPriorityQueue(0)

	s := NewRoutingStage(seedQ, httpQ, nil)

	in.Put(ctx, &model.FuzzResult{NRes: 1, Type: model.TypeSeed})
	in.Put(ctx, &model.FuzzResult{NRes: 2, Type: model.TypeBackfeed})
	in.Put(ctx, &model.FuzzResult{NRes: 3, Type: model.TypeResult})
	in.Put(ctx, queue.Poison)

	if err := s.Run(ctx, in, out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	seedItem, err := seedQ.Get(ctx)
	if err != nil || seedItem == queue.Poison || seedItem.NRes != 1 {
		t.Fatalf("expected seed item routed to seedQ, got %v err %v", seedItem, err)
	}
	httpItem, err := httpQ.Get(ctx)
	if err != nil || httpItem == queue.Poison || httpItem.NRes != 2 {
		t.Fatalf("expected backfeed item routed to httpQ, got %v err %v", httpItem, err)
	}
	passthrough := drainAll(t, ctx, out)
	if len(passthrough) != 1 || passthrough[0].NRes != 3 {
		t.Fatalf("expected plain result to pass through to out, got %v", passthrough)
	}
}

// seedStageSliceSource is a trivial in-memory plugin.PayloadSource, the
// same shape generator's own tests use, kept local here so SeedStage
// can be driven against a real RequestGenerator rather than a stub.
type seedStageSliceSource struct {
	values []string
	i      int
}

func (s *seedStageSliceSource) Name() string { return "slice" }
func (s *seedStageSliceSource) Count() int   { return len(s.values) }
func (s *seedStageSliceSource) Close() error { return nil }
func (s *seedStageSliceSource) Next() (plugin.PayloadItem, error) {
	if s.i >= len(s.values) {
		return plugin.PayloadItem{}, plugin.ErrExhausted
	}
	v := s.values[s.i]
	s.i++
	return plugin.PayloadItem{Value: v}, nil
}

func TestSeedStageRestartsOnRecursiveSeed(t *testing.T) {
	ctx := context.Background()
	seedReq, err := httpwire.ParseRequest([]byte("GET /a/FUZZ HTTP/1.1\r\nHost: h\r\n\r\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	restartReq, err := httpwire.ParseRequest([]byte("GET /b/FUZZ HTTP/1.1\r\nHost: h\r\n\r\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	registry := plugin.NewMapRegistry()
	spec := generator.Spec{
		Sources: func() ([]plugin.PayloadSource, error) {
			return []plugin.PayloadSource{&seedStageSliceSource{values: []string{"x"}}}, nil
		},
		Registry: registry,
	}
	stats := model.NewFuzzStats()
	gen, err := generator.New(spec, seedReq, &generator.IDCounter{}, stats)
	if err != nil {
		t.Fatalf("generator.New: %v", err)
	}

	in := queue.NewPriorityQueue(0)
	out := queue.NewPriorityQueue(0)
	in.Put(ctx, &model.FuzzResult{Type: model.TypeSeed, RLevel: 1, History: model.Exchange{Request: restartReq}})
	in.Put(ctx, queue.Poison)

	s := NewSeedStage(gen, stats, true)
	if err := s.Run(ctx, in, out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := drainAll(t, ctx, out)
	if len(got) != 2 {
		t.Fatalf("expected one result per generator cycle (pre- and post-restart), got %d: %v", len(got), got)
	}
	if got[0].History.Request.Path != "/a/x" {
		t.Fatalf("expected first cycle substituted against the original seed, got %q", got[0].History.Request.Path)
	}
	if got[1].RLevel != 1 || got[1].History.Request.Path != "/b/x" {
		t.Fatalf("expected second cycle to restart against the recursive seed at rlevel 1, got %+v", got[1])
	}
}

func TestSaveStageWritesThroughSinksAndStopsOnError(t *testing.T) {
	ctx := context.Background()
	in := queue.NewPriorityQueue(0)
	out := queue.NewPriorityQueue(0)
	var buf bytes.Buffer

	s := NewSaveStage(NewFileSink(&buf))
	in.Put(ctx, &model.FuzzResult{NRes: 1, History: model.Exchange{Request: httpwire.Request{Method: "GET", Path: "/x"}}})
	in.Put(ctx, queue.Poison)

	if err := s.Run(ctx, in, out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected FileSink to have written a line")
	}
	if got := drainAll(t, ctx, out); len(got) != 1 {
		t.Fatalf("expected SaveStage to pass the result through, got %v", got)
	}
}

type erroringSink struct{ err error }

func (s erroringSink) Write(res *model.FuzzResult) error { return s.err }

func TestSaveStagePropagatesSinkError(t *testing.T) {
	ctx := context.Background()
	in := queue.NewPriorityQueue(0)
	out := queue.NewPriorityQueue(0)
	boom := errors.New("disk full")

	s := NewSaveStage(erroringSink{err: boom})
	in.Put(ctx, &model.FuzzResult{NRes: 1})
	in.Put(ctx, queue.Poison)

	if err := s.Run(ctx, in, out); !errors.Is(err, boom) {
		t.Fatalf("expected sink error to propagate, got %v", err)
	}
}
