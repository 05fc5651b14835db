package stage

import (
	"context"

	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
	"github.com/fuzzforge/webfuzz/internal/fuzz/plugin"
	"github.com/fuzzforge/webfuzz/internal/fuzz/queue"
)

// SliceStage applies a precompiled prefilter before a request is ever
// dispatched (spec.md §4.3): results the predicate rejects are dropped
// from the pipeline entirely and never reach the HTTP stage. An
// inactive predicate (empty filter expression) makes the stage a
// transparent passthrough.
type SliceStage struct {
	pred  plugin.Predicate
	stats *model.FuzzStats
}

func NewSliceStage(pred plugin.Predicate, stats *model.FuzzStats) *SliceStage {
	return &SliceStage{pred: pred, stats: stats}
}

func (s *SliceStage) Name() string { return "slice" }

func (s *SliceStage) Run(ctx context.Context, in, out *queue.PriorityQueue) error {
	return RunLoop(ctx, in, out, passOne(s.process))
}

func (s *SliceStage) process(res *model.FuzzResult) (*model.FuzzResult, error) {
	if s.pred == nil || !s.pred.IsActive() || s.pred.IsVisible(res) {
		return res, nil
	}
	if s.stats != nil {
		s.stats.IncPendingFuzz(-1)
	}
	return nil, nil
}
