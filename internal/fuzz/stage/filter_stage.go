package stage

import (
	"context"

	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
	"github.com/fuzzforge/webfuzz/internal/fuzz/plugin"
	"github.com/fuzzforge/webfuzz/internal/fuzz/queue"
)

// FilterStage applies a precompiled postfilter to completed results,
// after the HTTP exchange and any script enrichment (spec.md §4.3).
// Rejected results are counted as filtered and dropped before
// SaveStage/PrinterStage ever see them.
type FilterStage struct {
	pred  plugin.Predicate
	stats *model.FuzzStats
}

func NewFilterStage(pred plugin.Predicate, stats *model.FuzzStats) *FilterStage {
	return &FilterStage{pred: pred, stats: stats}
}

func (s *FilterStage) Name() string { return "filter" }

func (s *FilterStage) Run(ctx context.Context, in, out *queue.PriorityQueue) error {
	return RunLoop(ctx, in, out, passOne(s.process))
}

func (s *FilterStage) process(res *model.FuzzResult) (*model.FuzzResult, error) {
	if s.pred == nil || !s.pred.IsActive() || s.pred.IsVisible(res) {
		return res, nil
	}
	if s.stats != nil {
		s.stats.IncFiltered()
	}
	return nil, nil
}
