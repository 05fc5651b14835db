package stage

import (
	"context"

	"github.com/fuzzforge/webfuzz/internal/fuzz/httpwire"
	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
	"github.com/fuzzforge/webfuzz/internal/fuzz/queue"
)

// DryRunStage stands in for the HTTP stage when dry-run mode is
// requested (spec.md §4.3): it never opens a connection, instead
// synthesizing a placeholder 000 response so the rest of the chain
// (PluginStage, FilterStage, SaveStage, PrinterStage) can be exercised
// to preview exactly what would be sent.
type DryRunStage struct{}

func NewDryRunStage() *DryRunStage { return &DryRunStage{} }

func (s *DryRunStage) Name() string { return "dryrun" }

func (s *DryRunStage) Run(ctx context.Context, in, out *queue.PriorityQueue) error {
	return RunLoop(ctx, in, out, passOne(s.process))
}

func (s *DryRunStage) process(res *model.FuzzResult) (*model.FuzzResult, error) {
	res.History.Response = &httpwire.Response{
		Version:    "HTTP/1.1",
		StatusCode: 0,
		Reason:     "dry-run: not sent",
	}
	return res, nil
}
