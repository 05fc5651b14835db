package stage

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
	"github.com/fuzzforge/webfuzz/internal/fuzz/plugin"
	"github.com/fuzzforge/webfuzz/internal/fuzz/queue"
)

// PrinterStage is the terminal stage of the pipeline (spec.md §4.3):
// it renders each surviving result with a plugin.Printer and writes
// the line to w, then drops the result (nothing is forwarded past
// here — out is present only so PrinterStage satisfies queue.Stage
// and forwards the poison pill for symmetry with the rest of the
// chain).
type PrinterStage struct {
	printer plugin.Printer
	w       io.Writer
	mu      sync.Mutex
}

func NewPrinterStage(printer plugin.Printer, w io.Writer) *PrinterStage {
	return &PrinterStage{printer: printer, w: w}
}

func (s *PrinterStage) Name() string { return "printer" }

func (s *PrinterStage) Run(ctx context.Context, in, out *queue.PriorityQueue) error {
	return RunLoop(ctx, in, out, s.process)
}

func (s *PrinterStage) process(res *model.FuzzResult) ([]*model.FuzzResult, error) {
	line := s.printer.Print(res)
	s.mu.Lock()
	_, err := fmt.Fprintln(s.w, line)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return nil, nil
}
