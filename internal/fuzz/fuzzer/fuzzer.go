// Package fuzzer wires the generator, queue manager, and concrete
// stages into the top-level Fuzzer described by spec.md §2 and §4.4:
// construction conditionally binds only the stages a given Options
// value asks for, mirroring wfuzz's Fuzzer.__init__.
package fuzzer

import (
	"context"
	"log/slog"
	"os"

	"github.com/fuzzforge/webfuzz/internal/fuzz/fuzzerr"
	"github.com/fuzzforge/webfuzz/internal/fuzz/generator"
	"github.com/fuzzforge/webfuzz/internal/fuzz/httpwire"
	"github.com/fuzzforge/webfuzz/internal/fuzz/httpstage"
	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
	"github.com/fuzzforge/webfuzz/internal/fuzz/plugin"
	"github.com/fuzzforge/webfuzz/internal/fuzz/queue"
	"github.com/fuzzforge/webfuzz/internal/fuzz/stage"
)

// Options describes one fuzzing run's configuration. GeneratorSpec and
// Seed are required, and Dispatcher unless DryRun is set; every other
// field enables an optional stage, matching the conditional wiring in
// spec.md §4.4.
type Options struct {
	Seed          httpwire.Request
	GeneratorSpec generator.Spec
	QueueCapacity int

	AllVars bool

	FilterEvaluator plugin.FilterEvaluator
	Prefilter       string
	Postfilter      string

	DryRun     bool
	Dispatcher plugin.HttpDispatcher

	Scripts       []plugin.ScriptPlugin
	PluginWorkers int

	RecurseMaxLevel int
	RecurseDecider  stage.RecurseDecider

	Sinks []stage.Sink

	Printer       plugin.Printer
	PrinterWriter interface {
		Write(p []byte) (n int, err error)
	}
}

// Fuzzer owns the generator-driven stage chain for one run.
type Fuzzer struct {
	manager    *queue.Manager
	stats      *model.FuzzStats
	dispatcher plugin.HttpDispatcher
	tail       *queue.PriorityQueue
}

// New validates opts and binds the stage chain. It does not start any
// goroutines; call Start to begin processing.
func New(opts Options, log *slog.Logger) (*Fuzzer, error) {
	stats := model.NewFuzzStats()
	ids := &generator.IDCounter{}
	gen, err := generator.New(opts.GeneratorSpec, opts.Seed, ids, stats)
	if err != nil {
		return nil, err
	}

	m := queue.NewManager(log, stats)
	cur := m.Bind(stage.NewSeedStage(gen, stats, opts.RecurseDecider != nil), opts.QueueCapacity)

	if opts.AllVars {
		cur = m.Bind(stage.NewAllVarStage(opts.Seed), opts.QueueCapacity)
	}

	if opts.Prefilter != "" {
		pred, err := compile(opts.FilterEvaluator, "prefilter", opts.Prefilter)
		if err != nil {
			return nil, err
		}
		cur = m.Bind(stage.NewSliceStage(pred, stats), opts.QueueCapacity)
	}

	httpIn := cur
	if opts.DryRun {
		cur = m.Bind(stage.NewDryRunStage(), opts.QueueCapacity)
	} else {
		if opts.Dispatcher == nil {
			return nil, fuzzerr.BadOptions("dispatcher", "nil")
		}
		cur = m.Bind(httpstage.New(opts.Dispatcher, stats), opts.QueueCapacity)
	}

	if len(opts.Scripts) > 0 {
		cur = m.Bind(stage.NewPluginStage(opts.Scripts, opts.PluginWorkers, stats), opts.QueueCapacity)
	}

	if opts.RecurseDecider != nil {
		cur = m.Bind(stage.NewRecursiveStage(opts.RecurseMaxLevel, opts.RecurseDecider, ids, stats), opts.QueueCapacity)
	}

	// Routing always runs: it is what actually redirects a TypeSeed
	// result back to SeedStage's input and a TypeBackfeed result back
	// to the HTTP stage's input, regardless of which optional stages
	// produced them.
	cur = m.Bind(stage.NewRoutingStage(m.Head(), httpIn, log), opts.QueueCapacity)

	if opts.Postfilter != "" {
		pred, err := compile(opts.FilterEvaluator, "postfilter", opts.Postfilter)
		if err != nil {
			return nil, err
		}
		cur = m.Bind(stage.NewFilterStage(pred, stats), opts.QueueCapacity)
	}

	if len(opts.Sinks) > 0 {
		cur = m.Bind(stage.NewSaveStage(opts.Sinks...), opts.QueueCapacity)
	}

	if opts.Printer != nil {
		w := opts.PrinterWriter
		if w == nil {
			w = os.Stdout
		}
		cur = m.Bind(stage.NewPrinterStage(opts.Printer, w), opts.QueueCapacity)
	}

	return &Fuzzer{manager: m, stats: stats, dispatcher: opts.Dispatcher, tail: cur}, nil
}

func compile(ev plugin.FilterEvaluator, field, expr string) (plugin.Predicate, error) {
	if ev == nil {
		return nil, fuzzerr.BadOptions(field, expr)
	}
	return ev.Compile(expr)
}

// Start launches every stage's worker goroutine(s).
func (f *Fuzzer) Start(ctx context.Context) { f.manager.Start(ctx) }

// Wait blocks until every stage has exited, returning the first fatal
// stage error (if any).
func (f *Fuzzer) Wait() error { return f.manager.Wait() }

// Cancel stops the run cooperatively: the generator and every stage
// observe FuzzStats.Cancelled()/ctx.Done() and drain to a stop.
func (f *Fuzzer) Cancel() { f.manager.Cancel() }

// Pause and Resume delegate to the HTTP dispatcher, a no-op in
// dry-run mode where there is none.
func (f *Fuzzer) Pause() {
	if f.dispatcher != nil {
		f.dispatcher.Pause()
	}
}

func (f *Fuzzer) Resume() {
	if f.dispatcher != nil {
		f.dispatcher.Resume()
	}
}

// Stats returns a point-in-time snapshot of the run's counters.
func (f *Fuzzer) Stats() model.Snapshot { return f.stats.Snapshot() }

// Results drains the terminal stage's output queue until the poison
// pill, sending each surviving result on the returned channel (closed
// once the pipeline is fully drained or ctx is done). When a Printer
// stage is configured it consumes every result itself, so Results
// will only ever observe the poison pill — callers choose one
// consumption mode or the other, not both.
func (f *Fuzzer) Results(ctx context.Context) <-chan *model.FuzzResult {
	ch := make(chan *model.FuzzResult)
	go func() {
		defer close(ch)
		for {
			item, err := f.tail.Get(ctx)
			if err != nil {
				return
			}
			if item == queue.Poison {
				return
			}
			select {
			case ch <- item:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
