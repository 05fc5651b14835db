package stage

import (
	"context"
	"io"

	"github.com/fuzzforge/webfuzz/internal/fuzz/generator"
	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
	"github.com/fuzzforge/webfuzz/internal/fuzz/queue"
)

// SeedStage owns a RequestGenerator and is both a producer (it drives
// the generator to exhaustion, pushing every FuzzResult downstream)
// and a consumer of its own input queue, which carries recursive
// refeed seeds forwarded by RoutingStage (spec.md §4.3). A single
// worker alternates between the two so the generator is never touched
// concurrently: drain the current generator fully, then block for the
// next restart seed (or the poison pill, meaning no more recursion
// will arrive).
//
// When recursion is disabled there is nothing upstream that will ever
// put anything onto in, so SeedStage originates its own terminal
// Poison the moment the generator is exhausted. When recursion is
// enabled, it tracks every seed it emits via stats.PendingSeeds and
// races a restart seed arriving on in against that counter draining to
// zero, so it can still originate Poison itself once it knows no
// further recursive refeed is coming.
type SeedStage struct {
	gen       *generator.RequestGenerator
	stats     *model.FuzzStats
	recursive bool
}

func NewSeedStage(gen *generator.RequestGenerator, stats *model.FuzzStats, recursive bool) *SeedStage {
	return &SeedStage{gen: gen, stats: stats, recursive: recursive}
}

func (s *SeedStage) Name() string { return "seed" }

func (s *SeedStage) Run(ctx context.Context, in, out *queue.PriorityQueue) error {
	for {
		for {
			res, err := s.gen.Next()
			if err != nil {
				if err == io.EOF {
					break
				}
				return err
			}
			if s.recursive && s.stats != nil {
				s.stats.IncPendingSeeds(1)
			}
			if perr := out.Put(ctx, res); perr != nil {
				return perr
			}
		}

		if !s.recursive {
			return out.Put(ctx, queue.Poison)
		}

		item, err := s.awaitRestart(ctx, in)
		if err != nil {
			return err
		}
		if item == nil {
			return out.Put(ctx, queue.Poison)
		}
		if item == queue.Poison {
			return out.Put(ctx, queue.Poison)
		}
		if s.stats != nil {
			// The seed's token, carried over (not released) by
			// RecursiveStage when it recursed, is now resolved: SeedStage
			// is about to act on it.
			s.stats.IncPendingSeeds(-1)
		}
		if err := s.gen.Restart(item.History.Request, item.RLevel); err != nil {
			return err
		}
	}
}

// awaitRestart blocks until either a restart seed (or the poison pill)
// arrives on in, or every pending seed has been resolved without
// producing one — whichever happens first. A nil, nil result means
// "drained: originate Poison yourself now."
func (s *SeedStage) awaitRestart(ctx context.Context, in *queue.PriorityQueue) (*model.FuzzResult, error) {
	if s.stats == nil {
		return in.Get(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type getResult struct {
		item *model.FuzzResult
		err  error
	}
	gotItem := make(chan getResult, 1)
	go func() {
		item, err := in.Get(ctx)
		gotItem <- getResult{item: item, err: err}
	}()

	drained := make(chan error, 1)
	go func() {
		drained <- s.stats.WaitSeedsDrained(ctx)
	}()

	select {
	case r := <-gotItem:
		return r.item, r.err
	case derr := <-drained:
		if derr != nil {
			return nil, derr
		}
		return nil, nil
	}
}
