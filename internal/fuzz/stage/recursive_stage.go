package stage

import (
	"context"

	"github.com/fuzzforge/webfuzz/internal/fuzz/generator"
	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
	"github.com/fuzzforge/webfuzz/internal/fuzz/queue"
)

// RecurseDecider inspects a completed result and decides whether it
// warrants recursion, returning the path the new seed should target.
type RecurseDecider func(res *model.FuzzResult) (newPath string, recurse bool)

// RecursiveStage synthesizes a new TypeSeed FuzzResult alongside any
// completed result the decider flags for recursion (spec.md §4.3).
// The synthesized seed is emitted downstream like any other result;
// RoutingStage is what actually redirects it back to SeedStage.
//
// It keeps stats.PendingSeeds in step with SeedStage's bookkeeping: a
// result that does not recurse releases its token (decrement); one
// that does recurse hands its token directly to the new seed, with no
// call at all here, since decrementing then incrementing would open a
// window where another goroutine observes PendingSeeds at zero between
// the two calls and has SeedStage terminate prematurely. SeedStage
// itself releases that carried-over token once it consumes the seed
// to restart the generator (seed_stage.go).
type RecursiveStage struct {
	maxRLevel int
	decide    RecurseDecider
	ids       *generator.IDCounter
	stats     *model.FuzzStats
}

func NewRecursiveStage(maxRLevel int, decide RecurseDecider, ids *generator.IDCounter, stats *model.FuzzStats) *RecursiveStage {
	return &RecursiveStage{maxRLevel: maxRLevel, decide: decide, ids: ids, stats: stats}
}

func (s *RecursiveStage) Name() string { return "recursive" }

func (s *RecursiveStage) Run(ctx context.Context, in, out *queue.PriorityQueue) error {
	return RunLoop(ctx, in, out, s.process)
}

func (s *RecursiveStage) process(res *model.FuzzResult) ([]*model.FuzzResult, error) {
	if s.decide == nil || res.Type == model.TypeError || res.RLevel >= s.maxRLevel {
		s.release()
		return []*model.FuzzResult{res}, nil
	}

	newPath, recurse := s.decide(res)
	if !recurse {
		s.release()
		return []*model.FuzzResult{res}, nil
	}

	nres := res.NRes
	if s.ids != nil {
		nres = s.ids.Next()
	}

	seedReq := res.History.Request.Clone()
	seedReq.Path = newPath
	seed := &model.FuzzResult{
		NRes:     nres,
		ParentID: res.NRes,
		RLevel:   res.RLevel + 1,
		History:  model.Exchange{Request: seedReq},
		Type:     model.TypeSeed,
	}
	return []*model.FuzzResult{res, seed}, nil
}

// release decrements PendingSeeds for a result whose fate is terminal:
// no recursive seed will be produced for it.
func (s *RecursiveStage) release() {
	if s.stats != nil {
		s.stats.IncPendingSeeds(-1)
	}
}
