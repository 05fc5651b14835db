package stage

import (
	"context"
	"log/slog"

	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
	"github.com/fuzzforge/webfuzz/internal/fuzz/queue"
)

// RoutingStage implements the routing table from spec.md §4.3's
// recursion/backfeed back-edges: {seed: seedQueue, backfeed:
// httpQueue}. Every other result type passes straight through to out.
// An unrecognized ResultType value (Open Question: what should happen
// to a type the routing table doesn't name) is logged and passed
// through rather than dropped, so a future type addition fails open.
type RoutingStage struct {
	seedQueue *queue.PriorityQueue
	httpQueue *queue.PriorityQueue // nil routes backfeed to out instead
	log       *slog.Logger
}

func NewRoutingStage(seedQueue, httpQueue *queue.PriorityQueue, log *slog.Logger) *RoutingStage {
	if log == nil {
		log = slog.Default()
	}
	return &RoutingStage{seedQueue: seedQueue, httpQueue: httpQueue, log: log}
}

func (s *RoutingStage) Name() string { return "routing" }

func (s *RoutingStage) Run(ctx context.Context, in, out *queue.PriorityQueue) error {
	for {
		item, err := in.Get(ctx)
		if err != nil {
			return err
		}
		if item == queue.Poison {
			if perr := s.seedQueue.Put(ctx, queue.Poison); perr != nil {
				return perr
			}
			if s.httpQueue != nil {
				if perr := s.httpQueue.Put(ctx, queue.Poison); perr != nil {
					return perr
				}
			}
			return out.Put(ctx, queue.Poison)
		}

		switch item.Type {
		case model.TypeSeed:
			if perr := s.seedQueue.Put(ctx, item); perr != nil {
				return perr
			}
		case model.TypeBackfeed:
			target := s.httpQueue
			if target == nil {
				target = out
			}
			if perr := target.Put(ctx, item); perr != nil {
				return perr
			}
		case model.TypeResult, model.TypeError, model.TypeEndSeed:
			if perr := out.Put(ctx, item); perr != nil {
				return perr
			}
		default:
			s.log.Warn("routing: unrecognized result type, passing through", "type", item.Type)
			if perr := out.Put(ctx, item); perr != nil {
				return perr
			}
		}
	}
}
