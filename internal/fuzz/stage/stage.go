// Package stage implements the concrete pipeline stages described in
// spec.md §4.3. Every stage is a single-worker loop (PluginStage runs
// an internal fan-out pool but still presents one Stage per the
// queue.Manager chain) that drains its input queue until the poison
// pill, forwards the pill downstream, and returns.
package stage

import (
	"context"

	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
	"github.com/fuzzforge/webfuzz/internal/fuzz/queue"
)

// RunLoop is the generic single-worker stage body shared by most
// concrete stages: drain in, call process per item, forward zero or
// more results to out, and propagate the poison pill.
func RunLoop(ctx context.Context, in, out *queue.PriorityQueue, process func(*model.FuzzResult) ([]*model.FuzzResult, error)) error {
	for {
		item, err := in.Get(ctx)
		if err != nil {
			return err
		}
		if item == queue.Poison {
			return out.Put(ctx, queue.Poison)
		}
		results, err := process(item)
		if err != nil {
			return err
		}
		for _, r := range results {
			if perr := out.Put(ctx, r); perr != nil {
				return perr
			}
		}
	}
}

// passOne adapts a 1:1 process function (the common case) to the
// []*model.FuzzResult shape RunLoop expects.
func passOne(f func(*model.FuzzResult) (*model.FuzzResult, error)) func(*model.FuzzResult) ([]*model.FuzzResult, error) {
	return func(r *model.FuzzResult) ([]*model.FuzzResult, error) {
		out, err := f(r)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, nil
		}
		return []*model.FuzzResult{out}, nil
	}
}
