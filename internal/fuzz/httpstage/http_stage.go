// Package httpstage implements the pipeline's HTTP dispatch stage
// (spec.md §4.3, §6): async submission against a plugin.HttpDispatcher,
// pending_fuzz bookkeeping, and a poison-wait-then-forward shutdown
// contract so no in-flight completion is lost when the run ends.
package httpstage

import (
	"context"
	"sync"

	"github.com/fuzzforge/webfuzz/internal/fuzz/fuzzerr"
	"github.com/fuzzforge/webfuzz/internal/fuzz/httpwire"
	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
	"github.com/fuzzforge/webfuzz/internal/fuzz/plugin"
	"github.com/fuzzforge/webfuzz/internal/fuzz/queue"
)

// Stage dispatches every incoming FuzzResult's seed request through a
// plugin.HttpDispatcher and forwards the completed result downstream
// as soon as it arrives, in completion order rather than submission
// order. On the poison pill it waits for every in-flight dispatch to
// finish and forward before propagating the pill itself, so a fast
// consumer never observes shutdown before the last response.
type Stage struct {
	dispatcher plugin.HttpDispatcher
	stats      *model.FuzzStats
}

func New(dispatcher plugin.HttpDispatcher, stats *model.FuzzStats) *Stage {
	return &Stage{dispatcher: dispatcher, stats: stats}
}

func (s *Stage) Name() string { return "http" }

func (s *Stage) Run(ctx context.Context, in, out *queue.PriorityQueue) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for {
		item, err := in.Get(ctx)
		if err != nil {
			wg.Wait()
			return err
		}
		if item == queue.Poison {
			wg.Wait()
			if perr := out.Put(ctx, queue.Poison); perr != nil {
				return perr
			}
			mu.Lock()
			err := firstErr
			mu.Unlock()
			return err
		}

		if s.stats != nil {
			s.stats.IncPendingFuzz(1)
		}
		wg.Add(1)
		res := item
		s.dispatcher.Submit(ctx, res.History.Request, func(resp httpwire.Response, derr error) {
			defer wg.Done()
			if derr != nil {
				res.Exception = fuzzerr.Network("http", derr)
				res.Type = model.TypeError
			} else {
				respCopy := resp
				res.History.Response = &respCopy
			}
			if s.stats != nil {
				s.stats.IncPendingFuzz(-1)
				s.stats.IncProcessed()
			}
			if perr := out.Put(ctx, res); perr != nil {
				setErr(perr)
			}
		})
	}
}
