package stage

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fuzzforge/webfuzz/internal/fuzz/fuzzerr"
	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
	"github.com/fuzzforge/webfuzz/internal/fuzz/plugin"
	"github.com/fuzzforge/webfuzz/internal/fuzz/queue"
)

// PluginStage runs the configured script plugins over every result,
// merging their enrich key/values and collecting any backfeed results
// they emit (spec.md §4.3). Unlike the other stages it fans out over a
// worker pool internally rather than running a single loop, since
// script plugins are typically the most expensive per-item step; it
// still presents a single queue.Stage to the Manager.
//
// Shutdown uses a pass-the-poison-pill protocol: each worker that
// dequeues the pill re-enqueues it for the next worker, except the
// last of the N workers to see it, which forwards exactly one pill
// downstream.
type PluginStage struct {
	scripts []plugin.ScriptPlugin
	workers int
	stats   *model.FuzzStats
}

func NewPluginStage(scripts []plugin.ScriptPlugin, workers int, stats *model.FuzzStats) *PluginStage {
	if workers < 1 {
		workers = 1
	}
	return &PluginStage{scripts: scripts, workers: workers, stats: stats}
}

func (s *PluginStage) Name() string { return "plugin" }

func (s *PluginStage) Run(ctx context.Context, in, out *queue.PriorityQueue) error {
	var seenPoison int64
	var wg sync.WaitGroup
	errCh := make(chan error, s.workers)

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, err := in.Get(ctx)
				if err != nil {
					errCh <- err
					return
				}
				if item == queue.Poison {
					if atomic.AddInt64(&seenPoison, 1) < int64(s.workers) {
						if perr := in.Put(ctx, queue.Poison); perr != nil {
							errCh <- perr
						}
						return
					}
					if perr := out.Put(ctx, queue.Poison); perr != nil {
						errCh <- perr
					}
					return
				}

				res, backfeed := s.process(ctx, item)
				if perr := out.Put(ctx, res); perr != nil {
					errCh <- perr
					return
				}
				for _, b := range backfeed {
					if perr := out.Put(ctx, b); perr != nil {
						errCh <- perr
						return
					}
				}
			}
		}()
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *PluginStage) process(ctx context.Context, res *model.FuzzResult) (*model.FuzzResult, []*model.FuzzResult) {
	var backfeed []*model.FuzzResult
	for _, sp := range s.scripts {
		enrich, bf, err := sp.Process(ctx, res)
		if err != nil {
			res.Exception = fuzzerr.PluginRuntime(sp.Name(), err)
			res.Type = model.TypeError
			continue
		}
		if len(enrich) > 0 {
			if res.Enrich == nil {
				res.Enrich = make(map[string]string, len(enrich))
			}
			for k, v := range enrich {
				res.Enrich[k] = v
			}
		}
		res.Plugins = append(res.Plugins, sp.Name())
		for _, b := range bf {
			b.Type = model.TypeBackfeed
			backfeed = append(backfeed, b)
			if s.stats != nil {
				s.stats.IncBackfeed()
			}
		}
	}
	return res, backfeed
}
