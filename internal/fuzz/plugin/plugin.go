// Package plugin declares the external-collaborator interfaces the
// core fuzzing pipeline is built against: payload sources, encoders,
// iterators, script and printer plugins (looked up by category and
// name from a Registry), plus the HttpDispatcher and FilterEvaluator
// collaborators named in spec.md §6. The core never implements a
// concrete plugin body; package internal/fuzz/builtin supplies a
// reference set sufficient to exercise the pipeline end-to-end.
package plugin

import (
	"context"
	"errors"

	"github.com/fuzzforge/webfuzz/internal/fuzz/httpwire"
	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
)

// Category names a plugin's registry bucket.
type Category string

const (
	CategoryPayloads  Category = "payloads"
	CategoryEncoders  Category = "encoders"
	CategoryIterators Category = "iterators"
	CategoryPrinters  Category = "printers"
	CategoryScripts   Category = "scripts"
)

// ErrExhausted is returned by PayloadSource.Next when the source has
// no more items. It is not a fatal error.
var ErrExhausted = errors.New("payload source exhausted")

// Named is the common capability every registry entry has.
type Named interface {
	Name() string
}

// PayloadItem is one element drawn from a PayloadSource: either a
// plain string, or (in seed_payload / recursive-refeed mode) a
// reference to a prior FuzzResult used as the new seed.
type PayloadItem struct {
	Result *model.FuzzResult // non-nil in seed_payload mode
	Value  string
}

// PayloadSource produces a lazy, finite-or-infinite sequence of
// payload items. Implementations are owned by the generator and
// closed on termination (spec.md §4.1 layer 1).
type PayloadSource interface {
	Named
	Next() (PayloadItem, error) // returns ErrExhausted when done
	Count() int                 // -1 for unknown or infinite
	Close() error
}

// Encoder transforms one payload string into another. Chained forms
// (E1@E2@...@En) apply encoders right-to-left per spec.md §4.1. An
// encoder may also tag itself with a Category, so that a single
// configured name expands to every encoder sharing that category
// (spec.md §4.1 "single encoder name" form) in addition to an exact
// name match.
type Encoder interface {
	Named
	Category() string
	Encode(s string) string
}

// TupleStream is what an Iterator plugin produces: a stream of payload
// tuples, one per source, combined according to the iterator's
// strategy (cartesian product, zip, chain, ...).
type TupleStream interface {
	Next() ([]PayloadItem, error) // ErrExhausted when done
	Count() int                   // -1 for unknown
}

// IteratorFactory builds a TupleStream over N already-wrapped payload
// sources. Registered under CategoryIterators.
type IteratorFactory interface {
	Named
	New(sources []PayloadSource) TupleStream
}

// ScriptPlugin enriches a completed FuzzResult with key/value metadata
// and/or emits new backfeed FuzzResults (PluginStage, spec.md §4.3).
type ScriptPlugin interface {
	Named
	Process(ctx context.Context, res *model.FuzzResult) (enrich map[string]string, backfeed []*model.FuzzResult, err error)
}

// Printer renders a FuzzResult for human consumption (PrinterStage).
type Printer interface {
	Named
	Print(res *model.FuzzResult) string
}

// PayloadFactory builds a PayloadSource from plugin parameters.
type PayloadFactory func(params map[string]string) (PayloadSource, error)

// Registry looks up plugins by (category, name). EncodersMatching
// returns every encoder registered under a name or category (used by
// the single-name encoder expansion form in spec.md §4.1).
type Registry interface {
	Payload(name string) (PayloadFactory, bool)
	Encoder(name string) (Encoder, bool)
	// EncodersMatching returns every registered encoder whose exact
	// Name or Category equals name, in stable Name order.
	EncodersMatching(name string) []Encoder
	Iterator(name string) (IteratorFactory, bool)
	Script(name string) (ScriptPlugin, bool)
	Printer(name string) (Printer, bool)
}

// HttpDispatcher is the external collaborator the HTTP stage hands
// requests to (spec.md §6). Retries, connection pooling, and rate
// limiting are the dispatcher's responsibility.
type HttpDispatcher interface {
	Submit(ctx context.Context, req httpwire.Request, done func(httpwire.Response, error))
	Pending() int
	Pause()
	Resume()
	Close() error
}

// FilterEvaluator compiles a filter expression into a reusable
// predicate (spec.md §6). The real expression language is external;
// this module consumes only the compiled predicate.
type FilterEvaluator interface {
	Compile(expression string) (Predicate, error)
}

// Predicate decides whether a result is visible to SliceStage /
// FilterStage, and whether the filter is active at all (an empty
// filter is inactive and the stage is skipped entirely).
type Predicate interface {
	IsVisible(res *model.FuzzResult) bool
	IsActive() bool
}
