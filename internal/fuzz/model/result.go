// Package model defines the data that flows through the fuzzing
// pipeline: FuzzPayload, FuzzResult, and FuzzStats (spec.md §3).
package model

import "github.com/fuzzforge/webfuzz/internal/fuzz/httpwire"

// ResultType classifies a FuzzResult as it moves through the pipeline.
type ResultType int

const (
	TypeResult ResultType = iota
	TypeSeed
	TypeBackfeed
	TypeError
	TypeEndSeed
)

func (t ResultType) String() string {
	switch t {
	case TypeResult:
		return "result"
	case TypeSeed:
		return "seed"
	case TypeBackfeed:
		return "backfeed"
	case TypeError:
		return "error"
	case TypeEndSeed:
		return "endseed"
	default:
		return "unknown"
	}
}

// typeRank orders types within equal rlevel for priority purposes: a
// seed should drain before a result born from it, and endseed/error
// should never starve other work, so rank is explicit rather than
// relying on enum order.
var typeRank = map[ResultType]int{
	TypeSeed:     0,
	TypeBackfeed: 1,
	TypeResult:   2,
	TypeError:    3,
	TypeEndSeed:  4,
}

// PayloadSource distinguishes a plain string payload from a recursive
// refeed payload that references a prior FuzzResult.
type PayloadSource int

const (
	PayloadString PayloadSource = iota
	PayloadResult
)

// FuzzPayload is a single substitution value: a string, or a reference
// to a prior FuzzResult (recursive refeed), plus its index among the
// peers produced by the same iterator tuple.
type FuzzPayload struct {
	Source PayloadSource
	Value  string
	Result *FuzzResult
	Index  int
}

// Exchange is the HTTP request/response pair a FuzzResult carries: a
// seed template before dispatch, a completed exchange after.
type Exchange struct {
	Request  httpwire.Request
	Response *httpwire.Response // nil until the HTTP stage completes it
}

// FuzzResult is a single unit flowing through the pipeline.
type FuzzResult struct {
	NRes       int64
	ParentID   int64
	RLevel     int
	Payloads   []FuzzPayload
	History    Exchange
	Type       ResultType
	Exception  error
	IsBaseline bool
	Plugins    []string // names of script plugins that processed this result

	// Enrich holds key/value metadata attached by script plugins
	// (PluginStage), e.g. discovered header values.
	Enrich map[string]string
}

// Priority derives the queue ordering key: (rlevel<<16) | type_rank.
// Deeper recursion sorts first (handled by the queue comparator using
// rlevel descending); within equal rlevel, type_rank breaks ties so
// seeds drain ahead of results born from them.
func (r *FuzzResult) Priority() int64 {
	return int64(r.RLevel)<<16 | int64(typeRank[r.Type])
}

// Clone returns a deep copy suitable for mutation (e.g. before
// synthesizing a recursive seed from a completed result).
func (r *FuzzResult) Clone() *FuzzResult {
	out := *r
	out.Payloads = append([]FuzzPayload(nil), r.Payloads...)
	out.History.Request = r.History.Request.Clone()
	if r.History.Response != nil {
		resp := *r.History.Response
		out.History.Response = &resp
	}
	if r.Plugins != nil {
		out.Plugins = append([]string(nil), r.Plugins...)
	}
	if r.Enrich != nil {
		out.Enrich = make(map[string]string, len(r.Enrich))
		for k, v := range r.Enrich {
			out.Enrich[k] = v
		}
	}
	return &out
}
