package generator

import (
	"io"
	"sync/atomic"

	"github.com/fuzzforge/webfuzz/internal/fuzz/fuzzerr"
	"github.com/fuzzforge/webfuzz/internal/fuzz/httpwire"
	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
	"github.com/fuzzforge/webfuzz/internal/fuzz/plugin"
)

// IDCounter hands out the monotonically increasing NRes identifiers
// shared by every RequestGenerator instance in a run, including the
// ones SeedStage restarts for recursive refeed (spec.md §4.3).
type IDCounter struct{ n int64 }

func (c *IDCounter) Next() int64 { return atomic.AddInt64(&c.n, 1) }

// Spec describes how to (re)build a RequestGenerator's dictio on
// Restart. Sources is called fresh each time: most payload sources
// (file-backed wordlists, ranges) are single-pass and cannot be
// rewound, so recursion re-instantiates them rather than resetting
// read position.
type Spec struct {
	Sources  func() ([]plugin.PayloadSource, error)
	Iterator string
	Registry plugin.Registry

	// AllVarsEnabled and AllVarsCount feed only the Count() formula;
	// the actual per-variable expansion is AllVarStage's job.
	AllVarsEnabled bool
	AllVarsCount   int

	Baseline bool

	// SeedPayloadMode: the first element of each tuple carries a
	// *model.FuzzResult (not a plain string) whose History.Request
	// becomes this item's seed, substituted from marker index 2
	// onward with the remaining tuple elements (wfuzz core.py
	// requestGenerator, seed_payload branch).
	SeedPayloadMode bool
}

// RequestGenerator turns payload tuples into FuzzResults against a
// seed request, per spec.md §4.1.
type RequestGenerator struct {
	spec  Spec
	ids   *IDCounter
	stats *model.FuzzStats

	dictio   plugin.TupleStream
	seed     httpwire.Request
	rlevel   int
	baseSent bool
}

// New builds a RequestGenerator over seed at rlevel 0.
func New(spec Spec, seed httpwire.Request, ids *IDCounter, stats *model.FuzzStats) (*RequestGenerator, error) {
	g := &RequestGenerator{spec: spec, ids: ids, stats: stats}
	if err := g.Restart(seed, 0); err != nil {
		return nil, err
	}
	return g, nil
}

// Restart rebuilds the dictio from scratch against a new seed and
// rlevel. Called by SeedStage whenever a recursive refeed synthesizes
// a new seed (spec.md §4.3 RecursiveStage / RoutingStage).
func (g *RequestGenerator) Restart(seed httpwire.Request, rlevel int) error {
	sources, err := g.spec.Sources()
	if err != nil {
		return err
	}
	dictio, err := BuildDictio(sources, g.spec.Iterator, g.spec.Registry)
	if err != nil {
		return err
	}
	g.dictio = dictio
	g.seed = seed
	g.rlevel = rlevel
	g.baseSent = false
	return nil
}

// Count returns the total number of FuzzResults this generator will
// emit at its current rlevel, or -1 if unknown (spec.md §4.1: dictio
// count * allvars multiplier, plus one for the baseline).
func (g *RequestGenerator) Count() int {
	dc := g.dictio.Count()
	if dc < 0 {
		return -1
	}
	mult := 1
	if g.spec.AllVarsEnabled && g.spec.AllVarsCount > 0 {
		mult = g.spec.AllVarsCount
	}
	total := dc * mult
	if g.spec.Baseline {
		total++
	}
	return total
}

// Next produces the next FuzzResult, or io.EOF when the generator is
// exhausted or the run has been cancelled.
func (g *RequestGenerator) Next() (*model.FuzzResult, error) {
	if g.stats != nil && g.stats.Cancelled() {
		return nil, io.EOF
	}

	if g.spec.Baseline && !g.baseSent {
		g.baseSent = true
		return g.buildBaseline(), nil
	}

	tuple, err := g.dictio.Next()
	if err != nil {
		if err == plugin.ErrExhausted {
			return nil, io.EOF
		}
		return nil, err
	}

	effectiveSeed := g.seed
	startAt := 1
	var parentID int64
	values := make([]string, 0, len(tuple))
	payloads := make([]model.FuzzPayload, 0, len(tuple))

	offset := 0
	if g.spec.SeedPayloadMode && len(tuple) > 0 && tuple[0].Result != nil {
		parent := tuple[0].Result
		effectiveSeed = parent.History.Request
		parentID = parent.NRes
		startAt = 2
		offset = 1
		payloads = append(payloads, model.FuzzPayload{Source: model.PayloadResult, Result: parent, Index: 0})
	}

	for i := offset; i < len(tuple); i++ {
		values = append(values, tuple[i].Value)
		payloads = append(payloads, model.FuzzPayload{Source: model.PayloadString, Value: tuple[i].Value, Index: i})
	}

	if want := requiredMarkerCount(effectiveSeed, startAt); want != len(values) {
		return nil, fuzzerr.BadOptionsf(
			"payload arity mismatch: seed needs %d marker(s) from %s onward but got %d value(s)",
			want, httpwire.MarkerName(startAt), len(values))
	}

	newReq := effectiveSeed.Substitute(startAt, values)

	return &model.FuzzResult{
		NRes:     g.ids.Next(),
		ParentID: parentID,
		RLevel:   g.rlevel,
		Payloads: payloads,
		History:  model.Exchange{Request: newReq},
		Type:     model.TypeResult,
	}, nil
}

func (g *RequestGenerator) buildBaseline() *model.FuzzResult {
	markers := g.seed.Markers()
	blanks := make([]string, len(markers))
	req := g.seed.Substitute(markerAt(markers, 0), blanks)
	return &model.FuzzResult{
		NRes:       g.ids.Next(),
		RLevel:     g.rlevel,
		History:    model.Exchange{Request: req},
		Type:       model.TypeResult,
		IsBaseline: true,
	}
}

func markerAt(markers []int, i int) int {
	if len(markers) == 0 {
		return 1
	}
	return markers[i]
}

// requiredMarkerCount counts markers in req whose index is >= startAt,
// the arity the generator must satisfy from this seed.
func requiredMarkerCount(req httpwire.Request, startAt int) int {
	n := 0
	for _, m := range req.Markers() {
		if m >= startAt {
			n++
		}
	}
	return n
}
