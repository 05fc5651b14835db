package stage

import (
	"context"

	"github.com/fuzzforge/webfuzz/internal/fuzz/httpwire"
	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
	"github.com/fuzzforge/webfuzz/internal/fuzz/queue"
)

// AllVarStage implements the --allvars expansion (spec.md §4.1 Count
// formula, §4.3): instead of one request per payload value, it emits
// one request per named variable in the seed, each carrying the
// payload substituted into that one variable while the rest of the
// seed stays at its original value. seedTemplate is the seed before
// marker substitution, with each candidate slot written as a $name$
// token (httpwire.Request.VarNames/SubstituteVar); it is constructed
// once from the original -d seed, not from the per-item request
// SeedStage produces (which has already replaced FUZZ markers).
type AllVarStage struct {
	seedTemplate httpwire.Request
	varNames     []string
}

func NewAllVarStage(seedTemplate httpwire.Request) *AllVarStage {
	return &AllVarStage{seedTemplate: seedTemplate, varNames: seedTemplate.VarNames()}
}

func (s *AllVarStage) Name() string { return "allvar" }

func (s *AllVarStage) Run(ctx context.Context, in, out *queue.PriorityQueue) error {
	return RunLoop(ctx, in, out, s.process)
}

func (s *AllVarStage) process(res *model.FuzzResult) ([]*model.FuzzResult, error) {
	if len(s.varNames) == 0 {
		// Not configured for allvars mode: passthrough unchanged.
		return []*model.FuzzResult{res}, nil
	}

	value := ""
	if len(res.Payloads) > 0 {
		value = res.Payloads[0].Value
	}

	out := make([]*model.FuzzResult, 0, len(s.varNames))
	for _, name := range s.varNames {
		clone := res.Clone()
		clone.History.Request = s.seedTemplate.SubstituteVar(name, value)
		if clone.Enrich == nil {
			clone.Enrich = make(map[string]string, 1)
		}
		clone.Enrich["allvar"] = name
		out = append(out, clone)
	}
	return out, nil
}
