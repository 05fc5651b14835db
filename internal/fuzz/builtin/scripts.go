package builtin

import (
	"context"
	"strings"

	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
)

// headergrepScript enriches a completed result with the value of a
// configured response header, if present — the reference ScriptPlugin
// (spec.md §4.3 PluginStage), modeled on wfuzz's headers-grep plugin.
type headergrepScript struct {
	header string
}

// NewHeadergrepScript builds a script plugin that copies the named
// response header's value into Enrich under the same key.
func NewHeadergrepScript(header string) *headergrepScript {
	return &headergrepScript{header: header}
}

func (s *headergrepScript) Name() string { return "headergrep" }

func (s *headergrepScript) Process(ctx context.Context, res *model.FuzzResult) (map[string]string, []*model.FuzzResult, error) {
	if res.History.Response == nil {
		return nil, nil, nil
	}
	for _, h := range res.History.Response.Headers {
		if strings.EqualFold(h.Key, s.header) {
			return map[string]string{s.header: h.Value}, nil, nil
		}
	}
	return nil, nil, nil
}
