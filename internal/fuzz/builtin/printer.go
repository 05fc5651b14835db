package builtin

import (
	"fmt"
	"strings"

	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
)

// plainPrinter renders a result as a single human-readable line, the
// reference Printer (spec.md §4.3 PrinterStage), modeled on wfuzz's
// default console output.
type plainPrinter struct{}

func NewPlainPrinter() *plainPrinter { return &plainPrinter{} }

func (plainPrinter) Name() string { return "plain" }

func (plainPrinter) Print(res *model.FuzzResult) string {
	code := 0
	size := 0
	if res.History.Response != nil {
		code = res.History.Response.StatusCode
		size = len(res.History.Response.Body)
	}

	values := make([]string, 0, len(res.Payloads))
	for _, p := range res.Payloads {
		values = append(values, p.Value)
	}

	line := fmt.Sprintf("id=%-6d rlevel=%d code=%-3d size=%-6d %s", res.NRes, res.RLevel, code, size, strings.Join(values, " | "))
	if res.IsBaseline {
		line += " (baseline)"
	}
	if res.Exception != nil {
		line += fmt.Sprintf(" error=%v", res.Exception)
	}
	return line
}
