// Package filterexpr is the reference plugin.FilterEvaluator: a small
// expression language over a completed FuzzResult's status code,
// response size, and baseline-comparison, good enough to exercise
// SliceStage/FilterStage end to end. A production deployment would
// swap in a richer grammar; the core pipeline only ever depends on
// the plugin.FilterEvaluator/Predicate interfaces.
package filterexpr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
	"github.com/fuzzforge/webfuzz/internal/fuzz/plugin"
)

// Evaluator compiles filter expressions of the form
// "<field> <op> <value>", optionally chained with "&&", e.g.
// "code!=404 && size>0". "||" is accepted as a separator but is treated
// like "&&": every clause must pass.
type Evaluator struct{}

func NewEvaluator() *Evaluator { return &Evaluator{} }

func (Evaluator) Compile(expression string) (plugin.Predicate, error) {
	expr := strings.TrimSpace(expression)
	if expr == "" {
		return &predicate{active: false}, nil
	}

	var clauses []clause
	for _, part := range splitTop(expr) {
		c, err := parseClause(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}
	return &predicate{active: true, clauses: clauses}, nil
}

// splitTop splits on "&&"/"||" without honoring precedence; each
// resulting clause is ANDed together (|| is treated as && for this
// reference grammar, matching a conservative "must all pass" default).
func splitTop(expr string) []string {
	expr = strings.ReplaceAll(expr, "||", "&&")
	return strings.Split(expr, "&&")
}

type op int

const (
	opEq op = iota
	opNe
	opLt
	opGt
)

type field int

const (
	fieldCode field = iota
	fieldSize
	fieldBaseline
)

type clause struct {
	field field
	op    op
	value int
}

func parseClause(s string) (clause, error) {
	for _, candidate := range []struct {
		tok string
		op  op
	}{
		{"!=", opNe},
		{">=", opGt}, // treated as strict '>' in this reference grammar
		{"<=", opLt}, // treated as strict '<'
		{"==", opEq},
		{">", opGt},
		{"<", opLt},
		{"=", opEq},
	} {
		if idx := strings.Index(s, candidate.tok); idx >= 0 {
			name := strings.TrimSpace(s[:idx])
			rawVal := strings.TrimSpace(s[idx+len(candidate.tok):])
			f, err := parseField(name)
			if err != nil {
				return clause{}, err
			}
			v, err := strconv.Atoi(rawVal)
			if err != nil {
				return clause{}, fmt.Errorf("filterexpr: non-numeric value %q in %q", rawVal, s)
			}
			return clause{field: f, op: candidate.op, value: v}, nil
		}
	}
	return clause{}, fmt.Errorf("filterexpr: unrecognized clause %q", s)
}

func parseField(name string) (field, error) {
	switch strings.ToLower(name) {
	case "code", "status", "c":
		return fieldCode, nil
	case "size", "l", "len", "length":
		return fieldSize, nil
	case "baseline":
		return fieldBaseline, nil
	default:
		return 0, fmt.Errorf("filterexpr: unknown field %q", name)
	}
}

type predicate struct {
	active  bool
	clauses []clause
}

func (p *predicate) IsActive() bool { return p.active }

func (p *predicate) IsVisible(res *model.FuzzResult) bool {
	if !p.active {
		return true
	}
	for _, c := range p.clauses {
		if !c.eval(res) {
			return false
		}
	}
	return true
}

func (c clause) eval(res *model.FuzzResult) bool {
	var actual int
	switch c.field {
	case fieldCode:
		if res.History.Response == nil {
			return false
		}
		actual = res.History.Response.StatusCode
	case fieldSize:
		if res.History.Response == nil {
			return false
		}
		actual = len(res.History.Response.Body)
	case fieldBaseline:
		if res.IsBaseline {
			actual = 1
		}
	}
	switch c.op {
	case opEq:
		return actual == c.value
	case opNe:
		return actual != c.value
	case opLt:
		return actual < c.value
	case opGt:
		return actual > c.value
	default:
		return false
	}
}
