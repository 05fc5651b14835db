// Package builtin supplies a reference set of plugins — payload
// sources, encoders, iterators, a script plugin, and a printer —
// sufficient to exercise the pipeline end to end, registered into a
// plugin.MapRegistry by Register (spec.md §4.1, §9 Domain Stack).
package builtin

import (
	"fmt"
	"strconv"

	"github.com/fuzzforge/webfuzz/internal/fuzz/fuzzerr"
	"github.com/fuzzforge/webfuzz/internal/fuzz/plugin"
)

// wordlistSource reads payload values from an in-memory slice, the Go
// equivalent of wfuzz's file-backed wordlist payload: a single-pass,
// known-length source.
type wordlistSource struct {
	words []string
	i     int
}

// NewWordlistSource builds a payload source over an already-loaded
// list of words (the caller is responsible for reading the wordlist
// file; this keeps the plugin decoupled from any particular I/O path).
func NewWordlistSource(words []string) plugin.PayloadSource {
	return &wordlistSource{words: words}
}

func (s *wordlistSource) Name() string { return "wordlist" }
func (s *wordlistSource) Count() int   { return len(s.words) }
func (s *wordlistSource) Close() error { return nil }

func (s *wordlistSource) Next() (plugin.PayloadItem, error) {
	if s.i >= len(s.words) {
		return plugin.PayloadItem{}, plugin.ErrExhausted
	}
	v := s.words[s.i]
	s.i++
	return plugin.PayloadItem{Value: v}, nil
}

// rangeSource emits the decimal string of every integer in [from, to].
type rangeSource struct {
	from, to, cur int
}

func newRangeSource(params map[string]string) (plugin.PayloadSource, error) {
	from, err := strconv.Atoi(params["from"])
	if err != nil {
		return nil, fuzzerr.BadOptions("from", params["from"])
	}
	to, err := strconv.Atoi(params["to"])
	if err != nil {
		return nil, fuzzerr.BadOptions("to", params["to"])
	}
	if to < from {
		return nil, fuzzerr.BadOptionsf("range: to (%d) must be >= from (%d)", to, from)
	}
	return &rangeSource{from: from, to: to, cur: from}, nil
}

func (s *rangeSource) Name() string { return "range" }
func (s *rangeSource) Count() int   { return s.to - s.from + 1 }
func (s *rangeSource) Close() error { return nil }

func (s *rangeSource) Next() (plugin.PayloadItem, error) {
	if s.cur > s.to {
		return plugin.PayloadItem{}, plugin.ErrExhausted
	}
	v := strconv.Itoa(s.cur)
	s.cur++
	return plugin.PayloadItem{Value: v}, nil
}

// infiniteSource emits "prefix<n>" forever, starting at 0. Meant for
// exercising stats/cancellation against an unbounded source: Count is
// always unknown.
type infiniteSource struct {
	prefix string
	n      int
}

func newInfiniteSource(params map[string]string) (plugin.PayloadSource, error) {
	return &infiniteSource{prefix: params["prefix"]}, nil
}

func (s *infiniteSource) Name() string { return "infinite" }
func (s *infiniteSource) Count() int   { return -1 }
func (s *infiniteSource) Close() error { return nil }

func (s *infiniteSource) Next() (plugin.PayloadItem, error) {
	v := fmt.Sprintf("%s%d", s.prefix, s.n)
	s.n++
	return plugin.PayloadItem{Value: v}, nil
}
