package generator

import (
	"errors"
	"io"
	"testing"

	"github.com/fuzzforge/webfuzz/internal/fuzz/fuzzerr"
	"github.com/fuzzforge/webfuzz/internal/fuzz/httpwire"
	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
	"github.com/fuzzforge/webfuzz/internal/fuzz/plugin"
)

// sliceSource is a trivial in-memory PayloadSource for tests.
type sliceSource struct {
	name   string
	values []string
	i      int
}

func (s *sliceSource) Name() string { return s.name }
func (s *sliceSource) Count() int   { return len(s.values) }
func (s *sliceSource) Close() error { return nil }
func (s *sliceSource) Next() (plugin.PayloadItem, error) {
	if s.i >= len(s.values) {
		return plugin.PayloadItem{}, plugin.ErrExhausted
	}
	v := s.values[s.i]
	s.i++
	return plugin.PayloadItem{Value: v}, nil
}

type upperEncoder struct{}

func (upperEncoder) Name() string          { return "upper" }
func (upperEncoder) Category() string      { return "case" }
func (upperEncoder) Encode(s string) string { return s + "!" }

type reverseEncoder struct{}

func (reverseEncoder) Name() string     { return "reverse" }
func (reverseEncoder) Category() string { return "case" }
func (reverseEncoder) Encode(s string) string {
	out := []rune(s)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func newRegistry() *plugin.MapRegistry {
	r := plugin.NewMapRegistry()
	r.RegisterEncoder(upperEncoder{})
	r.RegisterEncoder(reverseEncoder{})
	return r
}

func TestDictionaryChainedEncoderRightToLeft(t *testing.T) {
	r := newRegistry()
	src := &sliceSource{name: "s", values: []string{"ab"}}
	d := NewDictionary(src, []string{"upper@reverse"}, r)

	item, err := d.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// reverse("ab") = "ba", then upper("ba") = "ba!"
	if item.Value != "ba!" {
		t.Fatalf("expected chained right-to-left application, got %q", item.Value)
	}
}

func TestDictionaryCategoryExpansion(t *testing.T) {
	r := newRegistry()
	src := &sliceSource{name: "s", values: []string{"x"}}
	d := NewDictionary(src, []string{"case"}, r)

	var got []string
	for {
		item, err := d.Next()
		if err != nil {
			if errors.Is(err, plugin.ErrExhausted) {
				break
			}
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, item.Value)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 expanded values from category match, got %v", got)
	}
}

func TestDictionaryCountMultipliesBySourceCount(t *testing.T) {
	r := newRegistry()
	src := &sliceSource{name: "s", values: []string{"a", "b", "c"}}
	d := NewDictionary(src, []string{"case"}, r)
	if d.Count() != 6 {
		t.Fatalf("expected count 3*2=6, got %d", d.Count())
	}
}

func TestSliceSkipsRejectedItems(t *testing.T) {
	src := &sliceSource{name: "s", values: []string{"a", "bb", "ccc"}}
	pred := ItemPredicateFunc(func(v string) bool { return len(v) > 1 })
	s := NewSlice(src, pred)

	item, err := s.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Value != "bb" {
		t.Fatalf("expected first surviving item 'bb', got %q", item.Value)
	}
	if s.Count() != -1 {
		t.Fatalf("slice count must be unknown")
	}
}

func TestBuildDictioRejectsIteratorWithSingleSource(t *testing.T) {
	r := newRegistry()
	src := &sliceSource{name: "s", values: []string{"a"}}
	_, err := BuildDictio([]plugin.PayloadSource{src}, "product", r)
	if !errors.Is(err, fuzzerr.ErrBadOptions) {
		t.Fatalf("expected ErrBadOptions, got %v", err)
	}
}

func TestRequestGeneratorProducesOneResultPerValue(t *testing.T) {
	seed, err := httpwire.ParseRequest([]byte("GET /x?id=FUZZ HTTP/1.1\r\nHost: h\r\n\r\n"))
	if err != nil {
		t.Fatalf("parse seed: %v", err)
	}
	r := newRegistry()
	spec := Spec{
		Sources: func() ([]plugin.PayloadSource, error) {
			return []plugin.PayloadSource{&sliceSource{name: "s", values: []string{"1", "2"}}}, nil
		},
		Registry: r,
	}
	ids := &IDCounter{}
	stats := model.NewFuzzStats()
	gen, err := New(spec, seed, ids, stats)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var got []string
	for {
		res, err := gen.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, res.History.Request.Path)
	}
	if len(got) != 2 || got[0] != "/x?id=1" || got[1] != "/x?id=2" {
		t.Fatalf("unexpected substituted paths: %v", got)
	}
}

func TestRequestGeneratorArityMismatchIsFatal(t *testing.T) {
	seed, err := httpwire.ParseRequest([]byte("GET /x?a=FUZZ&b=FUZ2Z HTTP/1.1\r\nHost: h\r\n\r\n"))
	if err != nil {
		t.Fatalf("parse seed: %v", err)
	}
	r := newRegistry()
	spec := Spec{
		Sources: func() ([]plugin.PayloadSource, error) {
			return []plugin.PayloadSource{&sliceSource{name: "s", values: []string{"1"}}}, nil
		},
		Registry: r,
	}
	gen, err := New(spec, seed, &IDCounter{}, model.NewFuzzStats())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = gen.Next()
	if !errors.Is(err, fuzzerr.ErrBadOptions) {
		t.Fatalf("expected arity mismatch to raise ErrBadOptions, got %v", err)
	}
}

func TestRequestGeneratorBaselineEmittedFirst(t *testing.T) {
	seed, err := httpwire.ParseRequest([]byte("GET /x?id=FUZZ HTTP/1.1\r\nHost: h\r\n\r\n"))
	if err != nil {
		t.Fatalf("parse seed: %v", err)
	}
	r := newRegistry()
	spec := Spec{
		Sources: func() ([]plugin.PayloadSource, error) {
			return []plugin.PayloadSource{&sliceSource{name: "s", values: []string{"1"}}}, nil
		},
		Registry: r,
		Baseline: true,
	}
	gen, err := New(spec, seed, &IDCounter{}, model.NewFuzzStats())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	first, err := gen.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.IsBaseline {
		t.Fatalf("expected first result to be the baseline")
	}
	if first.History.Request.Path != "/x?id=" {
		t.Fatalf("expected baseline to substitute markers with empty string, got %q", first.History.Request.Path)
	}
}

func TestRequestGeneratorStopsWhenCancelled(t *testing.T) {
	seed, err := httpwire.ParseRequest([]byte("GET /x?id=FUZZ HTTP/1.1\r\nHost: h\r\n\r\n"))
	if err != nil {
		t.Fatalf("parse seed: %v", err)
	}
	r := newRegistry()
	spec := Spec{
		Sources: func() ([]plugin.PayloadSource, error) {
			return []plugin.PayloadSource{&sliceSource{name: "s", values: []string{"1", "2"}}}, nil
		},
		Registry: r,
	}
	stats := model.NewFuzzStats()
	gen, err := New(spec, seed, &IDCounter{}, stats)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stats.Cancel()

	if _, err := gen.Next(); err != io.EOF {
		t.Fatalf("expected cancellation to end generation with io.EOF, got %v", err)
	}
}
