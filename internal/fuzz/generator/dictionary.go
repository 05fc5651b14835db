// Package generator implements the lazy payload generator described in
// spec.md §4.1: a source layer, an encoder ("dictionary") layer, a
// slice layer, an iterator layer, and the top-level RequestGenerator
// that turns payload tuples into FuzzResults.
package generator

import (
	"strings"

	"github.com/fuzzforge/webfuzz/internal/fuzz/fuzzerr"
	"github.com/fuzzforge/webfuzz/internal/fuzz/plugin"
)

// Dictionary wraps a payload source with an ordered list of encoder
// specifications (spec.md §4.1 layer 2). Each spec is either a single
// encoder name — expanded to every plugin registered under that name
// (exact or category match), emitting one value per matching plugin —
// or a chained form "E1@E2@...@En", applied right-to-left, emitting
// exactly one value per input.
type Dictionary struct {
	source   plugin.PayloadSource
	specs    []string
	registry plugin.Registry
	pending  []plugin.PayloadItem
}

// NewDictionary builds a Dictionary. An empty specs list makes the
// dictionary a transparent passthrough to source.
func NewDictionary(source plugin.PayloadSource, specs []string, registry plugin.Registry) *Dictionary {
	return &Dictionary{source: source, specs: specs, registry: registry}
}

func (d *Dictionary) Name() string { return "dictionary" }

func (d *Dictionary) Close() error { return d.source.Close() }

// Count returns source.Count() * total_expanded_plugins, or -1 if
// source.Count() is unknown.
func (d *Dictionary) Count() int {
	if len(d.specs) == 0 {
		return d.source.Count()
	}
	sc := d.source.Count()
	if sc < 0 {
		return -1
	}
	total := 0
	for _, spec := range d.specs {
		total += d.expandedCount(spec)
	}
	return sc * total
}

func (d *Dictionary) expandedCount(spec string) int {
	if strings.Contains(spec, "@") {
		return 1
	}
	return len(d.registry.EncodersMatching(spec))
}

// Next returns the next encoded payload item, buffering the expansion
// of one source item across multiple Next calls when a single spec
// name matches more than one registered encoder.
func (d *Dictionary) Next() (plugin.PayloadItem, error) {
	if len(d.specs) == 0 {
		return d.source.Next()
	}

	for len(d.pending) == 0 {
		item, err := d.source.Next()
		if err != nil {
			return plugin.PayloadItem{}, err
		}
		if item.Result != nil {
			// Recursive refeed items pass through encoders untouched:
			// there is no string to encode.
			d.pending = append(d.pending, item)
			continue
		}
		for _, spec := range d.specs {
			if err := d.expand(spec, item.Value); err != nil {
				return plugin.PayloadItem{}, err
			}
		}
	}

	next := d.pending[0]
	d.pending = d.pending[1:]
	return next, nil
}

func (d *Dictionary) expand(spec, value string) error {
	if strings.Contains(spec, "@") {
		parts := strings.Split(spec, "@")
		out := value
		for i := len(parts) - 1; i >= 0; i-- {
			enc, ok := d.registry.Encoder(parts[i])
			if !ok {
				return fuzzerr.NoPlugin("encoders", parts[i])
			}
			out = enc.Encode(out)
		}
		d.pending = append(d.pending, plugin.PayloadItem{Value: out})
		return nil
	}

	matches := d.registry.EncodersMatching(spec)
	if len(matches) == 0 {
		return fuzzerr.NoPlugin("encoders", spec)
	}
	for _, enc := range matches {
		d.pending = append(d.pending, plugin.PayloadItem{Value: enc.Encode(value)})
	}
	return nil
}
