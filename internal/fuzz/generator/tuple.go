package generator

import (
	"github.com/fuzzforge/webfuzz/internal/fuzz/fuzzerr"
	"github.com/fuzzforge/webfuzz/internal/fuzz/plugin"
)

// singleTuple wraps one payload source so it satisfies TupleStream by
// emitting 1-element tuples (spec.md §4.1 layer 4, N=1 case: "a single
// dictionary is wrapped directly, without consulting the iterator
// registry").
type singleTuple struct {
	source plugin.PayloadSource
}

func (t *singleTuple) Count() int { return t.source.Count() }

func (t *singleTuple) Next() ([]plugin.PayloadItem, error) {
	item, err := t.source.Next()
	if err != nil {
		return nil, err
	}
	return []plugin.PayloadItem{item}, nil
}

// BuildDictio composes the final TupleStream over one or more wrapped
// payload sources. With exactly one source and no explicit iterator
// name it returns a direct 1-tuple wrapper; otherwise it looks up
// iteratorName in the registry. Requesting an explicit iterator with a
// single dictionary is a fatal configuration error (spec.md §4.1).
func BuildDictio(sources []plugin.PayloadSource, iteratorName string, registry plugin.Registry) (plugin.TupleStream, error) {
	if len(sources) == 0 {
		return nil, fuzzerr.BadOptions("payloads", "none")
	}
	if len(sources) == 1 {
		if iteratorName != "" {
			return nil, fuzzerr.BadOptionsf("an iterator %q was requested with a single dictionary", iteratorName)
		}
		return &singleTuple{source: sources[0]}, nil
	}

	name := iteratorName
	if name == "" {
		name = "product"
	}
	it, ok := registry.Iterator(name)
	if !ok {
		return nil, fuzzerr.NoPlugin("iterators", name)
	}
	return it.New(sources), nil
}
