package generator

import "github.com/fuzzforge/webfuzz/internal/fuzz/plugin"

// ItemPredicate decides whether a raw payload string survives the
// slice layer (spec.md §4.1 layer 3), before it is ever assembled into
// a tuple or a FuzzResult. This is a lighter-weight cousin of
// plugin.Predicate, which operates on completed FuzzResults.
type ItemPredicate interface {
	IsVisible(value string) bool
}

// ItemPredicateFunc adapts a plain function to ItemPredicate.
type ItemPredicateFunc func(value string) bool

func (f ItemPredicateFunc) IsVisible(value string) bool { return f(value) }

// Slice wraps a payload source with a predicate, skipping items the
// predicate rejects. Its Count is always unknown: skipping makes the
// true remaining count unobservable without draining the source.
type Slice struct {
	source plugin.PayloadSource
	pred   ItemPredicate
}

func NewSlice(source plugin.PayloadSource, pred ItemPredicate) *Slice {
	return &Slice{source: source, pred: pred}
}

func (s *Slice) Name() string { return "slice(" + s.source.Name() + ")" }

func (s *Slice) Close() error { return s.source.Close() }

func (s *Slice) Count() int { return -1 }

func (s *Slice) Next() (plugin.PayloadItem, error) {
	for {
		item, err := s.source.Next()
		if err != nil {
			return plugin.PayloadItem{}, err
		}
		if item.Result != nil || s.pred == nil || s.pred.IsVisible(item.Value) {
			return item, nil
		}
	}
}
