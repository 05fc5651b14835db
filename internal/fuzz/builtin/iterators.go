package builtin

import "github.com/fuzzforge/webfuzz/internal/fuzz/plugin"

type namedIteratorFactory struct {
	name string
	new  func(sources []plugin.PayloadSource) plugin.TupleStream
}

func (f namedIteratorFactory) Name() string { return f.name }
func (f namedIteratorFactory) New(sources []plugin.PayloadSource) plugin.TupleStream {
	return f.new(sources)
}

// productIterator emits the cartesian product of its sources, the
// default combination strategy (spec.md §4.1): the rightmost source
// advances fastest. Every source is drained into memory up front,
// since a PayloadSource is single-pass and the product needs to
// revisit earlier sources' values many times over.
type productIterator struct {
	sources []plugin.PayloadSource
	items   [][]plugin.PayloadItem
	idx     []int
	started bool
}

func newProductIterator(sources []plugin.PayloadSource) plugin.TupleStream {
	return &productIterator{sources: sources}
}

func (p *productIterator) Count() int {
	total := 1
	for _, s := range p.sources {
		c := s.Count()
		if c < 0 {
			return -1
		}
		total *= c
	}
	return total
}

func (p *productIterator) init() error {
	p.items = make([][]plugin.PayloadItem, len(p.sources))
	for i, s := range p.sources {
		var all []plugin.PayloadItem
		for {
			item, err := s.Next()
			if err != nil {
				if err == plugin.ErrExhausted {
					break
				}
				return err
			}
			all = append(all, item)
		}
		p.items[i] = all
	}
	p.idx = make([]int, len(p.sources))
	p.started = true
	return nil
}

func (p *productIterator) Next() ([]plugin.PayloadItem, error) {
	if !p.started {
		if err := p.init(); err != nil {
			return nil, err
		}
	}
	for _, it := range p.items {
		if len(it) == 0 {
			return nil, plugin.ErrExhausted
		}
	}
	if p.idx[0] >= len(p.items[0]) {
		return nil, plugin.ErrExhausted
	}

	tuple := make([]plugin.PayloadItem, len(p.items))
	for i, it := range p.items {
		tuple[i] = it[p.idx[i]]
	}

	for i := len(p.idx) - 1; i >= 0; i-- {
		p.idx[i]++
		if p.idx[i] < len(p.items[i]) {
			break
		}
		if i == 0 {
			// Odometer fully wrapped: idx[0] stays at its out-of-range
			// value so the next Next() call reports exhaustion.
			break
		}
		p.idx[i] = 0
	}
	return tuple, nil
}

// zipIterator pairs up sources index-by-index, stopping as soon as
// any source is exhausted (itertools.zip / Python's zip semantics).
type zipIterator struct {
	sources []plugin.PayloadSource
}

func newZipIterator(sources []plugin.PayloadSource) plugin.TupleStream {
	return &zipIterator{sources: sources}
}

func (z *zipIterator) Count() int {
	min := -1
	for _, s := range z.sources {
		c := s.Count()
		if c < 0 {
			return -1
		}
		if min < 0 || c < min {
			min = c
		}
	}
	return min
}

func (z *zipIterator) Next() ([]plugin.PayloadItem, error) {
	tuple := make([]plugin.PayloadItem, 0, len(z.sources))
	for _, s := range z.sources {
		item, err := s.Next()
		if err != nil {
			return nil, err
		}
		tuple = append(tuple, item)
	}
	return tuple, nil
}

// chainIterator concatenates its sources into one logical sequence,
// emitting a single-element tuple per call — for seeds with exactly
// one marker fed by several alternative dictionaries in sequence,
// rather than combined simultaneously.
type chainIterator struct {
	sources []plugin.PayloadSource
	cur     int
}

func newChainIterator(sources []plugin.PayloadSource) plugin.TupleStream {
	return &chainIterator{sources: sources}
}

func (c *chainIterator) Count() int {
	total := 0
	for _, s := range c.sources {
		n := s.Count()
		if n < 0 {
			return -1
		}
		total += n
	}
	return total
}

func (c *chainIterator) Next() ([]plugin.PayloadItem, error) {
	for c.cur < len(c.sources) {
		item, err := c.sources[c.cur].Next()
		if err == nil {
			return []plugin.PayloadItem{item}, nil
		}
		if err != plugin.ErrExhausted {
			return nil, err
		}
		c.cur++
	}
	return nil, plugin.ErrExhausted
}
