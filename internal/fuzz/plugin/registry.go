package plugin

import (
	"sort"
	"sync"
)

// MapRegistry is a thread-safe, name-keyed Registry implementation.
// Reference encoders/iterators/scripts/printers/payload sources
// (internal/fuzz/builtin) register themselves into one at process
// start; a caller may also build its own and pass custom plugins
// through the same interface.
type MapRegistry struct {
	mu        sync.RWMutex
	payloads  map[string]PayloadFactory
	encoders  map[string]Encoder
	iterators map[string]IteratorFactory
	scripts   map[string]ScriptPlugin
	printers  map[string]Printer
}

// NewMapRegistry returns an empty registry.
func NewMapRegistry() *MapRegistry {
	return &MapRegistry{
		payloads:  make(map[string]PayloadFactory),
		encoders:  make(map[string]Encoder),
		iterators: make(map[string]IteratorFactory),
		scripts:   make(map[string]ScriptPlugin),
		printers:  make(map[string]Printer),
	}
}

// RegisterPayload adds a payload source factory under name.
func (r *MapRegistry) RegisterPayload(name string, f PayloadFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads[name] = f
}

// RegisterEncoder adds an encoder plugin.
func (r *MapRegistry) RegisterEncoder(e Encoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoders[e.Name()] = e
}

// RegisterIterator adds an iterator factory plugin.
func (r *MapRegistry) RegisterIterator(it IteratorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.iterators[it.Name()] = it
}

// RegisterScript adds a script plugin.
func (r *MapRegistry) RegisterScript(s ScriptPlugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts[s.Name()] = s
}

// RegisterPrinter adds a printer plugin.
func (r *MapRegistry) RegisterPrinter(p Printer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printers[p.Name()] = p
}

func (r *MapRegistry) Payload(name string) (PayloadFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.payloads[name]
	return f, ok
}

func (r *MapRegistry) Encoder(name string) (Encoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.encoders[name]
	return e, ok
}

// EncodersMatching returns every registered encoder whose Name or
// Category equals name, in Name-sorted order, for the single-
// encoder-name expansion form (spec.md §4.1: "expands to all plugins
// registered under that name [category or exact]").
func (r *MapRegistry) EncodersMatching(name string) []Encoder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Encoder, 0, 1)
	for _, e := range r.encoders {
		if e.Name() == name || e.Category() == name {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (r *MapRegistry) Iterator(name string) (IteratorFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.iterators[name]
	return it, ok
}

func (r *MapRegistry) Script(name string) (ScriptPlugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scripts[name]
	return s, ok
}

func (r *MapRegistry) Printer(name string) (Printer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.printers[name]
	return p, ok
}
