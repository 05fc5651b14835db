package builtin

import "github.com/fuzzforge/webfuzz/internal/fuzz/plugin"

// Register installs the reference plugin set into r: payload sources
// (range, infinite — wordlist is not registered; callers build it
// directly with NewWordlistSource from their loaded lines), encoders,
// iterators, and the plain printer. The headergrep script is not
// registered here either, since it needs a header name; callers build
// it with NewHeadergrepScript.
func Register(r *plugin.MapRegistry) {
	r.RegisterPayload("range", newRangeSource)
	r.RegisterPayload("infinite", newInfiniteSource)

	r.RegisterEncoder(urlencodeEncoder)
	r.RegisterEncoder(base64Encoder)
	r.RegisterEncoder(md5Encoder)
	r.RegisterEncoder(noneEncoder)

	r.RegisterIterator(namedIteratorFactory{name: "product", new: newProductIterator})
	r.RegisterIterator(namedIteratorFactory{name: "zip", new: newZipIterator})
	r.RegisterIterator(namedIteratorFactory{name: "chain", new: newChainIterator})

	r.RegisterPrinter(NewPlainPrinter())
}

// NewDefaultRegistry builds a MapRegistry with Register already applied.
func NewDefaultRegistry() *plugin.MapRegistry {
	r := plugin.NewMapRegistry()
	Register(r)
	return r
}
