package httpwire

import (
	"fmt"
	"sort"
	"strings"
)

// MarkerName returns the literal marker token for the 1-indexed
// position n: MarkerName(1) == "FUZZ", MarkerName(2) == "FUZ2Z", etc.
func MarkerName(n int) string {
	if n <= 1 {
		return "FUZZ"
	}
	return fmt.Sprintf("FUZ%dZ", n)
}

// Markers returns the sorted, deduplicated set of marker positions
// found anywhere in the request (path, header keys/values, body).
func (r Request) Markers() []int {
	seen := map[int]bool{}
	scan := func(s string) {
		for n := 1; n <= maxMarkerScan; n++ {
			if strings.Contains(s, MarkerName(n)) {
				seen[n] = true
			}
		}
	}
	scan(r.Path)
	for _, h := range r.Headers {
		scan(h.Key)
		scan(h.Value)
	}
	scan(string(r.Body))

	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// maxMarkerScan bounds how many marker positions are probed for when
// enumerating a request's markers. Fuzzer configurations rarely exceed
// a handful of simultaneous dictionaries.
const maxMarkerScan = 32

// Substitute returns a deep copy of r with marker positions
// [startAt, startAt+len(values)) replaced by values, in order.
// startAt is 1-indexed, matching MarkerName. Markers outside that
// range (e.g. position 1 when startAt is 2, during seed_payload mode)
// are left untouched.
func (r Request) Substitute(startAt int, values []string) Request {
	out := r.Clone()
	for i, v := range values {
		marker := MarkerName(startAt + i)
		out.Path = strings.ReplaceAll(out.Path, marker, v)
		for j := range out.Headers {
			out.Headers[j].Key = strings.ReplaceAll(out.Headers[j].Key, marker, v)
			out.Headers[j].Value = strings.ReplaceAll(out.Headers[j].Value, marker, v)
		}
		if len(out.Body) > 0 {
			out.Body = []byte(strings.ReplaceAll(string(out.Body), marker, v))
		}
	}
	return out
}

// SubstituteVar replaces every occurrence of a named variable token
// (AllVarStage mode: "$name$" rather than positional FUZ*Z markers)
// with value.
func (r Request) SubstituteVar(name, value string) Request {
	out := r.Clone()
	token := "$" + name + "$"
	out.Path = strings.ReplaceAll(out.Path, token, value)
	for j := range out.Headers {
		out.Headers[j].Key = strings.ReplaceAll(out.Headers[j].Key, token, value)
		out.Headers[j].Value = strings.ReplaceAll(out.Headers[j].Value, token, value)
	}
	if len(out.Body) > 0 {
		out.Body = []byte(strings.ReplaceAll(string(out.Body), token, value))
	}
	return out
}

// VarNames returns the distinct "$name$" variable tokens present in
// the request, used by AllVarStage to iterate over a named variable
// set instead of positional markers.
func (r Request) VarNames() []string {
	seen := map[string]bool{}
	scan := func(s string) {
		for {
			start := strings.IndexByte(s, '$')
			if start < 0 {
				return
			}
			end := strings.IndexByte(s[start+1:], '$')
			if end < 0 {
				return
			}
			name := s[start+1 : start+1+end]
			if name != "" {
				seen[name] = true
			}
			s = s[start+1+end+1:]
		}
	}
	scan(r.Path)
	for _, h := range r.Headers {
		scan(h.Key)
		scan(h.Value)
	}
	scan(string(r.Body))

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
