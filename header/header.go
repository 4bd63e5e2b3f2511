// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package header

import (
	"bytes"
	"net/http"
	"sort"
	"strings"
	"unicode"
)

// A Header is an ordered mapping from canonical header name to one or
// more values. The zero value is an empty header ready to use.
//
// A Header is not safe for concurrent mutation. Once a Header has been
// handed out as part of a finished response it should be treated as
// read-only.
type Header struct {
	names  []string
	fields map[string][]string
}

// New returns an empty header.
func New() *Header {
	return &Header{}
}

// FromHTTP copies a net/http header. Because http.Header is a map, the
// resulting name order is sorted rather than receipt order.
func FromHTTP(src http.Header) *Header {
	h := New()
	for _, name := range sortedKeys(src) {
		for _, v := range src[name] {
			h.Add(name, v)
		}
	}
	return h
}

// CanonicalKey returns the canonical form of a header name: the first
// letter and every letter following a hyphen are upper case, all other
// letters are lower case.
func CanonicalKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	upper := true
	for _, r := range key {
		if upper {
			r = unicode.ToUpper(r)
		} else {
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
		upper = r == '-'
	}
	return b.String()
}

// Add appends value to the values stored for name. Existing values are
// kept.
func (h *Header) Add(name, value string) {
	k := CanonicalKey(name)
	if h.fields == nil {
		h.fields = make(map[string][]string)
	}
	if _, ok := h.fields[k]; !ok {
		h.names = append(h.names, k)
	}
	h.fields[k] = append(h.fields[k], value)
}

// Set replaces every value stored for name with value.
func (h *Header) Set(name, value string) {
	k := CanonicalKey(name)
	if h.fields == nil {
		h.fields = make(map[string][]string)
	}
	if _, ok := h.fields[k]; !ok {
		h.names = append(h.names, k)
	}
	h.fields[k] = []string{value}
}

// Get returns the first value stored for name, or the empty string if
// there is none.
func (h *Header) Get(name string) string {
	vs := h.Values(name)
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Values returns the values stored for name in receipt order. The
// returned slice must not be modified.
func (h *Header) Values(name string) []string {
	if h == nil || h.fields == nil {
		return nil
	}
	return h.fields[CanonicalKey(name)]
}

// Has reports whether name is present.
func (h *Header) Has(name string) bool {
	if h == nil || h.fields == nil {
		return false
	}
	_, ok := h.fields[CanonicalKey(name)]
	return ok
}

// HasValue reports whether value is one of the values stored for name.
func (h *Header) HasValue(name, value string) bool {
	for _, v := range h.Values(name) {
		if v == value {
			return true
		}
	}
	return false
}

// Remove deletes name and all of its values.
func (h *Header) Remove(name string) {
	if h == nil || h.fields == nil {
		return
	}
	k := CanonicalKey(name)
	if _, ok := h.fields[k]; !ok {
		return
	}
	delete(h.fields, k)
	for i, n := range h.names {
		if n == k {
			h.names = append(h.names[:i], h.names[i+1:]...)
			break
		}
	}
}

// RemoveValue deletes every occurrence of value from the values of
// name. The name itself remains present, possibly with no values.
func (h *Header) RemoveValue(name, value string) {
	if h == nil || h.fields == nil {
		return
	}
	k := CanonicalKey(name)
	vs, ok := h.fields[k]
	if !ok {
		return
	}
	kept := vs[:0]
	for _, v := range vs {
		if v != value {
			kept = append(kept, v)
		}
	}
	h.fields[k] = kept
}

// Names returns the canonical names in first-receipt order.
func (h *Header) Names() []string {
	if h == nil {
		return nil
	}
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

// Len returns the number of distinct names.
func (h *Header) Len() int {
	if h == nil {
		return 0
	}
	return len(h.names)
}

// Enumerate calls fn once per name, in first-receipt order.
func (h *Header) Enumerate(fn func(name string, values []string)) {
	if h == nil {
		return
	}
	for _, n := range h.names {
		fn(n, h.fields[n])
	}
}

// Clone returns a deep copy of h. Cloning a nil header returns an empty
// header.
func (h *Header) Clone() *Header {
	c := New()
	h.Enumerate(func(name string, values []string) {
		if c.fields == nil {
			c.fields = make(map[string][]string, len(h.names))
		}
		c.names = append(c.names, name)
		c.fields[name] = append([]string(nil), values...)
	})
	return c
}

// HTTP converts h into a net/http header.
func (h *Header) HTTP() http.Header {
	out := make(http.Header, h.Len())
	h.Enumerate(func(name string, values []string) {
		out[name] = append([]string(nil), values...)
	})
	return out
}

// ParseLine parses a single raw header line as delivered by a transport.
//
// The line is split on its first colon. If there is no colon, or the
// colon is the first byte, the line is not a header and ok is false;
// this covers status lines and blank separator lines. The value is
// everything after the colon with leading whitespace and the trailing
// line terminator removed.
func ParseLine(fragment []byte) (name, value string, ok bool) {
	i := bytes.IndexByte(fragment, ':')
	if i <= 0 {
		return "", "", false
	}
	v := bytes.TrimLeftFunc(fragment[i+1:], unicode.IsSpace)
	v = bytes.TrimSuffix(v, []byte("\n"))
	v = bytes.TrimSuffix(v, []byte("\r"))
	return string(fragment[:i]), string(v), true
}

// AddLine parses fragment with ParseLine and, if it is a header line,
// adds the result. It reports whether anything was added.
func (h *Header) AddLine(fragment []byte) bool {
	name, value, ok := ParseLine(fragment)
	if ok {
		h.Add(name, value)
	}
	return ok
}

func sortedKeys(h http.Header) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
