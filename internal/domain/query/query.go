// Package query converts between the structured query map of a view and its
// canonical URL query string.
package query

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/kailas-cloud/curator/internal/domain"
)

// Well-known parameter names.
const (
	KeyPage           = "page"
	KeySortBy         = "sortby"
	KeyQuery          = "q"
	KeySelectedFacets = "selected_facets"
)

// unsetMarker marks a patch entry that clears its parameter.
const unsetMarker = "\x00unset"

// Unset returns the explicit "clear this parameter" marker for use in patches.
func Unset() []string { return []string{unsetMarker} }

// IsUnset reports whether values is the explicit unset marker.
func IsUnset(values []string) bool {
	return len(values) == 1 && values[0] == unsetMarker
}

// Map is the structured query state of a view: parameter name to an ordered
// sequence of values. Order within a key is significant; order across keys is not.
type Map map[string][]string

// Decode parses a URL query string (with or without the leading '?').
// Repeated keys become multi-element sequences in encounter order.
// Unknown keys pass through unchanged.
func Decode(raw string) (Map, error) {
	raw = strings.TrimPrefix(raw, "?")
	m := Map{}
	if raw == "" {
		return m, nil
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
	}
	for k, v := range values {
		m[k] = v
	}
	return m, nil
}

// Encode renders the map as a canonical query string prefixed with '?'.
// Keys with no values or with the unset marker are omitted; an empty result
// encodes to "" rather than "?". Keys are sorted for a stable address.
func Encode(m Map) string {
	values := url.Values{}
	for k, v := range m {
		if len(v) == 0 || IsUnset(v) {
			continue
		}
		values[k] = v
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

// Clone returns a deep copy of the map.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

// Get returns the first value for key, or "" if absent.
func (m Map) Get(key string) string {
	v := m[key]
	if len(v) == 0 || IsUnset(v) {
		return ""
	}
	return v[0]
}

// Set replaces the values for key with a single value.
func (m Map) Set(key, value string) { m[key] = []string{value} }

// Del removes key entirely.
func (m Map) Del(key string) { delete(m, key) }

// Apply merges a patch into the map: absent keys are left alone, the unset
// marker or an empty sequence removes the key, anything else replaces it.
func (m Map) Apply(patch Map) {
	for k, v := range patch {
		if len(v) == 0 || IsUnset(v) {
			delete(m, k)
			continue
		}
		m[k] = slices.Clone(v)
	}
}

// Equal reports whether two maps hold the same keys with the same ordered values.
func Equal(a, b Map) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !slices.Equal(av, bv) {
			return false
		}
	}
	return true
}
