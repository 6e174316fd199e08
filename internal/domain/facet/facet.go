// Package facet models filterable dimensions, their values, and which of them
// are selected in the current query.
package facet

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kailas-cloud/curator/internal/domain/query"
)

const (
	exactSuffix   = "_exact"
	missingPrefix = "_missing_:"
)

// Descriptor identifies one filterable dimension.
type Descriptor struct {
	key          string
	label        string
	missingCount int
}

// NewDescriptor validates and creates a facet descriptor.
func NewDescriptor(key, label string, missingCount int) (Descriptor, error) {
	if key == "" {
		return Descriptor{}, fmt.Errorf("facet key is required")
	}
	if strings.Contains(key, ":") {
		return Descriptor{}, fmt.Errorf("facet key %q must not contain ':'", key)
	}
	if missingCount < 0 {
		return Descriptor{}, fmt.Errorf("facet %q: negative missing count %d", key, missingCount)
	}
	if label == "" {
		label = key
	}
	return Descriptor{key: key, label: label, missingCount: missingCount}, nil
}

// Key returns the facet key.
func (d Descriptor) Key() string { return d.key }

// Label returns the display label.
func (d Descriptor) Label() string { return d.label }

// MissingCount returns the number of items with no value for this facet.
func (d Descriptor) MissingCount() int { return d.missingCount }

// Value is one selectable value within a facet.
type Value struct {
	Key   string
	Label string
	Count int
}

// Group is a facet descriptor with its values, as delivered by the server.
type Group struct {
	Facet  Descriptor
	Values []Value
}

// Visible reports whether the group has anything to show: a value with a
// nonzero count or a nonzero missing count.
func (g Group) Visible() bool {
	if g.Facet.missingCount > 0 {
		return true
	}
	for _, v := range g.Values {
		if v.Count > 0 {
			return true
		}
	}
	return false
}

// ExactToken is the selected_facets token for a facet value.
func ExactToken(facetKey, valueKey string) string {
	return facetKey + exactSuffix + ":" + valueKey
}

// MissingToken is the selected_facets token for a facet's "not tagged" bucket.
func MissingToken(facetKey string) string {
	return missingPrefix + facetKey + exactSuffix
}

// ParseToken splits a selected_facets token. missing is true for the
// "not tagged" form, in which case valueKey is empty.
func ParseToken(token string) (facetKey, valueKey string, missing, ok bool) {
	if rest, found := strings.CutPrefix(token, missingPrefix); found {
		key, hasSuffix := strings.CutSuffix(rest, exactSuffix)
		if !hasSuffix || key == "" {
			return "", "", false, false
		}
		return key, "", true, true
	}
	left, value, found := strings.Cut(token, ":")
	if !found {
		return "", "", false, false
	}
	key, hasSuffix := strings.CutSuffix(left, exactSuffix)
	if !hasSuffix || key == "" {
		return "", "", false, false
	}
	return key, value, false, true
}

// Toggle returns the selected_facets sequence with token added (appended, if
// not already present) or removed (every occurrence). The input is not modified.
func Toggle(tokens []string, token string, selected bool) []string {
	if selected {
		if slices.Contains(tokens, token) {
			return slices.Clone(tokens)
		}
		return append(slices.Clone(tokens), token)
	}
	return slices.DeleteFunc(slices.Clone(tokens), func(t string) bool { return t == token })
}

// ToggleInQuery applies Toggle to the selected_facets key of m in place.
// An emptied sequence removes the key.
func ToggleInQuery(m query.Map, token string, selected bool) {
	next := Toggle(m[query.KeySelectedFacets], token, selected)
	if len(next) == 0 {
		m.Del(query.KeySelectedFacets)
		return
	}
	m[query.KeySelectedFacets] = next
}
