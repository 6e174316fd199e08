package facet

import "github.com/kailas-cloud/curator/internal/domain/query"

// Selection records which facet values and "missing" buckets are checked.
type Selection struct {
	Values  map[string]map[string]bool
	Missing map[string]bool
}

// NewSelection returns an empty selection.
func NewSelection() Selection {
	return Selection{
		Values:  make(map[string]map[string]bool),
		Missing: make(map[string]bool),
	}
}

// SelectionFromQuery derives the selection from the selected_facets tokens of
// m. Used eagerly before the first search response arrives. Tokens that do not
// parse are ignored.
func SelectionFromQuery(m query.Map) Selection {
	s := NewSelection()
	for _, token := range m[query.KeySelectedFacets] {
		facetKey, valueKey, missing, ok := ParseToken(token)
		if !ok {
			continue
		}
		if missing {
			s.Missing[facetKey] = true
			continue
		}
		s.set(facetKey, valueKey, true)
	}
	return s
}

func (s Selection) set(facetKey, valueKey string, on bool) {
	values, ok := s.Values[facetKey]
	if !ok {
		values = make(map[string]bool)
		s.Values[facetKey] = values
	}
	values[valueKey] = on
}

// IsSelected reports whether a facet value is checked.
func (s Selection) IsSelected(facetKey, valueKey string) bool {
	return s.Values[facetKey][valueKey]
}

// IsMissingSelected reports whether a facet's "not tagged" bucket is checked.
func (s Selection) IsMissingSelected(facetKey string) bool {
	return s.Missing[facetKey]
}

// ValueView is one facet value annotated with its checked state.
type ValueView struct {
	Value
	Selected bool
}

// GroupView is a visible facet group ready for presentation.
type GroupView struct {
	Key             string
	Label           string
	Values          []ValueView
	MissingCount    int
	MissingSelected bool
}

// View builds the presentation model: visible groups only, in server order.
func View(groups []Group, sel Selection) []GroupView {
	out := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		if !g.Visible() {
			continue
		}
		key := g.Facet.Key()
		values := make([]ValueView, len(g.Values))
		for i, v := range g.Values {
			values[i] = ValueView{Value: v, Selected: sel.IsSelected(key, v.Key)}
		}
		out = append(out, GroupView{
			Key:             key,
			Label:           g.Facet.Label(),
			Values:          values,
			MissingCount:    g.Facet.MissingCount(),
			MissingSelected: sel.IsMissingSelected(key),
		})
	}
	return out
}
