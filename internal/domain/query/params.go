package query

import (
	"fmt"
	"net/url"

	"github.com/gorilla/schema"

	"github.com/kailas-cloud/curator/internal/domain"
)

// Params is the typed view of the scalar parameters of a Map.
type Params struct {
	Page   int    `schema:"page"`
	SortBy string `schema:"sortby"`
	Q      string `schema:"q"`
}

var decoder = schema.NewDecoder()

func init() {
	decoder.IgnoreUnknownKeys(true)
}

// Params decodes the scalar parameters. Page defaults to 1 when absent or < 1.
func (m Map) Params() (Params, error) {
	src := url.Values{}
	for _, k := range []string{KeyPage, KeySortBy, KeyQuery} {
		if v := m.Get(k); v != "" {
			src.Set(k, v)
		}
	}
	var p Params
	if err := decoder.Decode(&p, src); err != nil {
		return Params{Page: 1}, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
	}
	if p.Page < 1 {
		p.Page = 1
	}
	return p, nil
}
