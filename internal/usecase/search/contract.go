package search

import (
	"context"

	"github.com/kailas-cloud/curator/internal/domain/search/result"
)

// Searcher issues one search request for an encoded query string.
type Searcher interface {
	Search(ctx context.Context, rawQuery string) (result.Page, error)
}

// AddressWriter publishes the canonical query string of the view, e.g. to a
// bookmark store or the presentation layer's address bar.
type AddressWriter interface {
	WriteAddress(ctx context.Context, rawQuery string) error
}
