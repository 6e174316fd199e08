package session

import (
	"context"

	"github.com/kailas-cloud/curator/internal/usecase/export"
	"github.com/kailas-cloud/curator/internal/usecase/imports"
	"github.com/kailas-cloud/curator/internal/usecase/search"
)

// Bookmarks persists the address of a session across reconnects.
type Bookmarks interface {
	Save(ctx context.Context, repo, sessionID, rawQuery string) error
	Load(ctx context.Context, repo, sessionID string) (rawQuery string, found bool, err error)
}

// Backend is everything a session needs from the content API.
type Backend interface {
	export.PendingStore
	export.ItemFetcher
	export.TaskBackend
	imports.TaskStore
	// SearcherFor binds the search endpoint to one repository.
	SearcherFor(repo string) search.Searcher
}
