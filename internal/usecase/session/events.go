package session

import (
	"time"

	"github.com/kailas-cloud/curator/internal/usecase/export"
	"github.com/kailas-cloud/curator/internal/usecase/imports"
)

// EventKind tags a session event.
type EventKind string

// Session event kinds.
const (
	EventSearchApplied    EventKind = "search.applied"
	EventSearchFailed     EventKind = "search.failed"
	EventAddressChanged   EventKind = "address.changed"
	EventExportState      EventKind = "export.state"
	EventExportFinished   EventKind = "export.finished"
	EventSelectionCleared EventKind = "selection.cleared"
	EventImportsRefresh   EventKind = "imports.refresh"
	EventImportsFinished  EventKind = "imports.finished"
)

// Event is one entry of a session's event stream. Only the fields relevant
// to Kind are set.
type Event struct {
	Kind      EventKind
	SessionID string
	At        time.Time
	Query     string
	Error     string
	Export    *export.State
	Imports   *imports.State
}
