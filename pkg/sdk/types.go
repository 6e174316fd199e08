package curator

import (
	"time"

	"github.com/kailas-cloud/curator/internal/domain/facet"
	"github.com/kailas-cloud/curator/internal/domain/search/result"
	"github.com/kailas-cloud/curator/internal/usecase/export"
	"github.com/kailas-cloud/curator/internal/usecase/imports"
	"github.com/kailas-cloud/curator/internal/usecase/search"
	"github.com/kailas-cloud/curator/internal/usecase/session"
)

// SortOption is one entry of the sort menu.
type SortOption struct {
	Field string
	Label string
}

// Messages are the user-visible export failure messages.
type Messages struct {
	SubmitFailed  string
	StatusFailed  string
	CleanupFailed string
}

// Item is one record of the repository.
type Item struct {
	ID           int64
	Title        string
	Description  string
	ResourceType string
	PreviewURL   string
}

// FacetValue is one tag value with its count and checked state.
type FacetValue struct {
	Key      string
	Label    string
	Count    int
	Selected bool
}

// FacetGroup is a visible facet with its values in server order.
type FacetGroup struct {
	Key             string
	Label           string
	Values          []FacetValue
	MissingCount    int
	MissingSelected bool
}

// SearchState is the search part of a view.
type SearchState struct {
	Query       string
	Loaded      bool
	Items       []Item
	Facets      []FacetGroup
	TotalCount  int
	NumPages    int
	Page        int
	Sort        SortOption
	SortOptions []SortOption
}

// ExportPhase is the lifecycle of the export job.
type ExportPhase string

// Export phases.
const (
	ExportIdle       ExportPhase = "idle"
	ExportSubmitting ExportPhase = "submitting"
	ExportPolling    ExportPhase = "polling"
	ExportSucceeded  ExportPhase = "succeeded"
	ExportFailed     ExportPhase = "failed"
)

// ExportState is the export part of a view.
type ExportState struct {
	Pending   []Item
	Selected  []int64
	Phase     ExportPhase
	TaskID    string
	URL       string
	Collision bool
	Message   string
	CanExport bool
}

// ImportJob is one course import job.
type ImportJob struct {
	ID     string
	Status string
}

// ImportsState is the import part of a view.
type ImportsState struct {
	Jobs     []ImportJob
	Watching bool
}

// ViewState is a snapshot of a whole view.
type ViewState struct {
	ID      string
	Repo    string
	Search  SearchState
	Export  ExportState
	Imports ImportsState
}

// Outcome describes what a search intent did.
type Outcome struct {
	// Applied is true when the response became the displayed state.
	Applied bool
	// Stale is true when a newer request superseded this one.
	Stale bool
	// Page is the current page after the intent.
	Page int
}

// EventKind tags a view event.
type EventKind string

// View event kinds.
const (
	EventSearchApplied    EventKind = EventKind(session.EventSearchApplied)
	EventSearchFailed     EventKind = EventKind(session.EventSearchFailed)
	EventAddressChanged   EventKind = EventKind(session.EventAddressChanged)
	EventExportState      EventKind = EventKind(session.EventExportState)
	EventExportFinished   EventKind = EventKind(session.EventExportFinished)
	EventSelectionCleared EventKind = EventKind(session.EventSelectionCleared)
	EventImportsRefresh   EventKind = EventKind(session.EventImportsRefresh)
	EventImportsFinished  EventKind = EventKind(session.EventImportsFinished)
)

// Event is one change published by a view.
type Event struct {
	Kind    EventKind
	At      time.Time
	Query   string
	Error   string
	Export  *ExportState
	Imports *ImportsState
}

func toViewState(s session.Snapshot) ViewState {
	return ViewState{
		ID:      s.ID,
		Repo:    s.Repo,
		Search:  toSearchState(s.Search),
		Export:  toExportState(s.Export),
		Imports: toImportsState(s.Imports),
	}
}

func toSearchState(st search.State) SearchState {
	available := st.Sort.Available()
	menu := make([]SortOption, len(available))
	for i, o := range available {
		menu[i] = SortOption{Field: o.Field, Label: o.Label}
	}
	cur := st.Sort.Current()
	return SearchState{
		Query:       st.Query,
		Loaded:      st.Loaded,
		Items:       toItems(st.Items),
		Facets:      toFacetGroups(st.Facets),
		TotalCount:  st.TotalCount,
		NumPages:    st.NumPages,
		Page:        st.Page,
		Sort:        SortOption{Field: cur.Field, Label: cur.Label},
		SortOptions: menu,
	}
}

func toFacetGroups(groups []facet.GroupView) []FacetGroup {
	out := make([]FacetGroup, len(groups))
	for i, g := range groups {
		values := make([]FacetValue, len(g.Values))
		for j, v := range g.Values {
			values[j] = FacetValue{Key: v.Key, Label: v.Label, Count: v.Count, Selected: v.Selected}
		}
		out[i] = FacetGroup{
			Key:             g.Key,
			Label:           g.Label,
			Values:          values,
			MissingCount:    g.MissingCount,
			MissingSelected: g.MissingSelected,
		}
	}
	return out
}

func toItems(items []result.Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = Item{
			ID:           it.ID(),
			Title:        it.Title(),
			Description:  it.Description(),
			ResourceType: it.ResourceType(),
			PreviewURL:   it.PreviewURL(),
		}
	}
	return out
}

func toExportState(st export.State) ExportState {
	return ExportState{
		Pending:   toItems(st.Exports),
		Selected:  st.Selected,
		Phase:     ExportPhase(st.Poller),
		TaskID:    st.TaskID,
		URL:       st.URL,
		Collision: st.Collision,
		Message:   st.Message,
		CanExport: st.ExportButtonVisible,
	}
}

func toImportsState(st imports.State) ImportsState {
	jobs := make([]ImportJob, len(st.Jobs))
	for i, j := range st.Jobs {
		jobs[i] = ImportJob{ID: j.ID(), Status: string(j.Status())}
	}
	return ImportsState{Jobs: jobs, Watching: st.Watching}
}

func toEvent(ev session.Event) Event {
	out := Event{
		Kind:  EventKind(ev.Kind),
		At:    ev.At,
		Query: ev.Query,
		Error: ev.Error,
	}
	if ev.Export != nil {
		e := toExportState(*ev.Export)
		out.Export = &e
	}
	if ev.Imports != nil {
		i := toImportsState(*ev.Imports)
		out.Imports = &i
	}
	return out
}
