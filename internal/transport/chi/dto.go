package chi

import (
	"slices"
	"time"

	"github.com/kailas-cloud/curator/internal/domain/facet"
	"github.com/kailas-cloud/curator/internal/domain/search/result"
	"github.com/kailas-cloud/curator/internal/usecase/export"
	"github.com/kailas-cloud/curator/internal/usecase/imports"
	"github.com/kailas-cloud/curator/internal/usecase/search"
	"github.com/kailas-cloud/curator/internal/usecase/session"
)

type errorCode string

const (
	codeBadRequest          errorCode = "bad_request"
	codeValidationFailed    errorCode = "validation_failed"
	codeUnauthorized        errorCode = "unauthorized"
	codeNotFound            errorCode = "not_found"
	codeNoSelection         errorCode = "no_selection"
	codeBusy                errorCode = "busy"
	codeDisposed            errorCode = "session_closed"
	codeUpstreamRejected    errorCode = "upstream_rejected"
	codeUpstreamInvalid     errorCode = "upstream_invalid_payload"
	codeUpstreamUnavailable errorCode = "upstream_unavailable"
	codeInternal            errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

type upstreamErrorResponse struct {
	Code           errorCode `json:"code"`
	Message        string    `json:"message"`
	UpstreamStatus int       `json:"upstream_status"`
	Detail         string    `json:"detail,omitempty"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type itemResponse struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	ResourceType string `json:"resource_type"`
	PreviewURL   string `json:"preview_url,omitempty"`
}

type facetValueResponse struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Count    int    `json:"count"`
	Selected bool   `json:"selected"`
}

type facetGroupResponse struct {
	Key             string               `json:"key"`
	Label           string               `json:"label"`
	Values          []facetValueResponse `json:"values"`
	MissingCount    int                  `json:"missing_count"`
	MissingSelected bool                 `json:"missing_selected"`
}

type sortOptionResponse struct {
	Field string `json:"field"`
	Label string `json:"label"`
}

type selectionResponse struct {
	Values  map[string][]string `json:"values"`
	Missing []string            `json:"missing"`
}

type searchResponse struct {
	Query      string               `json:"query"`
	Loaded     bool                 `json:"loaded"`
	Items      []itemResponse       `json:"items"`
	Facets     []facetGroupResponse `json:"facets"`
	Echo       selectionResponse    `json:"server_selection"`
	TotalCount int                  `json:"total_count"`
	NumPages   int                  `json:"num_pages"`
	Page       int                  `json:"page"`
	Sort       sortOptionResponse   `json:"sort"`
	SortMenu   []sortOptionResponse `json:"sort_options"`
}

type exportResponse struct {
	Exports             []itemResponse `json:"exports"`
	Selected            []int64        `json:"selected"`
	State               string         `json:"state"`
	TaskID              string         `json:"task_id,omitempty"`
	URL                 string         `json:"url,omitempty"`
	Collision           bool           `json:"collision"`
	Message             string         `json:"message,omitempty"`
	ExportButtonVisible bool           `json:"export_button_visible"`
}

type jobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type importsResponse struct {
	Jobs     []jobResponse `json:"jobs"`
	Watching bool          `json:"watching"`
}

type viewResponse struct {
	ID      string          `json:"id"`
	Repo    string          `json:"repo"`
	Search  searchResponse  `json:"search"`
	Export  exportResponse  `json:"export"`
	Imports importsResponse `json:"imports"`
}

type intentResponse struct {
	Applied bool         `json:"applied"`
	Stale   bool         `json:"stale"`
	Page    int          `json:"page"`
	View    viewResponse `json:"view"`
}

type eventResponse struct {
	Kind      string           `json:"kind"`
	SessionID string           `json:"session_id"`
	At        time.Time        `json:"at"`
	Query     string           `json:"query,omitempty"`
	Error     string           `json:"error,omitempty"`
	Export    *exportResponse  `json:"export,omitempty"`
	Imports   *importsResponse `json:"imports,omitempty"`
}

type eventListResponse struct {
	Items []eventResponse `json:"items"`
}

func viewToResponse(v session.Snapshot) viewResponse {
	return viewResponse{
		ID:      v.ID,
		Repo:    v.Repo,
		Search:  searchToResponse(v.Search),
		Export:  exportToResponse(v.Export),
		Imports: importsToResponse(v.Imports),
	}
}

func searchToResponse(st search.State) searchResponse {
	groups := make([]facetGroupResponse, len(st.Facets))
	for i, g := range st.Facets {
		values := make([]facetValueResponse, len(g.Values))
		for j, v := range g.Values {
			values[j] = facetValueResponse{Key: v.Key, Label: v.Label, Count: v.Count, Selected: v.Selected}
		}
		groups[i] = facetGroupResponse{
			Key:             g.Key,
			Label:           g.Label,
			Values:          values,
			MissingCount:    g.MissingCount,
			MissingSelected: g.MissingSelected,
		}
	}

	available := st.Sort.Available()
	menu := make([]sortOptionResponse, len(available))
	for i, o := range available {
		menu[i] = sortOptionResponse{Field: o.Field, Label: o.Label}
	}
	current := st.Sort.Current()

	return searchResponse{
		Query:      st.Query,
		Loaded:     st.Loaded,
		Items:      itemsToResponse(st.Items),
		Facets:     groups,
		Echo:       selectionToResponse(st.Echo),
		TotalCount: st.TotalCount,
		NumPages:   st.NumPages,
		Page:       st.Page,
		Sort:       sortOptionResponse{Field: current.Field, Label: current.Label},
		SortMenu:   menu,
	}
}

func selectionToResponse(sel facet.Selection) selectionResponse {
	out := selectionResponse{Values: map[string][]string{}, Missing: []string{}}
	for fk, vals := range sel.Values {
		keys := make([]string, 0, len(vals))
		for vk, on := range vals {
			if on {
				keys = append(keys, vk)
			}
		}
		slices.Sort(keys)
		out.Values[fk] = keys
	}
	for fk, on := range sel.Missing {
		if on {
			out.Missing = append(out.Missing, fk)
		}
	}
	slices.Sort(out.Missing)
	return out
}

func itemsToResponse(items []result.Item) []itemResponse {
	out := make([]itemResponse, len(items))
	for i, it := range items {
		out[i] = itemResponse{
			ID:           it.ID(),
			Title:        it.Title(),
			Description:  it.Description(),
			ResourceType: it.ResourceType(),
			PreviewURL:   it.PreviewURL(),
		}
	}
	return out
}

func exportToResponse(st export.State) exportResponse {
	selected := st.Selected
	if selected == nil {
		selected = []int64{}
	}
	return exportResponse{
		Exports:             itemsToResponse(st.Exports),
		Selected:            selected,
		State:               string(st.Poller),
		TaskID:              st.TaskID,
		URL:                 st.URL,
		Collision:           st.Collision,
		Message:             st.Message,
		ExportButtonVisible: st.ExportButtonVisible,
	}
}

func importsToResponse(st imports.State) importsResponse {
	jobs := make([]jobResponse, len(st.Jobs))
	for i, j := range st.Jobs {
		jobs[i] = jobResponse{ID: j.ID(), Status: string(j.Status())}
	}
	return importsResponse{Jobs: jobs, Watching: st.Watching}
}

func eventToResponse(ev session.Event) eventResponse {
	out := eventResponse{
		Kind:      string(ev.Kind),
		SessionID: ev.SessionID,
		At:        ev.At.UTC(),
		Query:     ev.Query,
		Error:     ev.Error,
	}
	if ev.Export != nil {
		e := exportToResponse(*ev.Export)
		out.Export = &e
	}
	if ev.Imports != nil {
		i := importsToResponse(*ev.Imports)
		out.Imports = &i
	}
	return out
}
