package curator

import (
	"context"
	"sync"
	"time"

	"github.com/kailas-cloud/curator/internal/usecase/search"
	"github.com/kailas-cloud/curator/internal/usecase/session"
)

// View is one open browsing session of a repository. All methods are safe
// for concurrent use. Close stops every background job of the view.
type View struct {
	sess *session.Session
	obs  *observer

	events    chan Event
	done      chan struct{}
	pumpDone  chan struct{}
	closeOnce sync.Once
}

func newView(sess *session.Session, obs *observer) *View {
	v := &View{
		sess:     sess,
		obs:      obs,
		events:   make(chan Event),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
	go v.pump()
	return v
}

// pump forwards session events until the session closes or the view is
// closed. Undelivered events back up into the session buffer, which drops
// them when full.
func (v *View) pump() {
	defer close(v.pumpDone)
	defer close(v.events)
	for ev := range v.sess.Events() {
		out := toEvent(ev)
		select {
		case v.events <- out:
			v.obs.event(v.sess.ID(), out)
		case <-v.done:
			return
		}
	}
}

// ID returns the view id, usable with Client.ResumeView.
func (v *View) ID() string { return v.sess.ID() }

// Repo returns the repository slug.
func (v *View) Repo() string { return v.sess.Repo() }

// Events returns the event stream. It is closed by Close.
func (v *View) Events() <-chan Event { return v.events }

// State returns a snapshot of the view.
func (v *View) State() ViewState {
	return toViewState(v.sess.Snapshot())
}

// UpdateFacet checks or unchecks one facet value and reloads the page.
func (v *View) UpdateFacet(ctx context.Context, facetKey, valueKey string, selected bool) (Outcome, error) {
	return v.intent("update_facet", func() (search.Outcome, error) {
		return v.sess.UpdateFacet(ctx, facetKey, valueKey, selected)
	})
}

// UpdateMissingFacet checks or unchecks the "not tagged" bucket of a facet.
func (v *View) UpdateMissingFacet(ctx context.Context, facetKey string, selected bool) (Outcome, error) {
	return v.intent("update_missing_facet", func() (search.Outcome, error) {
		return v.sess.UpdateMissingFacet(ctx, facetKey, selected)
	})
}

// UpdateSort switches the sort option.
func (v *View) UpdateSort(ctx context.Context, field string) (Outcome, error) {
	return v.intent("update_sort", func() (search.Outcome, error) {
		return v.sess.UpdateSort(ctx, field)
	})
}

// UpdateSearch sets the free-text query. Facet filters are reset.
func (v *View) UpdateSearch(ctx context.Context, text string) (Outcome, error) {
	return v.intent("update_search", func() (search.Outcome, error) {
		return v.sess.UpdateSearch(ctx, text)
	})
}

// UpdatePage moves to page n.
func (v *View) UpdatePage(ctx context.Context, n int) (Outcome, error) {
	return v.intent("update_page", func() (search.Outcome, error) {
		return v.sess.UpdatePage(ctx, n)
	})
}

// Refresh reloads the current page.
func (v *View) Refresh(ctx context.Context) (Outcome, error) {
	return v.intent("refresh", func() (search.Outcome, error) {
		return v.sess.Refresh(ctx)
	})
}

// RefreshExports re-reads the pending export selection. Every pending item
// becomes selected.
func (v *View) RefreshExports(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { v.obs.observe("refresh_exports", start, err) }()
	return v.sess.RefreshExports(ctx)
}

// SelectExports narrows the next export to ids.
func (v *View) SelectExports(ids []int64) (err error) {
	start := time.Now()
	defer func() { v.obs.observe("select_exports", start, err) }()
	return v.sess.SelectExports(ids)
}

// SubmitExport starts the export job and returns its task id. The job is
// polled in the background; use WaitExport or Events to follow it.
func (v *View) SubmitExport(ctx context.Context) (id string, err error) {
	start := time.Now()
	defer func() { v.obs.observe("submit_export", start, err) }()
	return v.sess.SubmitExport(ctx)
}

// WaitExport blocks until the running export succeeds or fails.
func (v *View) WaitExport(ctx context.Context) (st ExportState, err error) {
	start := time.Now()
	defer func() { v.obs.observe("wait_export", start, err) }()
	raw, err := v.sess.WaitExport(ctx)
	return toExportState(raw), err
}

// WatchImports polls the import jobs in the background until none runs.
func (v *View) WatchImports() {
	v.sess.WatchImports()
}

// Close stops the view. No event or state change is observable afterwards.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		close(v.done)
		v.sess.Close()
		<-v.pumpDone
	})
}

func (v *View) intent(op string, fn func() (search.Outcome, error)) (out Outcome, err error) {
	start := time.Now()
	defer func() { v.obs.observe(op, start, err) }()

	raw, err := fn()
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Applied: raw.Applied, Stale: raw.Stale, Page: raw.Page}, nil
}
