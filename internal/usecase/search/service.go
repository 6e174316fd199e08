package search

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/curator/internal/domain"
	"github.com/kailas-cloud/curator/internal/domain/facet"
	"github.com/kailas-cloud/curator/internal/domain/query"
	"github.com/kailas-cloud/curator/internal/domain/search/result"
	"github.com/kailas-cloud/curator/internal/domain/search/sorting"
	"github.com/kailas-cloud/curator/internal/metrics"
)

// DefaultPageSize is the number of items per search page.
const DefaultPageSize = 20

// Outcome describes what a refresh did to the view state.
type Outcome struct {
	// Applied is true when the response became the current state.
	Applied bool
	// Stale is true when the response was discarded because a newer request
	// had been issued in the meantime.
	Stale bool
	// Clamped is true when the requested page exceeded the page count and was
	// rewritten; the caller is expected to Refresh again.
	Clamped bool
	// Page is the requested page after the refresh.
	Page int
}

// State is a snapshot of the view for the presentation layer.
type State struct {
	Query      string
	Loaded     bool
	Items      []result.Item
	Facets     []facet.GroupView
	Selection  facet.Selection
	Echo       facet.Selection
	TotalCount int
	NumPages   int
	Page       int
	Sort       sorting.Options
}

// Engine owns the query of one search view and keeps the displayed result
// consistent with it. Every response is tagged with a sequence number; only
// the response to the most recently issued request is applied.
type Engine struct {
	searcher Searcher
	address  AddressWriter
	pageSize int
	logger   *zap.Logger

	mu       sync.Mutex
	query    query.Map
	sortOpts []sorting.Option
	sort     sorting.Options
	page     result.Page
	numPages int
	loaded   bool
	issued   uint64
}

// New creates an engine for the given initial query. address may be nil.
func New(searcher Searcher, address AddressWriter, initial query.Map) (*Engine, error) {
	if initial == nil {
		initial = query.Map{}
	}
	e := &Engine{
		searcher: searcher,
		address:  address,
		pageSize: DefaultPageSize,
		logger:   zap.NewNop(),
		query:    initial.Clone(),
		sortOpts: sorting.DefaultOptions(),
	}
	if err := e.resetSort(); err != nil {
		return nil, err
	}
	return e, nil
}

// WithPageSize configures the page size used to compute the page count.
func (e *Engine) WithPageSize(size int) *Engine {
	if size > 0 {
		e.pageSize = size
	}
	return e
}

// WithSortOptions replaces the sort menu. The current option follows sortby.
func (e *Engine) WithSortOptions(opts []sorting.Option) *Engine {
	if len(opts) == 0 {
		return e
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.sortOpts
	e.sortOpts = opts
	if err := e.resetSort(); err != nil {
		e.sortOpts = prev
	}
	return e
}

// WithLogger sets the engine logger.
func (e *Engine) WithLogger(l *zap.Logger) *Engine {
	if l != nil {
		e.logger = l
	}
	return e
}

func (e *Engine) resetSort() error {
	opts, err := sorting.New(e.sortOpts, e.query.Get(query.KeySortBy))
	if err != nil {
		return fmt.Errorf("sort options: %w", err)
	}
	e.sort = opts
	return nil
}

// Refresh issues one search for the current query and applies the response
// if it is still the latest. On error nothing is mutated. When the requested
// page overflows the new page count the page is rewritten to
// max(1, numPages-1) and Outcome.Clamped is set; Refresh does not recurse.
func (e *Engine) Refresh(ctx context.Context) (Outcome, error) {
	e.mu.Lock()
	e.issued++
	seq := e.issued
	raw := query.Encode(e.query)
	e.mu.Unlock()

	start := time.Now()
	page, err := e.searcher.Search(ctx, raw)
	metrics.SearchRefreshDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SearchRefreshTotal.WithLabelValues("error").Inc()
		return Outcome{}, fmt.Errorf("search: %w", err)
	}
	if ctx.Err() != nil {
		metrics.SearchRefreshTotal.WithLabelValues("cancelled").Inc()
		return Outcome{}, fmt.Errorf("search: %w: %w", domain.ErrDisposed, ctx.Err())
	}

	e.mu.Lock()
	if seq != e.issued {
		e.mu.Unlock()
		metrics.SearchRefreshTotal.WithLabelValues("stale").Inc()
		e.logger.Debug("discarding stale search response",
			zap.Uint64("seq", seq), zap.String("query", raw))
		return Outcome{Stale: true}, nil
	}

	e.page = page
	e.loaded = true
	e.numPages = page.NumPages(e.pageSize)

	params, perr := e.query.Params()
	if perr != nil {
		e.logger.Debug("ignoring malformed page parameter", zap.Error(perr))
	}
	out := Outcome{Applied: true, Page: params.Page}
	if e.numPages > 0 && params.Page > e.numPages {
		out.Clamped = true
		out.Page = max(1, e.numPages-1)
		e.query.Set(query.KeyPage, strconv.Itoa(out.Page))
		raw = query.Encode(e.query)
	}
	e.mu.Unlock()

	metrics.SearchRefreshTotal.WithLabelValues("applied").Inc()
	if out.Clamped {
		metrics.PageClampsTotal.Inc()
		e.logger.Info("page out of range, clamped",
			zap.Int("requested", params.Page), zap.Int("page", out.Page))
		e.writeAddress(ctx, raw)
	}
	return out, nil
}

// UpdateFacet toggles a facet value, clears the page and refreshes.
func (e *Engine) UpdateFacet(ctx context.Context, facetKey, valueKey string, selected bool) (Outcome, error) {
	return e.update(ctx, func(q query.Map) error {
		facet.ToggleInQuery(q, facet.ExactToken(facetKey, valueKey), selected)
		q.Del(query.KeyPage)
		return nil
	})
}

// UpdateMissingFacet toggles a facet's "not tagged" bucket, clears the page
// and refreshes.
func (e *Engine) UpdateMissingFacet(ctx context.Context, facetKey string, selected bool) (Outcome, error) {
	return e.update(ctx, func(q query.Map) error {
		facet.ToggleInQuery(q, facet.MissingToken(facetKey), selected)
		q.Del(query.KeyPage)
		return nil
	})
}

// UpdateSort makes field the current sort option and refreshes.
func (e *Engine) UpdateSort(ctx context.Context, field string) (Outcome, error) {
	return e.update(ctx, func(q query.Map) error {
		opts, err := e.sort.Select(field)
		if err != nil {
			return err
		}
		e.sort = opts
		q.Set(query.KeySortBy, field)
		return nil
	})
}

// UpdateSearch sets or clears the free-text query. It also clears the page
// and every selected facet, then refreshes.
func (e *Engine) UpdateSearch(ctx context.Context, text string) (Outcome, error) {
	return e.update(ctx, func(q query.Map) error {
		if text == "" {
			q.Del(query.KeyQuery)
		} else {
			q.Set(query.KeyQuery, text)
		}
		q.Del(query.KeyPage)
		q.Del(query.KeySelectedFacets)
		return nil
	})
}

// UpdatePage moves to page n and refreshes.
func (e *Engine) UpdatePage(ctx context.Context, n int) (Outcome, error) {
	if n < 1 {
		return Outcome{}, fmt.Errorf("%w: page %d", domain.ErrInvalidQuery, n)
	}
	return e.update(ctx, func(q query.Map) error {
		q.Set(query.KeyPage, strconv.Itoa(n))
		return nil
	})
}

// update applies mutate to a copy of the query under the lock, publishes the
// new address and refreshes.
func (e *Engine) update(ctx context.Context, mutate func(q query.Map) error) (Outcome, error) {
	e.mu.Lock()
	next := e.query.Clone()
	if err := mutate(next); err != nil {
		e.mu.Unlock()
		return Outcome{}, err
	}
	e.query = next
	raw := query.Encode(next)
	e.mu.Unlock()

	e.writeAddress(ctx, raw)
	return e.Refresh(ctx)
}

// writeAddress publishes raw. Failures are logged, not returned: the address
// is a mirror of the query, not its source of truth.
func (e *Engine) writeAddress(ctx context.Context, raw string) {
	if e.address == nil {
		return
	}
	if err := e.address.WriteAddress(ctx, raw); err != nil {
		e.logger.Warn("failed to publish address", zap.String("query", raw), zap.Error(err))
	}
}

// Query returns the canonical query string.
func (e *Engine) Query() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return query.Encode(e.query)
}

// State returns a snapshot for presentation. Facet checked state is derived
// from the current query; Echo is the server's view from the last response.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	params, _ := e.query.Params()
	sel := facet.SelectionFromQuery(e.query)
	return State{
		Query:      query.Encode(e.query),
		Loaded:     e.loaded,
		Items:      e.page.Items(),
		Facets:     facet.View(e.page.Facets(), sel),
		Selection:  sel,
		Echo:       e.page.Selected(),
		TotalCount: e.page.TotalCount(),
		NumPages:   e.numPages,
		Page:       params.Page,
		Sort:       e.sort,
	}
}
