// Package session ties the search engine and the job flows of one view
// together under a single cancellation scope and event stream.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/curator/internal/domain"
	"github.com/kailas-cloud/curator/internal/domain/query"
	"github.com/kailas-cloud/curator/internal/domain/search/sorting"
	"github.com/kailas-cloud/curator/internal/logger"
	"github.com/kailas-cloud/curator/internal/metrics"
	"github.com/kailas-cloud/curator/internal/usecase/export"
	"github.com/kailas-cloud/curator/internal/usecase/imports"
	"github.com/kailas-cloud/curator/internal/usecase/poller"
	"github.com/kailas-cloud/curator/internal/usecase/search"
)

// Defaults for Options.
const (
	DefaultEventBuffer       = 64
	DefaultMaxClampRefreshes = 2
)

// Options configure a session.
type Options struct {
	PageSize       int
	SortOptions    []sorting.Option
	ExportInterval time.Duration
	ImportInterval time.Duration
	ExportMessages poller.Messages
	EventBuffer    int
	// MaxClampRefreshes bounds the follow-up refreshes after a page clamp.
	MaxClampRefreshes int
}

// Snapshot is the whole view model of a session.
type Snapshot struct {
	ID      string
	Repo    string
	Search  search.State
	Export  export.State
	Imports imports.State
}

// Session is one open view of a repository. Every asynchronous continuation
// runs under the session context; Close cancels it, after which no state
// change or event is observable.
type Session struct {
	id        string
	repo      string
	ctx       context.Context
	cancel    context.CancelFunc
	engine    *search.Engine
	export    *export.Service
	imports   *imports.Service
	bookmarks Bookmarks
	maxClamp  int
	logger    *zap.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
	events chan Event
}

// Open creates a session. An empty id generates one. When rawQuery is empty
// and a bookmark exists for id, the bookmarked address is restored.
// bookmarks may be nil.
func Open(
	ctx context.Context, id, repo, rawQuery string,
	backend Backend, bookmarks Bookmarks, opts Options, base *zap.Logger,
) (*Session, error) {
	if repo == "" {
		return nil, fmt.Errorf("repository is required: %w", domain.ErrInvalidQuery)
	}
	if id == "" {
		id = uuid.NewString()
	}
	log := logger.ForSession(base, id, repo)

	if rawQuery == "" && bookmarks != nil {
		saved, found, err := bookmarks.Load(ctx, repo, id)
		switch {
		case err != nil:
			log.Warn("failed to load bookmark", zap.Error(err))
		case found:
			rawQuery = saved
			log.Debug("restored bookmark", zap.String("query", saved))
		}
	}

	initial, err := query.Decode(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	if opts.MaxClampRefreshes <= 0 {
		opts.MaxClampRefreshes = DefaultMaxClampRefreshes
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        id,
		repo:      repo,
		ctx:       sctx,
		cancel:    cancel,
		bookmarks: bookmarks,
		maxClamp:  opts.MaxClampRefreshes,
		logger:    log,
		events:    make(chan Event, opts.EventBuffer),
	}

	engine, err := search.New(backend.SearcherFor(repo), addressWriter{s: s}, initial)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open session: %w", err)
	}
	s.engine = engine.
		WithPageSize(opts.PageSize).
		WithSortOptions(opts.SortOptions).
		WithLogger(log)

	s.export = export.New(repo, backend, backend, backend, opts.ExportInterval).
		WithMessages(opts.ExportMessages).
		WithLogger(log).
		WithOnChange(func(st export.State) {
			s.emit(Event{Kind: EventExportState, Export: &st})
		}).
		WithOnCleared(func(context.Context) {
			s.emit(Event{Kind: EventSelectionCleared})
		})

	s.imports = imports.New(repo, backend, opts.ImportInterval).
		WithLogger(log).
		WithOnRefresh(func(ctx context.Context) {
			s.emit(Event{Kind: EventImportsRefresh})
			if _, err := s.refresh(ctx); err != nil {
				log.Warn("refresh after import failed", zap.Error(err))
			}
		})

	log.Info("session opened", zap.String("query", query.Encode(initial)))
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Repo returns the repository slug.
func (s *Session) Repo() string { return s.repo }

// Events returns the event stream. It is closed by Close.
func (s *Session) Events() <-chan Event { return s.events }

// Drain returns up to max buffered events without blocking.
func (s *Session) Drain(maxEvents int) []Event {
	var out []Event
	for len(out) < maxEvents {
		select {
		case ev, ok := <-s.events:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
	return out
}

// Activate loads the search page, the pending exports and the import jobs
// concurrently. A failing loader does not cancel the others; their errors are
// joined. Running imports are then watched in the background even when the
// import pass itself reported an error.
func (s *Session) Activate(ctx context.Context) error {
	ctx, stop := s.scope(ctx)
	defer stop()

	var active bool
	var g errgroup.Group
	errs := make([]error, 3)
	g.Go(func() error {
		_, errs[0] = s.refresh(ctx)
		return nil
	})
	g.Go(func() error {
		errs[1] = s.export.Activate(ctx)
		return nil
	})
	g.Go(func() error {
		var pass imports.Pass
		pass, errs[2] = s.imports.Check(ctx)
		active = pass.Active > 0
		return nil
	})
	_ = g.Wait()

	if active {
		s.WatchImports()
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("activate session: %w", err)
	}
	return nil
}

// Refresh re-runs the current search.
func (s *Session) Refresh(ctx context.Context) (search.Outcome, error) {
	ctx, stop := s.scope(ctx)
	defer stop()
	return s.refresh(ctx)
}

// UpdateFacet toggles a facet value.
func (s *Session) UpdateFacet(ctx context.Context, facetKey, valueKey string, selected bool) (search.Outcome, error) {
	return s.intent(ctx, func(ctx context.Context) (search.Outcome, error) {
		return s.engine.UpdateFacet(ctx, facetKey, valueKey, selected)
	})
}

// UpdateMissingFacet toggles the "not tagged" bucket of a facet.
func (s *Session) UpdateMissingFacet(ctx context.Context, facetKey string, selected bool) (search.Outcome, error) {
	return s.intent(ctx, func(ctx context.Context) (search.Outcome, error) {
		return s.engine.UpdateMissingFacet(ctx, facetKey, selected)
	})
}

// UpdateSort changes the sort option.
func (s *Session) UpdateSort(ctx context.Context, field string) (search.Outcome, error) {
	return s.intent(ctx, func(ctx context.Context) (search.Outcome, error) {
		return s.engine.UpdateSort(ctx, field)
	})
}

// UpdateSearch sets the free-text query.
func (s *Session) UpdateSearch(ctx context.Context, text string) (search.Outcome, error) {
	return s.intent(ctx, func(ctx context.Context) (search.Outcome, error) {
		return s.engine.UpdateSearch(ctx, text)
	})
}

// UpdatePage moves to page n.
func (s *Session) UpdatePage(ctx context.Context, n int) (search.Outcome, error) {
	return s.intent(ctx, func(ctx context.Context) (search.Outcome, error) {
		return s.engine.UpdatePage(ctx, n)
	})
}

// RefreshExports re-reads the pending export set.
func (s *Session) RefreshExports(ctx context.Context) error {
	ctx, stop := s.scope(ctx)
	defer stop()
	return s.export.Activate(ctx)
}

// SelectExports narrows the export to ids.
func (s *Session) SelectExports(ids []int64) error {
	if s.ctx.Err() != nil {
		return domain.ErrDisposed
	}
	return s.export.Select(ids)
}

// SubmitExport starts an export of the selected items. ctx bounds only the
// submission; polling continues in the background until the job ends or the
// session closes.
func (s *Session) SubmitExport(ctx context.Context) (string, error) {
	ctx, stop := s.scope(ctx)
	defer stop()
	id, err := s.export.SubmitWithin(ctx, s.ctx)
	if err != nil {
		return "", err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		st, err := s.export.Wait(s.ctx)
		if err != nil {
			return
		}
		s.emit(Event{Kind: EventExportFinished, Export: &st})
	}()
	return id, nil
}

// WaitExport blocks until the running export stops.
func (s *Session) WaitExport(ctx context.Context) (export.State, error) {
	ctx, stop := s.scope(ctx)
	defer stop()
	return s.export.Wait(ctx)
}

// WatchImports polls the import jobs in the background until none runs.
// It is a no-op while a watch is already running.
func (s *Session) WatchImports() {
	if s.ctx.Err() != nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.imports.Watch(s.ctx)
		switch {
		case errors.Is(err, domain.ErrPollerBusy), errors.Is(err, domain.ErrDisposed):
			return
		case err != nil:
			s.logger.Warn("import watch stopped", zap.Error(err))
		}
		st := s.imports.State()
		s.emit(Event{Kind: EventImportsFinished, Imports: &st, Error: errString(err)})
	}()
}

// Snapshot returns the current view model.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:      s.id,
		Repo:    s.repo,
		Search:  s.engine.State(),
		Export:  s.export.State(),
		Imports: s.imports.State(),
	}
}

// Close disposes the session: in-flight continuations are suppressed, the
// background loops stop and the event stream is closed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()

		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
		s.logger.Info("session closed")
	})
}

// intent runs an engine update and follows any page clamp.
func (s *Session) intent(
	ctx context.Context, fn func(ctx context.Context) (search.Outcome, error),
) (search.Outcome, error) {
	ctx, stop := s.scope(ctx)
	defer stop()

	out, err := fn(ctx)
	if err != nil {
		s.searchFailed(err)
		return out, err
	}
	return s.settle(ctx, out)
}

func (s *Session) refresh(ctx context.Context) (search.Outcome, error) {
	out, err := s.engine.Refresh(ctx)
	if err != nil {
		s.searchFailed(err)
		return out, err
	}
	return s.settle(ctx, out)
}

// settle re-runs the search after a clamp, a bounded number of times.
func (s *Session) settle(ctx context.Context, out search.Outcome) (search.Outcome, error) {
	for i := 0; out.Clamped && i < s.maxClamp; i++ {
		next, err := s.engine.Refresh(ctx)
		if err != nil {
			s.searchFailed(err)
			return next, err
		}
		out = next
	}
	if out.Applied {
		s.emit(Event{Kind: EventSearchApplied, Query: s.engine.Query()})
	}
	return out, nil
}

func (s *Session) searchFailed(err error) {
	if errors.Is(err, domain.ErrDisposed) || s.ctx.Err() != nil {
		return
	}
	s.logger.Warn("search failed", zap.Error(err))
	s.emit(Event{Kind: EventSearchFailed, Error: err.Error(), Query: s.engine.Query()})
}

// scope derives a context cancelled by either the caller or Close.
func (s *Session) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	scoped, cancel := context.WithCancel(s.ctx)
	if ctx.Err() != nil {
		cancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	return scoped, func() {
		stop()
		cancel()
	}
}

// emit publishes ev without blocking. A full buffer drops the event.
func (s *Session) emit(ev Event) {
	ev.SessionID = s.id
	ev.At = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ctx.Err() != nil {
		return
	}
	select {
	case s.events <- ev:
	default:
		metrics.EventsDroppedTotal.Inc()
		s.logger.Warn("event stream full, dropping event", zap.String("kind", string(ev.Kind)))
	}
}

// addressWriter mirrors the canonical query into the bookmark store and the
// event stream.
type addressWriter struct {
	s *Session
}

func (a addressWriter) WriteAddress(ctx context.Context, rawQuery string) error {
	a.s.emit(Event{Kind: EventAddressChanged, Query: rawQuery})
	if a.s.bookmarks == nil {
		return nil
	}
	return a.s.bookmarks.Save(ctx, a.s.repo, a.s.id, rawQuery)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
