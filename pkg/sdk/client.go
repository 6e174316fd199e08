package curator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/curator/internal/db"
	dbRedis "github.com/kailas-cloud/curator/internal/db/redis"
	"github.com/kailas-cloud/curator/internal/domain/search/sorting"
	"github.com/kailas-cloud/curator/internal/repository/bookmark"
	"github.com/kailas-cloud/curator/internal/transport/api"
	healthuc "github.com/kailas-cloud/curator/internal/usecase/health"
	"github.com/kailas-cloud/curator/internal/usecase/poller"
	"github.com/kailas-cloud/curator/internal/usecase/session"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultBookmarkTTL      = 30 * 24 * time.Hour
)

// Client is the curator SDK entry point.
type Client struct {
	api       *api.Client
	store     db.Store
	bookmarks *bookmark.Store
	health    *healthuc.Service
	opts      session.Options
	obs       *observer
}

// New creates a Client. When bookmarks are configured, ctx bounds the
// initial readiness check of the store.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.baseURL == "" {
		return nil, errors.New("curator: api base url required (use WithAPI)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	apiClient := api.NewClient(&api.Config{
		BaseURL:           cfg.baseURL,
		Token:             cfg.token,
		Timeout:           cfg.timeout,
		RequestsPerSecond: cfg.rps,
		Burst:             cfg.burst,
		HTTPClient:        cfg.httpClient,
	})

	c := &Client{
		api:  apiClient,
		opts: sessionOptions(cfg),
		obs:  obs,
	}

	if len(cfg.bookmarkAddrs) > 0 {
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.bookmarkAddrs,
			Password: cfg.bookmarkPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("curator: create bookmark store: %w", err)
		}
		if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("curator: bookmark store not ready: %w", err)
		}
		ttl := cfg.bookmarkTTL
		if ttl <= 0 {
			ttl = defaultBookmarkTTL
		}
		c.store = store
		c.bookmarks = bookmark.New(store, cfg.bookmarkPrefix, ttl)
	}

	if c.store != nil {
		c.health = healthuc.New(apiClient, c.store)
	} else {
		c.health = healthuc.New(apiClient, nil)
	}
	return c, nil
}

func sessionOptions(cfg *clientConfig) session.Options {
	var sorts []sorting.Option
	for _, o := range cfg.sortOptions {
		sorts = append(sorts, sorting.Option{Field: o.Field, Label: o.Label})
	}
	return session.Options{
		PageSize:       cfg.pageSize,
		SortOptions:    sorts,
		ExportInterval: cfg.exportInterval,
		ImportInterval: cfg.importInterval,
		ExportMessages: poller.Messages{
			SubmitFailed:  cfg.messages.SubmitFailed,
			StatusFailed:  cfg.messages.StatusFailed,
			CleanupFailed: cfg.messages.CleanupFailed,
		},
		EventBuffer: cfg.eventBuffer,
	}
}

// Close releases all resources. Open views must be closed separately.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks that the content API answers.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.api.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// OpenView opens a view of repo at rawQuery and loads it.
func (c *Client) OpenView(ctx context.Context, repo, rawQuery string) (*View, error) {
	return c.openView(ctx, "", repo, rawQuery)
}

// ResumeView reopens the view id of repo at its bookmarked query. Without a
// bookmark the view starts from the default query.
func (c *Client) ResumeView(ctx context.Context, repo, id string) (*View, error) {
	if id == "" {
		return nil, fmt.Errorf("resume view: %w", ErrInvalidQuery)
	}
	return c.openView(ctx, id, repo, "")
}

func (c *Client) openView(ctx context.Context, id, repo, rawQuery string) (v *View, err error) {
	start := time.Now()
	defer func() { c.obs.observe("open_view", start, err) }()

	var bm session.Bookmarks
	if c.bookmarks != nil {
		bm = c.bookmarks
	}
	sess, err := session.Open(ctx, id, repo, rawQuery, c.api, bm, c.opts, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("open view: %w", err)
	}
	v = newView(sess, c.obs)
	if err = sess.Activate(ctx); err != nil {
		v.Close()
		return nil, fmt.Errorf("open view: %w", err)
	}
	return v, nil
}

// SavedViews lists the bookmarked view ids of repo.
func (c *Client) SavedViews(ctx context.Context, repo string) (ids []string, err error) {
	start := time.Now()
	defer func() { c.obs.observe("saved_views", start, err) }()

	if c.bookmarks == nil {
		return nil, nil
	}
	ids, err = c.bookmarks.Sessions(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("saved views: %w", err)
	}
	return ids, nil
}

// ForgetView deletes the bookmark of view id.
func (c *Client) ForgetView(ctx context.Context, repo, id string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("forget_view", start, err) }()

	if c.bookmarks == nil {
		return nil
	}
	if err = c.bookmarks.Delete(ctx, repo, id); err != nil {
		return fmt.Errorf("forget view: %w", err)
	}
	return nil
}
