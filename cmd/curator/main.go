package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/curator/internal/config"
	dbRedis "github.com/kailas-cloud/curator/internal/db/redis"
	"github.com/kailas-cloud/curator/internal/domain/search/sorting"
	logpkg "github.com/kailas-cloud/curator/internal/logger"
	"github.com/kailas-cloud/curator/internal/metrics"
	"github.com/kailas-cloud/curator/internal/repository/bookmark"
	"github.com/kailas-cloud/curator/internal/transport/api"
	chiTransport "github.com/kailas-cloud/curator/internal/transport/chi"
	healthuc "github.com/kailas-cloud/curator/internal/usecase/health"
	"github.com/kailas-cloud/curator/internal/usecase/poller"
	"github.com/kailas-cloud/curator/internal/usecase/session"
	"github.com/kailas-cloud/curator/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting curator console",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("api", cfg.API.BaseURL),
		zap.Bool("bookmarks", cfg.Bookmarks.Enabled()),
	)

	metrics.RegisterConsoleMetrics()

	apiClient := api.NewClient(&api.Config{
		BaseURL:           cfg.API.BaseURL,
		Token:             cfg.API.Token,
		Timeout:           time.Duration(cfg.API.TimeoutSec) * time.Second,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
		Logger:            logger,
	})

	ctx := context.Background()

	// Pass nil interfaces, not typed nil pointers, when bookmarks are off.
	var (
		bookmarks session.Bookmarks
		healthSvc *healthuc.Service
	)
	if cfg.Bookmarks.Enabled() {
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Bookmarks.Addrs,
			Password: cfg.Bookmarks.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create bookmark store", zap.Error(err))
		}
		defer store.Close()

		timeout := time.Duration(cfg.Bookmarks.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(ctx, timeout); err != nil {
			logger.Fatal("Bookmark store not ready", zap.Error(err))
		}
		logger.Info("Connected to bookmark store", zap.Strings("addrs", cfg.Bookmarks.Addrs))

		bookmarks = bookmark.New(store, cfg.Bookmarks.KeyPrefix, cfg.Bookmarks.TTL())
		healthSvc = healthuc.New(apiClient, store)
	} else {
		healthSvc = healthuc.New(apiClient, nil)
	}

	sessions := session.NewManager(apiClient, bookmarks, sessionOptions(&cfg), logger)

	server := chiTransport.NewServer(sessions, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	logger.Info("Closing sessions", zap.Int("open", sessions.Len()))
	sessions.CloseAll()

	logger.Info("Server stopped gracefully")
}

func sessionOptions(cfg *config.Config) session.Options {
	var sorts []sorting.Option
	for _, o := range cfg.Search.SortOptions {
		sorts = append(sorts, sorting.Option{Field: o.Field, Label: o.Label})
	}
	return session.Options{
		PageSize:       cfg.Search.PageSize,
		SortOptions:    sorts,
		ExportInterval: cfg.Polling.ExportInterval(),
		ImportInterval: cfg.Polling.ImportInterval(),
		ExportMessages: poller.Messages{
			SubmitFailed:  cfg.Messages.SubmitFailed,
			StatusFailed:  cfg.Messages.StatusFailed,
			CleanupFailed: cfg.Messages.CleanupFailed,
		},
		EventBuffer:       cfg.Sessions.EventBuffer,
		MaxClampRefreshes: cfg.Sessions.MaxClampRefreshes,
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits one log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			}
			if id := chi.URLParam(r, "session"); id != "" {
				fields = append(fields, zap.String("session_id", id))
			}
			reqLogger.Info("http_request", fields...)
		})
	}
}
