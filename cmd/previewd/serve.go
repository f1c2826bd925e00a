package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/livefir/editpreview"
	"github.com/livefir/editpreview/internal/auth"
	"github.com/livefir/editpreview/internal/config"
	"github.com/livefir/editpreview/internal/content"
	"github.com/livefir/editpreview/internal/metrics"
	"github.com/livefir/editpreview/internal/site"
	"github.com/livefir/editpreview/internal/storage"
	"github.com/livefir/editpreview/internal/upload"
)

// previewPrefix is where the preview handler is mounted.
const previewPrefix = "/preview"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the preview HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, err := content.Open(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	renderer, err := site.NewRenderer(cfg.TemplatesDir)
	if err != nil {
		return err
	}
	resolver, err := newResolver(cfg, logger)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Editpreview-Session"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if len(cfg.AllowedOrigins) > 0 {
		corsOpts.AllowedOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.Handler(corsOpts))

	bucket, media, err := newBucket(cfg)
	if err != nil {
		return err
	}
	if media != nil {
		r.Handle(cfg.Storage.BaseURL+"/*", http.StripPrefix(cfg.Storage.BaseURL, media))
	}

	collector := metrics.NewCollector()
	sessions := editpreview.NewMemorySessionStore()
	uploads := upload.NewService(bucket, resolver, upload.Config{
		MaxBytes: cfg.Upload.MaxBytes,
		Rate:     rate.Limit(cfg.Upload.RatePerMinute / 60),
		Burst:    cfg.Upload.Burst,
	}, logger)

	preview := editpreview.New(site.NewProvider(store, renderer, resolver, logger),
		editpreview.WithLogger(logger),
		editpreview.WithSessionStore(sessions),
		editpreview.WithUploader(uploads),
		editpreview.WithMetrics(collector),
		editpreview.WithGrace(cfg.PopoverGrace),
		editpreview.WithMinify(cfg.Minify),
	)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", collector.Handler())
	// The client resolves its endpoints against the page directory.
	r.Get(previewPrefix, func(w http.ResponseWriter, r *http.Request) {
		target := previewPrefix + "/"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
	r.Handle(previewPrefix+"/*", http.StripPrefix(previewPrefix, preview))

	go sweepSessions(ctx, sessions, collector, cfg.SweepInterval, logger)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("preview server listening",
			zap.String("addr", cfg.Listen),
			zap.Strings("templates", renderer.Templates()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newResolver verifies backend tokens when a JWT secret is configured and
// otherwise signs every request in as the development user.
func newResolver(cfg *config.Config, logger *zap.Logger) (auth.Resolver, error) {
	if cfg.Auth.JWTSecret != "" {
		return auth.NewJWTResolver(cfg.Auth.JWTSecret)
	}
	if cfg.Auth.DevUser == "" {
		logger.Warn("no auth configured; every preview request will be refused")
	} else {
		logger.Warn("using development user for every request", zap.String("user", cfg.Auth.DevUser))
	}
	return auth.StaticResolver{User: auth.User{ID: cfg.Auth.DevUser}}, nil
}

// newBucket returns the image bucket and, for the fs backend, the handler
// serving its files.
func newBucket(cfg *config.Config) (storage.Bucket, http.Handler, error) {
	switch cfg.Storage.Backend {
	case config.BackendSupabase:
		b, err := storage.NewSupabaseBucket(storage.SupabaseConfig{
			URL:    cfg.Storage.SupabaseURL,
			APIKey: cfg.Storage.SupabaseKey,
			Bucket: cfg.Storage.Bucket,
		})
		return b, nil, err
	default:
		b, err := storage.NewFSBucket(cfg.Storage.Dir, cfg.Storage.BaseURL)
		if err != nil {
			return nil, nil, err
		}
		if !strings.HasPrefix(cfg.Storage.BaseURL, "/") {
			return b, nil, nil
		}
		return b, b.Handler(), nil
	}
}

func sweepSessions(ctx context.Context, sessions *editpreview.MemorySessionStore, collector *metrics.Collector, every time.Duration, logger *zap.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n := sessions.Sweep(now)
			for i := 0; i < n; i++ {
				collector.IncrementSessionDestroyed()
			}
			if n > 0 {
				logger.Debug("idle sessions removed", zap.Int("count", n))
			}
		}
	}
}
