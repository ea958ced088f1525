package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/clarityreplay/internal/config"
	"github.com/kailas-cloud/clarityreplay/internal/db"
	"github.com/kailas-cloud/clarityreplay/internal/db/files"
	"github.com/kailas-cloud/clarityreplay/internal/domain/lims"
	"github.com/kailas-cloud/clarityreplay/internal/metrics"
	"github.com/kailas-cloud/clarityreplay/internal/repository/exchange"
	chiTransport "github.com/kailas-cloud/clarityreplay/internal/transport/chi"
	healthuc "github.com/kailas-cloud/clarityreplay/internal/usecase/health"
	"github.com/kailas-cloud/clarityreplay/internal/usecase/playback"
	"github.com/kailas-cloud/clarityreplay/internal/usecase/record"
	"github.com/kailas-cloud/clarityreplay/internal/version"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		port int
		mode string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Clarity API from recordings, or record through to a live server",
		Long: `Starts an HTTP server exposing the Clarity REST layout under /api/v2/.

In playback mode (default) every call is answered from the recording store;
calls without a recording get a 404 exception naming what is missing.
In record mode calls go to clarity.server and the answers are saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if port != 0 {
				cfg.HTTP.Port = port
			}
			if mode != "" {
				cfg.Replay.Mode = mode
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides http.port)")
	cmd.Flags().StringVar(&mode, "mode", "", "playback or record (overrides replay.mode)")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	logger.Info("Starting clarityreplay server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("mode", cfg.Replay.Mode),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("store_driver", cfg.Store.Driver),
	)

	store, err := openStore(ctx, cfg.Store, cfg.Replay.Mode == config.ModeRecord)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("Connected to recording store")

	// Register replay metrics explicitly (no init())
	metrics.RegisterReplayMetrics()

	api, upstream, cleanup, err := buildAPI(ctx, cfg, store, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	healthSvc := healthuc.New(store, upstream)
	server := chiTransport.NewServer(api, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(xmlRecoverer(logger))
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

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// buildAPI assembles the lims.API for the configured mode. upstream is nil
// in playback mode. cleanup releases whatever buildAPI started.
func buildAPI(
	ctx context.Context,
	cfg config.Config,
	store db.Store,
	logger *zap.Logger,
) (lims.API, healthuc.UpstreamChecker, func(), error) {
	repo := exchange.New(store)

	if cfg.Replay.Mode == config.ModeRecord {
		client, err := newClarityClient(cfg.Clarity, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("Recording from Clarity", zap.String("server", client.BaseURL()))
		return record.New(client, repo, logger), client, func() {}, nil
	}

	var popts []playback.Option
	if cfg.Replay.UpdatesDir != "" {
		updates, err := files.NewStore(files.Config{Dir: cfg.Replay.UpdatesDir, Create: true})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open updates dir: %w", err)
		}
		popts = append(popts, playback.WithUpdates(exchange.New(updates)))
	}
	if cfg.Replay.Strict {
		popts = append(popts, playback.WithStrict())
	}
	if cfg.Replay.Cache {
		popts = append(popts, playback.WithCache())
	}
	player := playback.New(repo, logger, popts...)

	if !cfg.Replay.Watch {
		return player, nil, func() {}, nil
	}
	w, err := playback.NewWatcher(cfg.Store.Dir, player, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	w.Start(ctx)
	logger.Info("Watching recordings", zap.String("dir", cfg.Store.Dir))
	return player, nil, func() {
		if err := w.Close(); err != nil {
			logger.Warn("Failed to stop watcher", zap.Error(err))
		}
	}, nil
}
