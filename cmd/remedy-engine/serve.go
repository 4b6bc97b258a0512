package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-remedy/internal/api"
	"github.com/miradorstack/mirador-remedy/internal/cache"
	"github.com/miradorstack/mirador-remedy/internal/config"
	"github.com/miradorstack/mirador-remedy/internal/engine"
	"github.com/miradorstack/mirador-remedy/internal/history"
	"github.com/miradorstack/mirador-remedy/internal/metrics"
	"github.com/miradorstack/mirador-remedy/internal/monitor"
	"github.com/miradorstack/mirador-remedy/internal/repo"
	"github.com/miradorstack/mirador-remedy/internal/services"
	"github.com/miradorstack/mirador-remedy/internal/state"
	"github.com/miradorstack/mirador-remedy/internal/utils"
)

const pruneInterval = time.Hour

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor, the gRPC API and the metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts.configPath)
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		return err
	}

	logger, logCloser, err := utils.NewFileLogger(cfg.Logging.Level, cfg.Logging.JSON, cfg.Logging.File)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	logger.Info("starting mirador-remedy", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		return err
	}

	agent := repo.NewAgentClient(cfg.Agent)

	catalog, err := engine.LoadCatalog(cfg.Catalog.Path, logger)
	if err != nil {
		logger.Error("failed to load action catalog", slog.Any("error", err))
		return err
	}
	registry := engine.NewRegistry()
	if err := catalog.Register(registry, repo.Binder(agent, logger)); err != nil {
		logger.Error("failed to register actions", slog.Any("error", err))
		return err
	}

	store, closeStore := openStateStore(ctx, cfg, logger)
	defer closeStore()
	if err := state.Restore(ctx, store, registry, logger); err != nil {
		logger.Warn("starting with fresh action statistics", slog.Any("error", err))
	}

	var historyRepo services.HistoryRepo
	if cfg.History.Enabled {
		repository, err := history.OpenAt(cfg.History.Path)
		if err != nil {
			logger.Warn("resolution history unavailable", slog.Any("error", err))
		} else {
			defer repository.Close()
			historyRepo = repository
		}
	}

	verifier := engine.NewVerifier(cfg.VerifierConfig(), agent, logger)
	controller := engine.NewController(cfg.RetryConfig(), registry, agent, verifier, nil, logger)
	remedyService := services.NewRemedyService(logger, controller, store, historyRepo)

	server, err := api.NewServer(cfg.Server, remedyService)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gRPC server listening", slog.String("address", server.Address()))
		if err := server.Run(gctx); err != nil {
			return fmt.Errorf("gRPC server: %w", err)
		}
		return nil
	})

	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server shutdown", slog.Any("error", err))
			}
			return nil
		})
	}

	if cfg.Monitor.Enabled {
		mon := monitor.New(monitor.Config{
			ScanInterval:    cfg.Monitor.ScanInterval,
			IdleBackoffBase: cfg.Monitor.IdleBackoffBase,
			IdleBackoffStep: cfg.Monitor.IdleBackoffStep,
			IdleBackoffMax:  cfg.Monitor.IdleBackoffMax,
			SuccessCooldown: cfg.Monitor.SuccessCooldown,
		}, agent, agent, agent, remedyService, logger)
		g.Go(func() error { return mon.Run(gctx) })
	}

	if historyRepo != nil && cfg.History.Retention > 0 {
		g.Go(func() error {
			pruneHistory(gctx, remedyService, cfg.History.Retention, logger)
			return nil
		})
	}

	err = g.Wait()
	if err != nil {
		logger.Error("mirador-remedy exited", slog.Any("error", err))
	}
	logger.Info("mirador-remedy stopped", slog.String("uptime", utils.FormatUptime(controller.Stats().Uptime())))
	return err
}

// openStateStore builds the configured state backend. A Valkey backend that
// cannot be reached falls back to process memory.
func openStateStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (state.Store, func()) {
	switch cfg.State.Backend {
	case "file":
		return state.NewFileStore(cfg.State.Path), func() {}
	case "valkey":
		provider, err := cache.NewValkeyProvider(ctx, cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey unavailable, keeping action state in memory", slog.Any("error", err))
			return state.NewCacheStore(cache.NewMemoryProvider(), cfg.State.Key, 0), func() {}
		}
		return state.NewCacheStore(provider, cfg.State.Key, cfg.Cache.StateTTL), func() { _ = provider.Close() }
	case "memory":
		return state.NewCacheStore(cache.NewMemoryProvider(), cfg.State.Key, 0), func() {}
	default:
		return state.NopStore{}, func() {}
	}
}

func pruneHistory(ctx context.Context, svc *services.RemedyService, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		if _, err := svc.PruneHistory(ctx, retention); err != nil && ctx.Err() == nil {
			logger.Warn("history pruning failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
