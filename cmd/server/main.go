package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/kubilitics/kubilitics-topoview/internal/api/middleware"
	"github.com/kubilitics/kubilitics-topoview/internal/api/rest"
	"github.com/kubilitics/kubilitics-topoview/internal/api/websocket"
	"github.com/kubilitics/kubilitics-topoview/internal/config"
	"github.com/kubilitics/kubilitics-topoview/internal/k8s"
	"github.com/kubilitics/kubilitics-topoview/internal/models"
	"github.com/kubilitics/kubilitics-topoview/internal/pkg/datasetcache"
	"github.com/kubilitics/kubilitics-topoview/internal/pkg/logger"
	"github.com/kubilitics/kubilitics-topoview/internal/pkg/tracing"
	"github.com/kubilitics/kubilitics-topoview/internal/repository"
	"github.com/kubilitics/kubilitics-topoview/internal/service"
)

const serviceName = "kubilitics-topoview"

func main() {
	if err := run(); err != nil {
		logger.StdLogger().Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	log := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat == "json")
	slog.SetDefault(log)
	log.Info("configuration loaded", "port", cfg.Port, "database", cfg.DatabaseType, "namespace", cfg.Namespace)

	shutdownTracing, err := tracing.Init(serviceName, cfg.TracingEndpoint, cfg.TracingSamplingRate)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	repo, err := repository.Open(cfg.DatabaseType, cfg.DatabasePath, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open layout store: %w", err)
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	datasets := service.NewDatasetService(
		datasetcache.New(cfg.DatasetCacheSize, time.Duration(cfg.DatasetCacheTTLSec)*time.Second),
		log,
	)
	engineOpts := cfg.EngineOptions()
	engineOpts.Logger = log

	hub := websocket.NewHub(ctx)
	go hub.Run()
	defer hub.Stop()

	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.StructuredLog, middleware.Recovery(log), middleware.SecureHeaders)

	handler := rest.NewHandler(datasets, repo, engineOpts)
	rest.SetupHealthRoutes(router, handler)
	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(middleware.MaxBodySize(middleware.DefaultStandardMaxBodyBytes, middleware.DefaultDatasetMaxBodyBytes))
	rest.SetupRoutes(apiRouter, handler)

	wsHandler := websocket.NewHandler(hub, datasets, repo, websocket.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		InputRate:      cfg.WSInputRatePerSec,
		InputBurst:     cfg.WSInputBurst,
		Engine:         engineOpts,
		Logger:         log,
	})
	router.HandleFunc("/ws/views/{view}", wsHandler.ServeWS).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.ResponseRequestIDHeader},
		ExposedHeaders:   []string{middleware.ResponseRequestIDHeader, middleware.TraceIDHeader, "X-Dataset-Generation"},
		AllowCredentials: true,
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           middleware.Tracing(c.Handler(router)),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", srv.Addr, "api", "/api/v1", "websocket", "/ws/views/{view}")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
		defer cancel()
		hub.Stop()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return announceGenerations(gctx, datasets, hub, log) })
	g.Go(func() error { return runClusterSource(gctx, cfg, datasets, log) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server exited")
	return nil
}

// announceGenerations tells websocket clients about every new dataset.
func announceGenerations(ctx context.Context, datasets service.DatasetService, hub *websocket.Hub, log *slog.Logger) error {
	updates, unsubscribe := datasets.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-updates:
			_, gen, err := datasets.Dataset(ctx, "")
			if err != nil {
				continue
			}
			if err := hub.BroadcastGeneration(gen); err != nil && ctx.Err() == nil {
				log.Warn("broadcast generation failed", "error", err)
			}
		}
	}
}

// runClusterSource publishes datasets built from the cluster. Without a
// reachable cluster the server keeps serving datasets pushed over REST.
func runClusterSource(ctx context.Context, cfg *config.Config, datasets service.DatasetService, log *slog.Logger) error {
	clientset, err := k8s.NewClientset(cfg.KubeconfigPath, cfg.KubeContext)
	if err != nil {
		log.Warn("cluster source disabled", "error", err)
		return nil
	}
	src := k8s.NewSource(clientset, cfg.Namespace,
		time.Duration(cfg.InformerResyncSec)*time.Second,
		time.Duration(cfg.RebuildDebounceMs)*time.Millisecond,
		log)
	defer src.Stop()

	syncCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := src.Start(syncCtx); err != nil {
		log.Warn("cluster source disabled", "error", err)
		return nil
	}
	log.Info("cluster source synced", "namespace", cfg.Namespace)
	err = src.Run(ctx, func(ds *models.Dataset) {
		gen := datasets.Publish(ctx, ds)
		log.Debug("cluster dataset published", "generation", gen)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
