package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"mayagen/internal/config"
	"mayagen/internal/domain/model"
	"mayagen/internal/domain/ports/adapter"
	providers "mayagen/internal/infra/adapters/provider"
	apihttp "mayagen/internal/infra/api"
	pg "mayagen/internal/infra/db/postgres"
	"mayagen/internal/infra/logging"
	"mayagen/internal/infra/metrics"
	red "mayagen/internal/infra/redis"
	"mayagen/internal/infra/storage"
	"mayagen/internal/infra/worker"
	"mayagen/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	progressCache := red.NewProgressCache(redisClient, cfg.Redis.TTL)

	// ---- Storage ----
	store, err := storage.NewStore(cfg.Storage.OutputFolder)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage")
	}

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	jobRepo := pg.NewJobRepo(pool, tm)
	batchRepo := pg.NewBatchRepo(pool, tm)
	editBatchRepo := pg.NewEditBatchRepo(pool, tm)

	// ---- Use cases ----
	queuePos := usecase.NewQueuePositionUseCase(jobRepo)
	shares := usecase.NewShareTokenService(cfg.Share.Secret)
	jobUC := usecase.NewJobUseCase(jobRepo, queuePos, logger)
	batchUC := usecase.NewBatchUseCase(batchRepo, jobRepo, tm, shares, logger)
	editUC := usecase.NewEditBatchUseCase(editBatchRepo, jobRepo, tm, shares, logger)
	progressUC := usecase.NewProgressUseCase(jobRepo, batchRepo, editBatchRepo, tm, progressCache, logger)

	// ---- Providers ----
	registry, err := buildProviders(ctx, cfg, store)
	if err != nil {
		logger.Fatal().Err(err).Msg("providers")
	}
	if len(registry.Names()) == 0 {
		logger.Fatal().Msg("no image providers enabled")
	}
	logger.Info().Strs("providers", registry.Names()).Msg("providers ready")

	// ---- Recovery sweep, before any loop starts ----
	sweep := worker.NewRecoverySweep(jobRepo, batchRepo, editBatchRepo, cfg.Worker.RecoveryGrace, logger)
	if err := sweep.RunOnce(ctx); err != nil {
		logger.Fatal().Err(err).Msg("recovery sweep")
	}

	// ---- Expander ----
	expander := worker.NewExpander(batchRepo, editBatchRepo, jobRepo, tm, cfg.Worker.ExpandInterval, logger)
	go expander.Run(ctx)

	// ---- Dispatcher lanes: one per provider, one render at a time ----
	for _, name := range registry.Names() {
		prov, _ := registry.Get(name)
		lanePool := worker.NewPool(1)
		lanePool.Start(ctx)
		defer lanePool.Stop()

		d := worker.NewDispatcher(prov, jobRepo, progressUC, store, cfg.Worker.DispatchInterval, logger)
		go d.Run(ctx, lanePool)
	}

	// ---- Queue depth sampler ----
	go sampleQueueDepth(ctx, jobUC, cfg.Worker.QueueSample, logger)

	// ---- HTTP ----
	srv := apihttp.NewServer(jobUC, batchUC, editUC, progressUC, sweep, store, rateLimiter, cfg, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: srv.Router(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}

func buildProviders(ctx context.Context, cfg *config.Config, store *storage.Store) (*providers.Registry, error) {
	var list []adapter.ImageProvider

	if cfg.Providers.ComfyUI.Enabled {
		c, err := providers.NewComfyUIAdapter(
			cfg.Providers.ComfyUI.ServerAddress,
			cfg.Providers.ComfyUI.Workflows,
			cfg.Providers.ComfyUI.RenderTimeout,
		)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	if cfg.Providers.Flux.Enabled {
		f, err := providers.NewFluxAdapter(
			cfg.Providers.Flux.APIKey,
			cfg.Providers.Flux.OpenAIEndpoint,
			cfg.Providers.Flux.BFLEndpoint,
			cfg.Providers.Flux.Model,
			store,
		)
		if err != nil {
			return nil, err
		}
		list = append(list, f)
	}
	if cfg.Providers.Gemini.Enabled {
		g, err := providers.NewGeminiAdapter(ctx, cfg.Providers.Gemini.APIKey, cfg.Providers.Gemini.Model)
		if err != nil {
			return nil, err
		}
		list = append(list, g)
	}
	if cfg.Providers.Mock.Enabled {
		list = append(list, providers.NewMockAdapter(cfg.Providers.Mock.Delay))
	}

	return providers.NewRegistry(list...), nil
}

// sampleQueueDepth refreshes the per-status queue gauge on a fixed cadence.
func sampleQueueDepth(ctx context.Context, jobUC *usecase.JobUseCase, interval time.Duration, logger *zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counts, err := jobUC.QueueSnapshot(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("queue depth sample failed")
				continue
			}
			for _, status := range []model.JobStatus{
				model.JobStatusQueued, model.JobStatusProcessing,
				model.JobStatusCompleted, model.JobStatusFailed, model.JobStatusCancelled,
			} {
				metrics.SetQueueDepth(string(status), counts[status])
			}
		}
	}
}
