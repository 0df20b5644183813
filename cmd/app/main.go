// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"comfy-gateway/internal/config"
	"comfy-gateway/internal/infra/adapters/comfy"
	"comfy-gateway/internal/infra/adapters/storage"
	pg "comfy-gateway/internal/infra/db/postgres"
	"comfy-gateway/internal/infra/logging"
	"comfy-gateway/internal/infra/metrics"
	red "comfy-gateway/internal/infra/redis"
	"comfy-gateway/internal/infra/sched"
	"comfy-gateway/internal/infra/web"
	"comfy-gateway/internal/infra/workflow"
	"comfy-gateway/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (dev secrets, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	if cfg.Database.URL == "" {
		logger.Fatal().Msg("database.url is required")
	}
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Redis.URL).Msg("redis")
	}
	defer redisClient.Close()
	submissions := red.NewSubmissionCache(redisClient, cfg.Redis.TTL)
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Object storage ----
	objects, err := storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("storage")
	}

	// ---- Generation backend ----
	backend, err := comfy.NewClient(cfg.Comfy, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("comfy client")
	}
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := backend.Ping(pingCtx); err != nil {
		logger.Warn().Err(err).Str("server", cfg.Comfy.ServerURL).Msg("generation backend not reachable yet")
	}
	pingCancel()

	// ---- Repositories ----
	userRepo := pg.NewUserRepo(pool)
	imageRepo := pg.NewImageRepo(pool)
	txManager := pg.NewTxManager(pool)
	workflows := workflow.NewStore(cfg.Comfy.WorkflowDir, logger)

	// ---- Use cases ----
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		logger.Warn().Msg("auth.jwt_secret not set; using dev secret (INSECURE)")
		secret = "dev-secret-do-not-use"
	}
	tokens := web.NewAuthManager(secret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	authUC := usecase.NewAuthUseCase(userRepo, txManager, tokens, cfg.Runtime.Dev, logger)

	fetcher := usecase.NewResultFetcher(backend, cfg.Comfy.OutputDir, logger)
	genUC := usecase.NewGenerationUseCase(
		workflows,
		submissions,
		imageRepo,
		objects,
		backend,
		usecase.NewPromptPatcher(usecase.RandomSeed),
		fetcher,
		usecase.GenerationOptions{
			DefaultWorkflow:      cfg.Comfy.DefaultWorkflow,
			DefaultImageWorkflow: cfg.Comfy.DefaultImageWorkflow,
			PresignTTL:           cfg.Storage.PresignTTL,
		},
		logger,
	)

	// ---- HTTP server ----
	srv := web.NewServer(genUC, authUC, tokens, rateLimiter, web.OptionsFromConfig(cfg), logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Output janitor ----
	if cfg.Janitor.Interval > 0 {
		janitor := sched.NewOutputJanitor(fetcher.OutputDir(), usecase.TempSubdir, cfg.Janitor.Interval, cfg.Janitor.MaxAge, logger)
		go func() { _ = janitor.Run(ctx) }()
	}

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}
