package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rohits-web03/nimbus/internal/api"
	"github.com/rohits-web03/nimbus/internal/api/handlers"
	"github.com/rohits-web03/nimbus/internal/api/middleware"
	"github.com/rohits-web03/nimbus/internal/auth"
	"github.com/rohits-web03/nimbus/internal/config"
	"github.com/rohits-web03/nimbus/internal/cryptobox"
	"github.com/rohits-web03/nimbus/internal/lock"
	"github.com/rohits-web03/nimbus/internal/observability"
	"github.com/rohits-web03/nimbus/internal/repositories"
	"github.com/rohits-web03/nimbus/internal/services"
	"github.com/rohits-web03/nimbus/internal/upstream"
	"go.uber.org/zap"
)

// @title						Nimbus API
// @version					1.0
// @description				Personal file storage with package quotas, share links, mock payments and an AI assistant.
// @BasePath					/
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
// @securityDefinitions.apikey	CookieAuth
// @in							cookie
// @name						token
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := observability.NewLogger(cfg.IsProduction())
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	db, err := repositories.ConnectDatabase(cfg.DB_URL, log)
	if err != nil {
		return err
	}

	blobs, err := newBlobStore(cfg)
	if err != nil {
		return err
	}

	key, err := cryptobox.KeyFromSecret(cfg.ChatEncryptionKey)
	if err != nil {
		return err
	}
	box, err := cryptobox.New(key)
	if err != nil {
		return err
	}

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	locks := lock.NewKeyed()
	catalog := services.NewCatalog(db)
	quota := services.NewQuota(db, metrics)
	chats := services.NewChatStore(db, box, locks, log)
	ai := services.NewAIProxy(
		upstream.NewChatClient(cfg.Chat.URL, cfg.Chat.APIKey, cfg.UpstreamTimeout),
		upstream.NewHordeClient(cfg.Image.SubmitURL, cfg.Image.StatusURL, cfg.Image.APIKey, cfg.UpstreamTimeout),
		chats,
		services.AIConfig{
			ProModel:     cfg.Chat.ProModel,
			DefaultModel: cfg.Chat.DefaultModel,
			PollInterval: cfg.Image.PollInterval,
			MaxWait:      cfg.Image.MaxWait,
		},
		log,
		metrics,
	)
	jobs := services.NewImageJobs(ctx, ai, log)

	h := handlers.New(handlers.Deps{
		Config:  cfg,
		Log:     log,
		Issuer:  issuer,
		Google:  auth.NewGoogleConfig(cfg.Google),
		Users:   services.NewUsers(db, catalog, log),
		Catalog: catalog,
		Quota:   quota,
		Storage: services.NewStorage(db, blobs, quota, locks, log, metrics),
		Chats:   chats,
		Ledger:  services.NewLedger(db, catalog, locks, cfg.FrontendURL, log, metrics),
		AI:      ai,
		Jobs:    jobs,
	})

	limiter := middleware.NewRateLimiter(cfg.AIRatePerMinute)
	limiter.StartCleanup(ctx, time.Minute, 10*time.Minute)

	server := &http.Server{
		Addr: fmt.Sprintf(":%s", cfg.Port),
		Handler: api.SetupRouter(h, api.RouterDeps{
			Config:  cfg,
			Log:     log,
			Metrics: metrics,
			Issuer:  issuer,
			Limiter: limiter,
		}),
		// Uploads and synchronous image generation hold the connection for a
		// long time, so only the header read is kept short.
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Image.MaxWait + time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting Nimbus server",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Environment),
			zap.String("storage", cfg.StorageBackend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
	jobs.Wait()

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	return nil
}

func newBlobStore(cfg *config.Config) (repositories.BlobStore, error) {
	if cfg.StorageBackend == "r2" {
		store, err := repositories.NewR2BlobStore(
			cfg.R2.AccessKeyID,
			cfg.R2.SecretAccessKey,
			cfg.R2.AccountID,
			cfg.R2.BucketName,
			cfg.R2.Region,
		)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return repositories.NewFilesystemBlobStore(cfg.MediaRoot)
}
