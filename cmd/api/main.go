package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"clauseguard/api/internal/analysis"
	"clauseguard/api/internal/app"
	"clauseguard/api/internal/blob"
	"clauseguard/api/internal/config"
	"clauseguard/api/internal/gitarchive"
	"clauseguard/api/internal/logger"
	"clauseguard/api/internal/metrics"
	"clauseguard/api/internal/search"
	"clauseguard/api/internal/session"
	"clauseguard/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Output: os.Stderr})

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create archive dir")
	}

	dataStore := store.NewPostgresStore(db)
	archive := gitarchive.New(cfg.ArchiveDir)
	analyzer := analysis.NewClient(cfg.AnalysisURL, cfg.AnalysisTimeout)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
	}
	searchService.ReindexAllFromPG(ctx)

	opts := app.Options{
		Store:    dataStore,
		Sessions: dataStore,
		Analysis: analyzer,
		Archive:  archive,
		Search:   searchService,
		Metrics:  metrics.New(),
		Log:      log,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Info().Msg("using redis for refresh token storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		opts.Sessions = redisStore
	} else {
		log.Info().Msg("using postgresql for refresh token storage")
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		blobStore, err := blob.New(ctx, blob.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("object storage connection failed")
		}
		opts.Blob = blobStore
	}

	service := app.New(cfg, opts)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)

	mux := http.NewServeMux()
	mux.Handle("/metrics", service.Metrics().Handler())
	mux.Handle("/", httpServer.Handler())

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("clauseguard api listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
