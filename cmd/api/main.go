package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"canopy/internal/app"
	"canopy/internal/cache"
	"canopy/internal/config"
	"canopy/internal/logging"
	"canopy/internal/media"
	"canopy/internal/search"
	"canopy/internal/store"
)

func main() {
	logger := logging.New("info", "json")
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config invalid")
	}
	logger = logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.Pool{MaxOpen: cfg.DBMaxConns})
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	dataStore := store.NewPostgresStore(db)

	var counts *cache.InboxCounts
	if strings.TrimSpace(cfg.RedisURL) != "" {
		counts, err = cache.NewInboxCounts(cfg.RedisURL, cfg.InboxCountTTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer counts.Close()
		logger.Info().Dur("ttl", cfg.InboxCountTTL).Msg("inbox counts cached in redis")
	}

	var index search.Index
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
		index = meiliClient
	}
	searchService := search.NewService(index, dataStore, logger)
	if index != nil {
		go reindex(ctx, dataStore, searchService, logger)
	}

	cleaner, err := mediaCleaner(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("minio client failed")
	}

	service := app.New(cfg, dataStore, counts, searchService, cleaner, logger)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("canopy api listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	searchService.Wait()
}

// mediaCleaner deletes purged media from MinIO when an endpoint is configured
// and otherwise only resolves references.
func mediaCleaner(cfg config.Config, logger zerolog.Logger) (*media.Cleaner, error) {
	if strings.TrimSpace(cfg.MinioEndpoint) == "" {
		return media.NewResolverOnly(media.Resolver{Bucket: cfg.MinioBucket, PublicBaseURL: cfg.MediaPublicBaseURL}, logger), nil
	}
	return media.NewMinioCleaner(media.MinioConfig{
		Endpoint:      cfg.MinioEndpoint,
		AccessKey:     cfg.MinioAccessKey,
		SecretKey:     cfg.MinioSecretKey,
		Bucket:        cfg.MinioBucket,
		UseSSL:        cfg.MinioUseSSL,
		PublicBaseURL: cfg.MediaPublicBaseURL,
	}, logger)
}

// reindex pushes every active item once the index reports healthy.
func reindex(ctx context.Context, dataStore *store.PostgresStore, searchService *search.Service, logger zerolog.Logger) {
	deadline := time.Now().Add(time.Minute)
	for !searchService.Ready() {
		if time.Now().After(deadline) {
			logger.Warn().Msg("search index not healthy, skipping reindex")
			return
		}
		time.Sleep(2 * time.Second)
	}

	hits, err := dataStore.ActiveTitles(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("load items for reindex")
		return
	}
	records := make([]search.Record, 0, len(hits))
	for _, hit := range hits {
		records = append(records, search.HitRecord(hit))
	}
	searchService.Reindex(records)
	logger.Info().Int("records", len(records)).Msg("search index rebuilt")
}
