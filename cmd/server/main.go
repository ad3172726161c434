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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/songclash/internal/bus"
	"github.com/mcdev12/songclash/internal/catalog"
	"github.com/mcdev12/songclash/internal/game"
	"github.com/mcdev12/songclash/internal/router"
	"github.com/mcdev12/songclash/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx := context.Background()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.RedisURL).Msg("invalid redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping redis")
	}
	roomStore := store.NewRedisStore(redisClient)

	roomBus, err := bus.NewNATSBus(cfg.NATSURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}

	songCatalog, closeCatalog, err := setupCatalog(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up song catalog")
	}

	engine := game.NewEngine(roomStore, roomBus, songCatalog)
	rtr := router.NewRouter(roomStore, roomBus, engine, router.DefaultConnectionConfig())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", rtr.HandleWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet, http.MethodPost},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	server := &http.Server{
		Addr:        cfg.Addr,
		Handler:     c.Handler(mux),
		IdleTimeout: 120 * time.Second,
	}

	log.Info().
		Str("addr", cfg.Addr).
		Str("redis_url", cfg.RedisURL).
		Str("nats_url", cfg.NATSURL).
		Msg("starting songclash server")

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	engine.Stop()
	roomBus.Close()
	closeCatalog()
	redisClient.Close()
	log.Info().Msg("shutdown complete")
}

// setupCatalog picks the song catalog backend: Postgres when a database
// is configured, otherwise a static file.
func setupCatalog(ctx context.Context, cfg Config) (catalog.Catalog, func(), error) {
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		return catalog.NewPostgresCatalog(pool), pool.Close, nil
	}
	if cfg.CatalogFile != "" {
		static, err := catalog.LoadStaticCatalog(cfg.CatalogFile)
		if err != nil {
			return nil, nil, err
		}
		return static, func() {}, nil
	}
	return nil, nil, errors.New("no catalog configured: set DATABASE_URL or CATALOG_FILE")
}
