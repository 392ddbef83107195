package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/svanlent/seller-scraper/internal/api"
	"github.com/svanlent/seller-scraper/internal/cache"
	"github.com/svanlent/seller-scraper/internal/config"
	"github.com/svanlent/seller-scraper/internal/database"
	"github.com/svanlent/seller-scraper/internal/events"
	"github.com/svanlent/seller-scraper/internal/fetcher"
	"github.com/svanlent/seller-scraper/internal/logging"
	"github.com/svanlent/seller-scraper/internal/metrics"
	"github.com/svanlent/seller-scraper/internal/parser"
	"github.com/svanlent/seller-scraper/internal/scraper"
	"github.com/svanlent/seller-scraper/internal/sink"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics()

	pageFetcher, err := fetcher.NewPageFetcher(fetcher.Options{
		BaseURL:        cfg.Marketplace.BaseURL,
		Timeout:        cfg.Marketplace.FetchTimeout,
		UserAgents:     cfg.Marketplace.UserAgents,
		AcceptLanguage: cfg.Marketplace.AcceptLanguage,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build fetcher")
	}

	deps := scraper.Deps{
		Fetcher: pageFetcher,
		Parser:  parser.NewSellerParser(parser.DefaultOptions()),
		Cache:   cache.New(cfg.Cache.Size, cfg.Cache.TTL, m),
		Metrics: m,
	}

	var outboxHealth api.OutboxHealth

	if cfg.Database.Enabled() {
		db, err := connectDatabase(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to ensure schema")
		}
		deps.Store = db

		var publisher *events.Publisher
		if cfg.Redis.Enabled() {
			redisClient := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer redisClient.Close()

			if err := redisClient.Ping(ctx).Err(); err != nil {
				logger.Fatal().Err(err).Msg("failed to connect to redis")
			}

			publisher = events.NewPublisher(db, logger)
			relay := database.NewRelay(db, redisClient, m, logger, database.RelayConfig{
				PollInterval: cfg.Redis.PollInterval,
				BatchSize:    cfg.Redis.BatchSize,
			})
			go func() {
				if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error().Err(err).Msg("relay stopped with error")
				}
			}()
			outboxHealth = relay
		}

		deps.Sink = sink.NewDatabaseSink(db, publisher, m)
	}

	service, err := scraper.NewService(deps, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build lookup service")
	}

	handlers := api.NewHandlers(service, outboxHealth, logger)
	router := api.NewRouter(handlers, m)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info().Msg("shutting down server")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	logger.Info().
		Str("addr", server.Addr).
		Bool("database", deps.Store != nil).
		Bool("events", outboxHealth != nil).
		Msg("server starting")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server failed")
	}

	logger.Info().Msg("server stopped")
}

func connectDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	if cfg.Database.URL != "" {
		return database.NewFromDSN(ctx, cfg.Database.URL)
	}
	return database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
}
