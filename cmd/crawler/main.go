package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/svanlent/seller-scraper/internal/config"
	"github.com/svanlent/seller-scraper/internal/crawler"
	"github.com/svanlent/seller-scraper/internal/database"
	"github.com/svanlent/seller-scraper/internal/events"
	"github.com/svanlent/seller-scraper/internal/fetcher"
	"github.com/svanlent/seller-scraper/internal/logging"
	"github.com/svanlent/seller-scraper/internal/metrics"
	"github.com/svanlent/seller-scraper/internal/parser"
	"github.com/svanlent/seller-scraper/internal/ratelimit"
	"github.com/svanlent/seller-scraper/internal/sink"
)

func main() {
	var (
		startID    = flag.Int64("start", 0, "First seller ID of the range (inclusive)")
		endID      = flag.Int64("end", 0, "Last seller ID of the range (inclusive)")
		idList     = flag.String("ids", "", "Comma-separated seller IDs (alternative to -start/-end)")
		idsFile    = flag.String("ids-file", "", "File with one seller ID per line")
		ledgerPath = flag.String("ledger", "", "Progress ledger path (overrides CRAWLER_LEDGER_PATH)")
		csvPath    = flag.String("csv", "", "CSV output path (overrides CRAWLER_CSV_PATH)")
		delay      = flag.Duration("delay", 0, "Delay between sellers (overrides CRAWLER_DELAY)")
		noBar      = flag.Bool("no-progress", false, "Disable the progress bar")
	)
	godotenv.Load()
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *ledgerPath != "" {
		cfg.Crawler.LedgerPath = *ledgerPath
	}
	if *csvPath != "" {
		cfg.Crawler.CSVPath = *csvPath
	}
	if *delay > 0 {
		cfg.Crawler.Delay = *delay
	}

	// Every log line of one run shares a run ID, so interleaved runs against
	// the same ledger stay distinguishable.
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format).
		With().Str("run_id", uuid.NewString()).Logger()

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	sellerIDs, err := collectSellerIDs(*startID, *endID, *idList, *idsFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("no seller ids to crawl")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("shutdown signal received")
		cancel()
	}()

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

	var db *database.DB
	if cfg.Database.Enabled() {
		db, err = connectDatabase(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to ensure schema")
		}
	}

	var ledger crawler.Ledger
	if db != nil {
		ledger, err = database.NewPgLedger(ctx, db)
	} else {
		ledger, err = crawler.NewProgressLedger(cfg.Crawler.LedgerPath)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open progress ledger")
	}

	var publisher *events.Publisher
	if db != nil && cfg.Redis.Enabled() {
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
	}

	csvSink, err := sink.NewCSVSink(cfg.Crawler.CSVPath, m)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create csv sink")
	}
	recordSink := sink.RecordSink(csvSink)
	if db != nil {
		recordSink = sink.NewMultiSink(csvSink, sink.NewDatabaseSink(db, publisher, m))
	}

	var pacer ratelimit.Pacer = ratelimit.NewIntervalPacer(cfg.Crawler.Delay)
	if cfg.Crawler.DelayJitter > 0 {
		pacer = ratelimit.NewJitterPacer(cfg.Crawler.Delay, cfg.Crawler.Delay+cfg.Crawler.DelayJitter)
	}

	driver, err := crawler.NewDriver(crawler.Deps{
		Fetcher: pageFetcher,
		Parser:  parser.NewSellerParser(parser.DefaultOptions()),
		Ledger:  ledger,
		Sink:    recordSink,
		Pacer:   pacer,
		Metrics: m,
	}, crawler.Options{
		MaxAttempts: cfg.Crawler.MaxAttempts,
		BackoffBase: cfg.Crawler.BackoffBase,
		FlushEvery:  cfg.Crawler.FlushEvery,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build crawl driver")
	}

	if !*noBar {
		bar := progressbar.NewOptions64(int64(len(sellerIDs)),
			progressbar.OptionSetDescription("crawling sellers"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
		)
		driver.OnProgress(func(int64, string) {
			_ = bar.Add(1)
		})
	}

	logger.Info().
		Int("ids", len(sellerIDs)).
		Str("csv", cfg.Crawler.CSVPath).
		Bool("database", db != nil).
		Bool("events", publisher != nil).
		Msg("starting crawl run")

	summary, runErr := driver.Run(ctx, sellerIDs)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error().Err(runErr).Msg("crawl aborted")
	}

	logSummary(logger, summary)

	if err := recordSink.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close sinks")
	}
	if err := csvSink.Validate(); err != nil {
		logger.Warn().Err(err).Msg("csv output check")
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		os.Exit(1)
	}
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

// collectSellerIDs builds the run's ID list from exactly one source: an
// inclusive -start/-end range, a -ids list, or a -ids-file.
func collectSellerIDs(start, end int64, idList, idsFile string) ([]int64, error) {
	sources := 0
	if start > 0 || end > 0 {
		sources++
	}
	if idList != "" {
		sources++
	}
	if idsFile != "" {
		sources++
	}
	if sources == 0 {
		return nil, fmt.Errorf("provide -start/-end, -ids or -ids-file")
	}
	if sources > 1 {
		return nil, fmt.Errorf("-start/-end, -ids and -ids-file are mutually exclusive")
	}

	switch {
	case idList != "":
		return parseIDList(strings.Split(idList, ","))
	case idsFile != "":
		return readIDFile(idsFile)
	default:
		if start <= 0 || end < start {
			return nil, fmt.Errorf("range needs 0 < start <= end, got %d..%d", start, end)
		}
		ids := make([]int64, 0, end-start+1)
		for id := start; id <= end; id++ {
			ids = append(ids, id)
		}
		return ids, nil
	}
}

func parseIDList(parts []string) ([]int64, error) {
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid seller id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no seller ids given")
	}
	return ids, nil
}

// readIDFile reads one seller ID per line; blank lines and lines starting
// with # are skipped.
func readIDFile(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ids file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ids file: %w", err)
	}
	return parseIDList(lines)
}

func logSummary(logger zerolog.Logger, summary *crawler.Summary) {
	logger.Info().
		Int("processed", summary.Processed).
		Int("ok", summary.OK).
		Int("empty", summary.Empty).
		Int("errors", summary.Errors).
		Int("skipped", summary.Skipped).
		Msg("crawl summary")
}
