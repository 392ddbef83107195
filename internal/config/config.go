package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Marketplace MarketplaceConfig
	Crawler     CrawlerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Cache       CacheConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type MarketplaceConfig struct {
	// BaseURL is the marketplace origin, e.g. "https://www.example-markt.nl".
	// There is no default; each deployment targets one marketplace.
	BaseURL        string
	AcceptLanguage string
	FetchTimeout   time.Duration
	UserAgents     []string
}

type CrawlerConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	Delay       time.Duration
	// DelayJitter widens the pause between requests to a random duration in
	// [Delay, Delay+DelayJitter]. Zero keeps the fixed interval.
	DelayJitter time.Duration
	FlushEvery  int
	LedgerPath  string
	CSVPath     string
}

type DatabaseConfig struct {
	// URL takes precedence over the discrete fields when set.
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	MaxConns int32
	MinConns int32
}

// Enabled reports whether Postgres persistence is configured at all.
func (d DatabaseConfig) Enabled() bool {
	return d.URL != "" || d.Host != ""
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PollInterval time.Duration
	BatchSize    int
}

// Enabled reports whether event publishing is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type CacheConfig struct {
	Size int
	TTL  time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			Port:            getIntOrDefault("SERVER_PORT", 8080),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getDurationOrDefault("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Marketplace: MarketplaceConfig{
			BaseURL:        getEnvOrDefault("MARKETPLACE_BASE_URL", ""),
			AcceptLanguage: getEnvOrDefault("MARKETPLACE_ACCEPT_LANGUAGE", "nl-NL,nl;q=0.9,en;q=0.8"),
			FetchTimeout:   getDurationOrDefault("MARKETPLACE_FETCH_TIMEOUT", 20*time.Second),
			UserAgents:     getStringSliceOrDefault("MARKETPLACE_USER_AGENTS", defaultUserAgents()),
		},
		Crawler: CrawlerConfig{
			MaxAttempts: getIntOrDefault("CRAWLER_MAX_ATTEMPTS", 3),
			BackoffBase: getDurationOrDefault("CRAWLER_BACKOFF_BASE", 5*time.Second),
			Delay:       getDurationOrDefault("CRAWLER_DELAY", 1*time.Second),
			DelayJitter: getDurationOrDefault("CRAWLER_DELAY_JITTER", 0),
			FlushEvery:  getIntOrDefault("CRAWLER_FLUSH_EVERY", 25),
			LedgerPath:  getEnvOrDefault("CRAWLER_LEDGER_PATH", "data/progress.json"),
			CSVPath:     getEnvOrDefault("CRAWLER_CSV_PATH", "data/sellers.csv"),
		},
		Database: DatabaseConfig{
			URL:      getEnvOrDefault("DATABASE_URL", ""),
			Host:     getEnvOrDefault("DB_HOST", ""),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "seller_scraper"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
			MinConns: int32(getIntOrDefault("DB_MIN_CONNS", 2)),
		},
		Redis: RedisConfig{
			Addr:         getEnvOrDefault("REDIS_ADDR", ""),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
		},
		Cache: CacheConfig{
			Size: getIntOrDefault("CACHE_SIZE", 1024),
			TTL:  getDurationOrDefault("CACHE_TTL", 15*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "console"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Marketplace.BaseURL == "" {
		return fmt.Errorf("MARKETPLACE_BASE_URL is required")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}

	if c.Crawler.MaxAttempts < 1 {
		return fmt.Errorf("CRAWLER_MAX_ATTEMPTS must be at least 1")
	}

	if c.Crawler.FlushEvery < 1 {
		return fmt.Errorf("CRAWLER_FLUSH_EVERY must be at least 1")
	}

	if c.Crawler.Delay < 0 {
		return fmt.Errorf("CRAWLER_DELAY cannot be negative")
	}

	if c.Crawler.DelayJitter < 0 {
		return fmt.Errorf("CRAWLER_DELAY_JITTER cannot be negative")
	}

	if c.Cache.Size < 1 {
		return fmt.Errorf("CACHE_SIZE must be at least 1")
	}

	// The relay reads events out of Postgres; Redis alone cannot publish.
	if c.Redis.Enabled() && !c.Database.Enabled() {
		return fmt.Errorf("REDIS_ADDR requires a configured database for the outbox")
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal, panic")
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be console or json")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func defaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}
