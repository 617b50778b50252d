package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string

	PostgresDSN   string
	RedisAddr     string
	ClickHouseDSN string

	// Scrape credentials. An empty value disables the platform.
	SerpAPIKey      string
	TikTokAPIKey    string
	MetaAccessToken string

	// Browser scraping knobs
	ScrapeHeadless   bool
	ScrapeRegion     string
	ScrapeMaxResults int
	ScrapeTimeout    time.Duration

	// Batch scheduling
	BatchIncrementalHours int
	BatchFullDay          time.Weekday
	BatchFullHour         int
	RunLockTTL            time.Duration

	// Media mirror (disabled unless AWS_ACCESS_KEY_ID is set)
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string
	S3Bucket           string
	S3KeyPrefix        string

	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	// ClickHouse connection pooling configuration
	CHMaxOpenConns    int
	CHMaxIdleConns    int
	CHConnMaxLifetime time.Duration
	CHConnMaxIdleTime time.Duration

	// Tracing configuration
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8788")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	// Generous write timeout: POST /runs executes the batch synchronously.
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 15*time.Minute)
	cfg.ServiceName = getenv("SERVICE_NAME", "adscope-collector")

	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable")
	cfg.RedisAddr = getenv("REDIS_ADDR", "")
	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "")

	cfg.SerpAPIKey = getenv("SERPAPI_KEY", "")
	cfg.TikTokAPIKey = getenv("TIKTOK_API_KEY", "")
	cfg.MetaAccessToken = getenv("META_ACCESS_TOKEN", "")

	cfg.ScrapeHeadless = envBool("SCRAPE_HEADLESS", true)
	cfg.ScrapeRegion = getenv("SCRAPE_REGION", "KR")
	cfg.ScrapeMaxResults = envInt("SCRAPE_MAX_RESULTS", 30)
	cfg.ScrapeTimeout = envDuration("SCRAPE_TIMEOUT", 10*time.Minute)

	cfg.BatchIncrementalHours = envInt("BATCH_INCREMENTAL_HOURS", 4)
	cfg.BatchFullDay = time.Weekday(envInt("BATCH_FULL_DAY", int(time.Sunday)))
	cfg.BatchFullHour = envInt("BATCH_FULL_HOUR", 3)
	cfg.RunLockTTL = envDuration("RUN_LOCK_TTL", 2*time.Hour)

	cfg.AWSAccessKeyID = getenv("AWS_ACCESS_KEY_ID", "")
	cfg.AWSSecretAccessKey = getenv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AWSRegion = getenv("AWS_REGION", "ap-northeast-2")
	cfg.S3Bucket = getenv("S3_BUCKET", "")
	cfg.S3KeyPrefix = getenv("S3_KEY_PREFIX", "ads")

	// Database connection pooling configuration
	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 10)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	// ClickHouse connection pooling configuration
	cfg.CHMaxOpenConns = envInt("CH_MAX_OPEN_CONNS", 10)
	cfg.CHMaxIdleConns = envInt("CH_MAX_IDLE_CONNS", 5)
	cfg.CHConnMaxLifetime = envDuration("CH_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.CHConnMaxIdleTime = envDuration("CH_CONN_MAX_IDLE_TIME", 1*time.Minute)

	// Tracing configuration
	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}
