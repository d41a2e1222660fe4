package config

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the immutable process configuration.
type Config struct {
	Server   Server
	Log      Log
	Database Database
	Redis    RedisConfig
	Custo    Custo
	Clients  Clients

	// DumpSchema prints the generated schema and exits.
	DumpSchema bool
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	MonitoringAddr string
	MaxBodySize    int64
	RequestTimeout time.Duration
}

// Log selects the slog handler.
type Log struct {
	Level  string
	Format string
	File   string
}

// Database configures the relational store. An empty URL selects the in-memory store.
type Database struct {
	URL              string
	Isolation        sql.IsolationLevel
	DontCreateSchema bool
	MaxOpenConns     int
	TxTimeout        time.Duration
}

// RedisConfig configures the optional gallery cache.
type RedisConfig struct {
	URL             string
	PoolSize        int
	MinIdleConns    int
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	GalleryCacheTTL time.Duration
}

// Custo points at the customization definition. Empty means the built-in default.
type Custo struct {
	File string
}

// Clients configures the collaborating HTTP services.
type Clients struct {
	UINURL      string
	NotifyURL   string
	NotifyTopic string
	Timeout     time.Duration
}

// Load reads .env (if present), the environment and then command-line flags.
func Load(args []string) (Config, error) {
	_ = godotenv.Load()

	cfg, err := FromEnv()
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("registry", flag.ContinueOnError)
	fs.StringVar(&cfg.Server.Addr, "addr", cfg.Server.Addr, "API listen address")
	fs.StringVar(&cfg.Server.MonitoringAddr, "monitoring-addr", cfg.Server.MonitoringAddr, "metrics listen address (empty: API address)")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "DEBUG, INFO, WARN or ERROR")
	fs.StringVar(&cfg.Log.File, "log-file", cfg.Log.File, "log destination (empty: stdout)")
	fs.StringVar(&cfg.Custo.File, "custo", cfg.Custo.File, "customization definition (YAML)")
	fs.StringVar(&cfg.Database.URL, "database-url", cfg.Database.URL, "PostgreSQL URL (empty: in-memory)")
	fs.BoolVar(&cfg.Database.DontCreateSchema, "dont-create-schema", cfg.Database.DontCreateSchema, "skip DDL at start-up")
	fs.BoolVar(&cfg.DumpSchema, "dump-schema", false, "print the generated schema and exit")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv builds a Config from PR_* environment variables.
func FromEnv() (Config, error) {
	isolation, err := parseIsolation(getEnv("PR_DB_ISOLATION", "repeatable-read"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: Server{
			Addr:           getEnv("PR_ADDR", ":8080"),
			MonitoringAddr: os.Getenv("PR_MONITORING_ADDR"),
			MaxBodySize:    getInt64("PR_MAX_BODY_SIZE", 10*1024*1024),
			RequestTimeout: getDuration("PR_REQUEST_TIMEOUT", 30*time.Second),
		},
		Log: Log{
			Level:  getEnv("PR_LOG_LEVEL", "INFO"),
			Format: getEnv("PR_LOG_FORMAT", "json"),
			File:   os.Getenv("PR_LOG_FILE"),
		},
		Database: Database{
			URL:              os.Getenv("PR_DATABASE_URL"),
			Isolation:        isolation,
			DontCreateSchema: os.Getenv("PR_DONT_CREATE_SCHEMA") == "true",
			MaxOpenConns:     int(getInt64("PR_DB_MAX_OPEN_CONNS", 20)),
			TxTimeout:        getDuration("PR_DB_TX_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			URL:             os.Getenv("PR_REDIS_URL"),
			PoolSize:        int(getInt64("PR_REDIS_POOL_SIZE", 10)),
			MinIdleConns:    int(getInt64("PR_REDIS_MIN_IDLE_CONNS", 1)),
			DialTimeout:     getDuration("PR_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:     getDuration("PR_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:    getDuration("PR_REDIS_WRITE_TIMEOUT", 3*time.Second),
			GalleryCacheTTL: getDuration("PR_GALLERY_CACHE_TTL", time.Minute),
		},
		Custo: Custo{
			File: os.Getenv("PR_CUSTO_FILE"),
		},
		Clients: Clients{
			UINURL:      os.Getenv("PR_UIN_URL"),
			NotifyURL:   os.Getenv("PR_NOTIFY_URL"),
			NotifyTopic: os.Getenv("PR_NOTIFY_TOPIC"),
			Timeout:     getDuration("PR_CLIENT_TIMEOUT", 5*time.Second),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseIsolation(v string) (sql.IsolationLevel, error) {
	switch strings.ToLower(strings.ReplaceAll(v, "_", "-")) {
	case "read-committed":
		return sql.LevelReadCommitted, nil
	case "repeatable-read":
		return sql.LevelRepeatableRead, nil
	case "serializable":
		return sql.LevelSerializable, nil
	default:
		return 0, fmt.Errorf("invalid PR_DB_ISOLATION %q", v)
	}
}
