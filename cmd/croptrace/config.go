package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// config holds the server settings. Every flag defaults to its
// environment variable so containers can be configured either way.
type config struct {
	Port         string
	Driver       string
	DatabasePath string
	DatabaseURL  string
	Admin        string
	Queue        bool
	QueueWorkers int
	LogLevel     string
	LogFormat    string
}

func loadConfig(args []string) (config, error) {
	var cfg config

	fs := pflag.NewFlagSet("croptrace", pflag.ContinueOnError)
	fs.StringVar(&cfg.Port, "port", envOrDefault("PORT", "8080"), "HTTP listen port")
	fs.StringVar(&cfg.Driver, "database-driver", envOrDefault("DATABASE_DRIVER", "sqlite"), "ledger store: sqlite, postgres or memory")
	fs.StringVar(&cfg.DatabasePath, "database-path", envOrDefault("DATABASE_PATH", "croptrace.db"), "SQLite database file")
	fs.StringVar(&cfg.DatabaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	fs.StringVar(&cfg.Admin, "admin", envOrDefault("LEDGER_ADMIN", "admin"), "account recorded as ledger administrator")
	fs.BoolVar(&cfg.Queue, "queue", envBool("QUEUE_ENABLED", true), "deliver ledger entries through the River job queue (sqlite only)")
	fs.IntVar(&cfg.QueueWorkers, "queue-workers", envInt("QUEUE_WORKERS", 2), "entry jobs worked concurrently")
	fs.StringVar(&cfg.LogLevel, "log-level", envOrDefault("LOG_LEVEL", "info"), "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", envOrDefault("LOG_FORMAT", "text"), "text or json")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	switch cfg.Driver {
	case "sqlite", "memory":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return config{}, fmt.Errorf("database-url is required for the postgres driver")
		}
	default:
		return config{}, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	return cfg, nil
}

func newLogger(cfg config, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
