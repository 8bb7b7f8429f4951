package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the tracker service.
type Config struct {
	Addr            string        `yaml:"addr" env:"TRACKER_ADDR" env-default:":8080"`
	DBPath          string        `yaml:"db_path" env:"TRACKER_DB_PATH" env-default:"data/tracker.db"`
	StaticDir       string        `yaml:"static_dir" env:"TRACKER_STATIC_DIR" env-default:"web/dist"`
	JWTSecret       string        `yaml:"jwt_secret" env:"TRACKER_JWT_SECRET" env-required:"true"`
	LogLevel        string        `yaml:"log_level" env:"TRACKER_LOG_LEVEL" env-default:"info"`
	LogFormat       string        `yaml:"log_format" env:"TRACKER_LOG_FORMAT" env-default:"text"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"TRACKER_SHUTDOWN_TIMEOUT" env-default:"5s"`
	EventBuffer     int           `yaml:"event_buffer" env:"TRACKER_EVENT_BUFFER" env-default:"32"`
}

// Load reads .env if present, then the YAML file at path, then the
// environment. A missing file falls back to the environment alone.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("read env: %w", err)
		}
		return cfg, nil
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		var pe *os.PathError
		if !errors.As(err, &pe) {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("read env: %w", err)
		}
	}
	return cfg, nil
}

// Level maps LogLevel onto slog levels, defaulting to info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Logger builds the process logger described by the config.
func (c Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
