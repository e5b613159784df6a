package logger

import (
	"log/slog"
	"os"
)

// Config はロガーの設定
type Config struct {
	Level  slog.Level
	Format string // "json" or "text"
}

// DefaultConfig は環境変数 LOG_LEVEL / LOG_FORMAT を反映したロガー設定を
// 返す。未設定・不正値の場合はINFOレベルのJSON出力になる。
func DefaultConfig() Config {
	cfg := Config{
		Level:  slog.LevelInfo,
		Format: "json",
	}

	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(raw)); err == nil {
			cfg.Level = level
		}
	}
	if format := os.Getenv("LOG_FORMAT"); format == "json" || format == "text" {
		cfg.Format = format
	}

	return cfg
}

// New は新しいロガーを作成し、デフォルトロガーとして設定します
func New(cfg Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: cfg.Level,
	}

	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default: // "json"
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
