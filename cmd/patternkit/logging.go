package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/patternkit/patternkit/pkg/config"
	"github.com/patternkit/patternkit/pkg/logger"
	"github.com/patternkit/patternkit/pkg/logger/zerolog"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newLogger builds the logger named by cfg.Format writing to w.
func newLogger(cfg config.LogConfig, w io.Writer) (logger.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch cfg.Format {
	case "", "text":
		return logger.New(slog.NewTextHandler(w, opts)), nopCloser{}, nil
	case "json":
		return logger.New(slog.NewJSONHandler(w, opts)), nopCloser{}, nil
	case "zerolog":
		l, closer, err := zerolog.New().FromBuffer(w).Level(cfg.Level).Make()
		if err != nil {
			return nil, nil, err
		}
		return l, closer, nil
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

// loadConfig layers the configuration files and applies flag overrides.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.NewLoader(nil).Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
