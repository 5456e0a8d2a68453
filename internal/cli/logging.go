package cli

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/zoobzio/capitan"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/zoobzio/stash"
	"github.com/zoobzio/stash/internal/config"
)

// NewLogger builds a console logger on out, teeing to a rotated file when
// cfg.File is set.
func NewLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var w io.Writer = zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.DateTime,
	}
	if cfg.File != "" {
		w = zerolog.MultiLevelWriter(w, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// HookSignals logs stash binding events.
func HookSignals(log zerolog.Logger) {
	capitan.Hook(stash.BindingHydrated, func(_ context.Context, e *capitan.Event) {
		key, _ := stash.KeyKey.From(e)
		source, _ := stash.KeySource.From(e)
		d, _ := stash.KeyDuration.From(e)
		log.Debug().Str("key", key).Str("source", source).Dur("took", d).Msg("hydrated")
	})

	capitan.Hook(stash.BindingHydrateFailed, func(_ context.Context, e *capitan.Event) {
		key, _ := stash.KeyKey.From(e)
		errMsg, _ := stash.KeyError.From(e)
		log.Warn().Str("key", key).Str("error", errMsg).Msg("using fallback value")
	})

	capitan.Hook(stash.BindingStateChanged, func(_ context.Context, e *capitan.Event) {
		key, _ := stash.KeyKey.From(e)
		oldState, _ := stash.KeyOldState.From(e)
		newState, _ := stash.KeyNewState.From(e)
		log.Debug().Str("key", key).Str("from", oldState).Str("to", newState).Msg("state changed")
	})

	capitan.Hook(stash.BindingWritten, func(_ context.Context, e *capitan.Event) {
		key, _ := stash.KeyKey.From(e)
		n, _ := stash.KeyBytes.From(e)
		d, _ := stash.KeyDuration.From(e)
		log.Debug().Str("key", key).Int("bytes", n).Dur("took", d).Msg("persisted")
	})

	capitan.Hook(stash.BindingPersistFailed, func(_ context.Context, e *capitan.Event) {
		key, _ := stash.KeyKey.From(e)
		errMsg, _ := stash.KeyError.From(e)
		log.Warn().Str("key", key).Str("error", errMsg).Msg("value kept in memory but not persisted")
	})

	capitan.Hook(stash.BindingFollowReceived, func(_ context.Context, e *capitan.Event) {
		key, _ := stash.KeyKey.From(e)
		n, _ := stash.KeyBytes.From(e)
		log.Debug().Str("key", key).Int("bytes", n).Msg("external change")
	})
}
