// Package report forwards failures to Sentry. With no DSN configured every
// call is a no-op, so callers never need to check whether reporting is on.
package report

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

const flushTimeout = 5 * time.Second

type Config struct {
	DSN         string
	Environment string
	SampleRate  float64
	Release     string
}

var enabled atomic.Bool

// Init configures the global Sentry client.
func Init(cfg Config) error {
	enabled.Store(false)
	if cfg.DSN == "" {
		slog.Debug("Error reporting disabled")
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		SampleRate:  cfg.SampleRate,
		Release:     cfg.Release,
	})
	if err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	enabled.Store(true)
	slog.Info("Error reporting enabled", "environment", cfg.Environment)
	return nil
}

func Enabled() bool {
	return enabled.Load()
}

// Error sends err with the given tags.
func Error(err error, tags map[string]string) {
	if err == nil || !enabled.Load() {
		return
	}
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
	})
	hub.CaptureException(err)
}

func Message(msg string, tags map[string]string) {
	if !enabled.Load() {
		return
	}
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
	})
	hub.CaptureMessage(msg)
}

// Recover reports a panic value caught by the caller's recover.
func Recover(r any, tags map[string]string) {
	if r == nil || !enabled.Load() {
		return
	}
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
	})
	hub.Recover(r)
	hub.Flush(flushTimeout)
}

// Flush waits for queued events to be sent.
func Flush() {
	if !enabled.Load() {
		return
	}
	if !sentry.Flush(flushTimeout) {
		slog.Warn("Timed out flushing error reports")
	}
}
