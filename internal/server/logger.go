// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"codeberg.org/smsresearch/studyportal/internal/config"
	"github.com/lmittmann/tint"
)

// setupLogger installs the process-wide logger.
func setupLogger(lc config.LogConfig) {
	slog.SetDefault(newLogger(os.Stdout, lc))
}

// newLogger writes JSON records for log shippers and colored text otherwise.
// Every record names the service so portal lines stand apart from the
// study backend's in a shared sink.
func newLogger(w io.Writer, lc config.LogConfig) *slog.Logger {
	level := parseLevel(lc.Level)

	var h slog.Handler
	if strings.EqualFold(lc.Format, "json") {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		h = tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.TimeOnly})
	}
	return slog.New(h).With("service", "studyportal")
}

// parseLevel accepts slog level names in any case plus "warning"; anything
// else is info.
func parseLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
