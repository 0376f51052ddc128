// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

const serviceName = "synchroweb"

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// newLogger writes JSON for log shippers and colored text for terminals.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	lvl := parseLevel(level)

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.DateTime,
			NoColor:    w != os.Stdout,
		})
	}

	return slog.New(handler).With("service", serviceName)
}

func setupLogger(level, format string) {
	slog.SetDefault(newLogger(os.Stdout, level, format))
}
