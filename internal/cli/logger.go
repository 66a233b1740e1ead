// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package cli // import "newshub.app/internal/cli"

import (
	"log/slog"
	"os"

	"newshub.app/internal/config"
)

func initializeDefaultLogger() {
	opts := &slog.HandlerOptions{Level: parseLogLevel(config.Opts.LogLevel())}

	var handler slog.Handler
	if config.Opts.LogFormat() == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(s string) slog.Level {
	var level slog.Level
	switch s {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return level
}
