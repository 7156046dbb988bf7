// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// logger is the daemon logger; initLogger replaces it.
var logger = slog.Default()

// initLogger configures the shared slog logger for the long-running
// commands. When logFile is set, records are also appended to it.
func initLogger(debug bool, logFile string) (io.Closer, error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	var closer io.Closer = io.NopCloser(nil)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		closer = f
	}

	h := slog.NewTextHandler(out, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug, // file:line in debug mode
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
	return closer, nil
}
