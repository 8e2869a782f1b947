/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package coresec

import (
	"fmt"
	"log/slog"
	"os"
)

// Logger is the small leveled logger every component holds a
// reference to, matching the shape assumed by device.log.Verbosef /
// device.log.Errorf call sites throughout the teacher package. Built
// on log/slog rather than a bespoke writer.
type Logger struct {
	slog    *slog.Logger
	verbose bool
}

// NewLogger builds a Logger writing to stderr. When verbose is false,
// Verbosef calls are dropped before formatting, matching the
// compiled-out DEBUG PRINTF behavior of the original C module.
func NewLogger(verbose bool) *Logger {
	return &Logger{
		slog:    slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})),
		verbose: verbose,
	}
}

func (l *Logger) Verbosef(format string, args ...any) {
	if l == nil || !l.verbose {
		return
	}
	l.slog.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	l.slog.Error(fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	if l == nil {
		return
	}
	l.slog.Info(fmt.Sprintf(format, args...))
}
