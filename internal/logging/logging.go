// SPDX-FileCopyrightText: Copyright The Newshub Authors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package logging carries a *slog.Logger through context, so per-task
// attributes attached once follow the task everywhere.
package logging // import "newshub.app/internal/logging"

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

var ctxKeyLogger ctxKey = struct{}{}

// FromContext returns the logger stored in ctx, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKeyLogger).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// With attaches args to the context logger and returns the new context.
func With(ctx context.Context, args ...any) context.Context {
	return WithLogger(ctx, FromContext(ctx).With(args...))
}

func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, l)
}
