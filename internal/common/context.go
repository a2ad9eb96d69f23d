package common

import (
	"context"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRunID    contextKey = "run_id"
	ContextKeyFilename contextKey = "filename"
)

// WithRunID adds the batch run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ContextKeyRunID, runID)
}

// RunIDFromContext extracts the run ID from context
func RunIDFromContext(ctx context.Context) string {
	if runID, ok := ctx.Value(ContextKeyRunID).(string); ok {
		return runID
	}
	return ""
}

// WithFilename tags the context with the page currently being processed
func WithFilename(ctx context.Context, filename string) context.Context {
	return context.WithValue(ctx, ContextKeyFilename, filename)
}

// FilenameFromContext extracts the page filename from context
func FilenameFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(ContextKeyFilename).(string); ok {
		return name
	}
	return ""
}
