package pipeline

import "context"

// RunTracker receives run-level params, per-file metrics and artifact
// locations. Implementations log their own failures and never fail the run.
type RunTracker interface {
	LogParams(ctx context.Context, params map[string]string)
	LogMetric(ctx context.Context, key string, value float64, step int)
	LogArtifact(ctx context.Context, name, path string)
}

// NopTracker discards everything.
type NopTracker struct{}

func (NopTracker) LogParams(context.Context, map[string]string)    {}
func (NopTracker) LogMetric(context.Context, string, float64, int) {}
func (NopTracker) LogArtifact(context.Context, string, string)     {}
