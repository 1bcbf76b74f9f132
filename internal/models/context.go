package models

import "context"

type triggerContextKey struct{}

// Trigger sources recorded on reconciliation passes.
const (
	TriggerRequest   = "request"
	TriggerPoller    = "poller"
	TriggerScheduler = "scheduler"
	TriggerCLI       = "cli"
)

// WithTrigger tags a context with what started the current unit of work so
// detached passes remain attributable in logs.
func WithTrigger(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, triggerContextKey{}, source)
}

// TriggerFromContext returns the trigger source, or "unknown" if absent.
func TriggerFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(triggerContextKey{}).(string); ok && s != "" {
		return s
	}
	return "unknown"
}
