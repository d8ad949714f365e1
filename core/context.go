package core

import "context"

// Context keys for timeline options
type contextKey string

const (
	suppressHeaderKey contextKey = "suppressHeader"
	runIDKey          contextKey = "runID"
	providerPoolKey   contextKey = "providerPool"
)

// WithSuppressHeader marks the context so no plan header is printed.
// The MCP server uses it because stdout carries the protocol.
func WithSuppressHeader(ctx context.Context) context.Context {
	return context.WithValue(ctx, suppressHeaderKey, true)
}

// shouldSuppressHeader returns whether headers should be suppressed from context
func shouldSuppressHeader(ctx context.Context) bool {
	val := ctx.Value(suppressHeaderKey)
	if val == nil {
		return false // default: show headers
	}
	suppress, ok := val.(bool)
	return ok && suppress
}

// withRunID stores the history run ID in the context.
func withRunID(ctx context.Context, runID int64) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// getRunID retrieves the history run ID from the context.
func getRunID(ctx context.Context) (int64, bool) {
	val := ctx.Value(runIDKey)
	if val == nil {
		return 0, false
	}
	runID, ok := val.(int64)
	return runID, ok
}

// WithProviderPool makes runs under ctx share the doserate providers of pool.
func WithProviderPool(ctx context.Context, pool *ProviderPool) context.Context {
	return context.WithValue(ctx, providerPoolKey, pool)
}

func providerPool(ctx context.Context) *ProviderPool {
	pool, _ := ctx.Value(providerPoolKey).(*ProviderPool)
	return pool
}
