package messaging

import (
	"context"

	"github.com/lithammer/shortuuid/v3"
)

type correlationIDKey struct{}

// ContextWithCorrelationID attaches a correlation id to ctx
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, correlationID)
}

// CorrelationIDFromContext returns the correlation id of ctx, or "" if none
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// NewCorrelationID generates an id for a flow that did not arrive with one
func NewCorrelationID() string {
	return "gen_" + shortuuid.New()
}
