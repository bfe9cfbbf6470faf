// Package reqctx carries request scoped values shared by the API and the services.
package reqctx

import "context"

type ctxKey int

const correlationIDKey ctxKey = iota

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID returns the request correlation ID or an empty string.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}
