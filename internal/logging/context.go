package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "requestID"

// ContextWithRequestID stores the request identifier on ctx.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the identifier stored on ctx, generating a new one if
// none is present.
func RequestID(ctx context.Context) string {
	if ctx != nil {
		if value, ok := ctx.Value(requestIDKey).(string); ok && value != "" {
			return value
		}
	}
	return uuid.NewString()
}
