// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

type operationKey struct{}

// WithOperationID tags ctx with the warehouse operation being processed.
func WithOperationID(ctx context.Context, operationID string) context.Context {
	return context.WithValue(ctx, operationKey{}, operationID)
}

// GetOperationID returns the warehouse operation id from context or empty string.
func GetOperationID(ctx context.Context) string {
	if v, ok := ctx.Value(operationKey{}).(string); ok {
		return v
	}
	return ""
}
