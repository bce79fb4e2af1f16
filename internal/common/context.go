package common

import (
	"context"

	"github.com/google/uuid"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyOwnerRef  contextKey = "owner_ref"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context, minting one if absent
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok && requestID != "" {
		return requestID
	}
	return uuid.NewString()
}

// WithOwnerRef adds the caller's owner reference to the context
func WithOwnerRef(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ContextKeyOwnerRef, owner)
}

// OwnerRefFromContext extracts the owner reference from context
func OwnerRefFromContext(ctx context.Context) string {
	if owner, ok := ctx.Value(ContextKeyOwnerRef).(string); ok {
		return owner
	}
	return ""
}
