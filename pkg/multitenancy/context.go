// Package multitenancy scopes commands, aggregates and events to a tenant.
package multitenancy

import (
	"context"
	"errors"
)

// ErrTenantNotFound is returned when no tenant ID is present in the context.
var ErrTenantNotFound = errors.New("tenant ID not found in context")

type contextKey string

const tenantIDKey contextKey = "tenant_id"

// WithTenantID adds a tenant ID to the context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// GetTenantID retrieves the tenant ID from the context.
func GetTenantID(ctx context.Context) (string, error) {
	tenantID, ok := ctx.Value(tenantIDKey).(string)
	if !ok || tenantID == "" {
		return "", ErrTenantNotFound
	}
	return tenantID, nil
}

// HasTenantID checks if the context contains a tenant ID.
func HasTenantID(ctx context.Context) bool {
	_, err := GetTenantID(ctx)
	return err == nil
}
