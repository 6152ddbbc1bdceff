package multitenancy

import (
	"fmt"
	"strings"
)

// TenantSeparator separates the tenant ID from the aggregate ID.
const TenantSeparator = "::"

// ComposeAggregateID creates a tenant-scoped aggregate ID of the form {tenantID}::{aggregateID}.
func ComposeAggregateID(tenantID, aggregateID string) string {
	if tenantID == "" {
		return aggregateID
	}
	return tenantID + TenantSeparator + aggregateID
}

// DecomposeAggregateID splits a tenant-scoped aggregate ID into tenant ID and aggregate ID.
// IDs without a tenant prefix return an empty tenant ID.
func DecomposeAggregateID(compositeID string) (string, string, error) {
	if compositeID == "" {
		return "", "", fmt.Errorf("invalid composite aggregate ID: empty")
	}

	tenantID, aggregateID, found := strings.Cut(compositeID, TenantSeparator)
	if !found {
		return "", compositeID, nil
	}
	if tenantID == "" || aggregateID == "" {
		return "", "", fmt.Errorf("invalid composite aggregate ID: %s", compositeID)
	}
	return tenantID, aggregateID, nil
}

// ValidateTenantID checks that a composite aggregate ID belongs to expectedTenantID.
func ValidateTenantID(compositeID, expectedTenantID string) error {
	tenantID, _, err := DecomposeAggregateID(compositeID)
	if err != nil {
		return err
	}

	if tenantID != "" && tenantID != expectedTenantID {
		return fmt.Errorf("tenant mismatch: expected %s, got %s", expectedTenantID, tenantID)
	}

	return nil
}
