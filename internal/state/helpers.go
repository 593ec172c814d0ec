// Helper Functions for TradeImport State Package
//
// Features:
// - Null type helpers for database operations
//
// Author: TradeImport Team
// Updated: 2025-02-13

package state

import (
	"database/sql"
	"time"
)

// NewNullString creates a sql.NullString that is null for empty strings.
func NewNullString(s string) sql.NullString {
	return sql.NullString{
		String: s,
		Valid:  s != "",
	}
}

// NullStringValue returns the string or "" when null.
func NullStringValue(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

// timestamp returns t, or now when t is zero.
func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
