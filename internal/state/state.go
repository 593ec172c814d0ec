// Package state provides durable storage for TradeImport on SQLite: a
// key/value table holding the persisted upload queue, an audit log of
// failed chunks, and the reconciliation report history.
package state

import "errors"

// DefaultDatabasePath is the default location for the SQLite database.
const DefaultDatabasePath = "tradeimport.db"

// ErrNotFound is returned when a key or report does not exist.
var ErrNotFound = errors.New("not found")

// Open opens the database at path with the default pool settings.
func Open(path string) (*Manager, error) {
	cfg := DefaultConfig()
	cfg.Path = path
	return NewManager(cfg)
}
