/**
 * SQLite Connection for TradeImport State
 *
 * Features:
 * - File and in-memory databases behind one DSN builder
 * - Embedded schema applied once per schema version
 * - Write and read transaction helpers shared by the stores
 *
 * Author: TradeImport Team
 * Update History:
 * - 2025-02-13: Initial implementation
 * - 2025-02-20: Schema versioning through PRAGMA user_version
 */

package state

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaFS embed.FS

// SchemaVersion is stored in PRAGMA user_version once schema.sql is applied.
const SchemaVersion = 1

// DB is the SQLite connection shared by all stores.
type DB struct {
	*sqlx.DB
	path string
}

// DBConfig holds database configuration.
type DBConfig struct {
	Path         string
	MaxOpenConns int
	MaxIdleConns int
	MaxIdleTime  time.Duration
	BusyTimeout  time.Duration
}

// DefaultConfig returns default database configuration. SQLite allows a
// single writer, so the pool is kept small.
func DefaultConfig() DBConfig {
	return DBConfig{
		Path:         DefaultDatabasePath,
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		MaxIdleTime:  5 * time.Minute,
		BusyTimeout:  5 * time.Second,
	}
}

func dsn(cfg DBConfig) string {
	params := fmt.Sprintf("_foreign_keys=on&_busy_timeout=%d", cfg.BusyTimeout.Milliseconds())
	if cfg.Path == ":memory:" || strings.HasPrefix(cfg.Path, "file::memory:") {
		return cfg.Path + "?" + params
	}
	return cfg.Path + "?" + params + "&_journal_mode=WAL"
}

// NewDB opens the database and applies the schema.
func NewDB(cfg DBConfig) (*DB, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultDatabasePath
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 1
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	// Every connection to :memory: is a separate database.
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
	}

	db, err := sqlx.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)
	if cfg.Path == ":memory:" {
		db.SetConnMaxIdleTime(0)
		db.SetMaxIdleConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	wrapper := &DB{DB: db, path: cfg.Path}
	if err := wrapper.InitSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return wrapper, nil
}

// InitSchema applies schema.sql when the stored version is older than
// SchemaVersion.
func (db *DB) InitSchema(ctx context.Context) error {
	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if current >= SchemaVersion {
		return nil
	}

	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	return db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, string(schema)); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion))
		return err
	})
}

// SchemaVersion returns the applied schema version, 0 for a new database.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := db.GetContext(ctx, &v, "PRAGMA user_version"); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// WithTx executes fn within a transaction, rolling back on error.
func (db *DB) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// WithReadTx executes fn within a read-only transaction so multi-table
// reads see one consistent state.
func (db *DB) WithReadTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	return fn(tx)
}

// HealthCheck verifies the database answers queries.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.GetContext(ctx, &one, "SELECT 1"); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
