package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// dialect holds the statements that differ between sql drivers.
// Queries are written with '?' placeholders and rebound per driver by sqlx.
type dialect struct {
	driver string
	schema string
	upsert string
}

var dialects = map[string]dialect{
	BackendSQLite: {
		driver: "sqlite",
		schema: `CREATE TABLE IF NOT EXISTS preferences (
	namespace TEXT NOT NULL,
	pref_key TEXT NOT NULL,
	pref_value TEXT NOT NULL,
	PRIMARY KEY (namespace, pref_key)
)`,
		upsert: `INSERT INTO preferences (namespace, pref_key, pref_value) VALUES (?, ?, ?)
ON CONFLICT (namespace, pref_key) DO UPDATE SET pref_value = excluded.pref_value`,
	},
	BackendPostgres: {
		driver: "postgres",
		schema: `CREATE TABLE IF NOT EXISTS preferences (
	namespace TEXT NOT NULL,
	pref_key TEXT NOT NULL,
	pref_value TEXT NOT NULL,
	PRIMARY KEY (namespace, pref_key)
)`,
		upsert: `INSERT INTO preferences (namespace, pref_key, pref_value) VALUES (?, ?, ?)
ON CONFLICT (namespace, pref_key) DO UPDATE SET pref_value = EXCLUDED.pref_value`,
	},
	BackendMySQL: {
		driver: "mysql",
		schema: `CREATE TABLE IF NOT EXISTS preferences (
	namespace VARCHAR(191) NOT NULL,
	pref_key VARCHAR(191) NOT NULL,
	pref_value LONGTEXT NOT NULL,
	PRIMARY KEY (namespace, pref_key)
)`,
		upsert: `INSERT INTO preferences (namespace, pref_key, pref_value) VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE pref_value = VALUES(pref_value)`,
	},
}

const (
	selectPreference = `SELECT pref_value FROM preferences WHERE namespace = ? AND pref_key = ?`
	deletePreference = `DELETE FROM preferences WHERE namespace = ? AND pref_key = ?`
)

// SQL implements Preferences on a relational table shared by all namespaces.
type SQL struct {
	db        *sqlx.DB
	dialect   dialect
	namespace string
}

// OpenSQL connects to the database for backend and ensures the schema exists.
func OpenSQL(ctx context.Context, backend, dsn, namespace string) (*SQL, error) {
	d, ok := dialects[backend]
	if !ok {
		return nil, fmt.Errorf("%q: %w", backend, ErrUnknownBackend)
	}

	db, err := sqlx.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", backend, err)
	}

	// A single sqlite connection avoids SQLITE_BUSY between writers.
	if backend == BackendSQLite {
		db.SetMaxOpenConns(1)
	}

	p, err := NewSQL(ctx, db, backend, namespace)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return p, nil
}

// NewSQL wraps an open database and creates the preferences table if needed.
func NewSQL(ctx context.Context, db *sqlx.DB, backend, namespace string) (*SQL, error) {
	d, ok := dialects[backend]
	if !ok {
		return nil, fmt.Errorf("%q: %w", backend, ErrUnknownBackend)
	}

	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		return nil, fmt.Errorf("creating preferences table: %w", err)
	}

	return &SQL{
		db:        db,
		dialect:   d,
		namespace: namespace,
	}, nil
}

// GetString returns the value stored under key.
func (s *SQL) GetString(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}

	var value string
	err := s.db.GetContext(ctx, &value, s.db.Rebind(selectPreference), s.namespace, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get preference %s: %w", key, err)
	}

	return value, true, nil
}

// PutString stores value under key.
func (s *SQL) PutString(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(s.dialect.upsert), s.namespace, key, value); err != nil {
		return fmt.Errorf("put preference %s: %w", key, err)
	}

	return nil
}

// Remove deletes key.
func (s *SQL) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(deletePreference), s.namespace, key); err != nil {
		return fmt.Errorf("remove preference %s: %w", key, err)
	}

	return nil
}

// Close closes the database handle.
func (s *SQL) Close() error {
	return s.db.Close()
}
