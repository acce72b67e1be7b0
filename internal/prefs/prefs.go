// Package prefs provides the namespaced key-value settings store that backs
// the item store. Every backend keeps string values under string keys, scoped
// to one application namespace.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
	BackendRedis    = "redis"
)

// Preferences errors.
var (
	ErrUnknownBackend = errors.New("unknown preferences backend")
	ErrMissingDSN     = errors.New("preferences backend requires a DSN")
	ErrEmptyKey       = errors.New("preference key cannot be empty")
)

// Preferences is a key-value settings store scoped to one namespace.
type Preferences interface {
	// GetString returns the value stored under key. ok is false when the key is absent.
	GetString(ctx context.Context, key string) (value string, ok bool, err error)

	// PutString stores value under key, replacing any previous value.
	PutString(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Close releases the backend's resources.
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend   string
	Namespace string
	// Path is the data directory for the file and sqlite backends.
	Path string
	// DSN is the connection string for sql backends. For sqlite it overrides Path.
	DSN       string
	RedisAddr string
}

// Open creates the backend named by opts.Backend.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (Preferences, error) {
	logger.Info("opening preferences",
		zap.String("backend", opts.Backend),
		zap.String("namespace", opts.Namespace),
	)

	switch opts.Backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		return NewFile(opts.Path, opts.Namespace, logger)
	case BackendSQLite:
		dsn := opts.DSN
		if dsn == "" {
			if err := ensureDir(opts.Path); err != nil {
				return nil, err
			}
			dsn = filepath.Join(opts.Path, "preferences.db")
		}
		return OpenSQL(ctx, BackendSQLite, dsn, opts.Namespace)
	case BackendPostgres, BackendMySQL:
		if opts.DSN == "" {
			return nil, fmt.Errorf("%s: %w", opts.Backend, ErrMissingDSN)
		}
		return OpenSQL(ctx, opts.Backend, opts.DSN, opts.Namespace)
	case BackendRedis:
		return OpenRedis(ctx, opts.RedisAddr, opts.Namespace)
	default:
		return nil, fmt.Errorf("%q: %w", opts.Backend, ErrUnknownBackend)
	}
}
