package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// corruptSuffix is appended to a preferences file that could not be decoded.
const corruptSuffix = ".corrupt"

var fileCorruptTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "prefs_file_corrupt_total",
		Help: "Number of preferences files that could not be decoded and were set aside",
	},
)

// File implements Preferences as one JSON object file per namespace.
// Each write replaces the file atomically through a rename.
//
// A file that cannot be decoded is renamed to <file>.corrupt and the
// namespace starts empty, so the next write replaces it.
type File struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// NewFile creates a File backend storing <dir>/<namespace>.json.
func NewFile(dir, namespace string, logger *zap.Logger) (*File, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	return &File{
		path:   filepath.Join(dir, namespace+".json"),
		logger: logger,
	}, nil
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// GetString returns the value stored under key.
func (f *File) GetString(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, fmt.Errorf("get preference: %w", err)
	}
	if key == "" {
		return "", false, ErrEmptyKey
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return "", false, err
	}

	value, ok := values[key]
	return value, ok, nil
}

// PutString stores value under key.
func (f *File) PutString(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("put preference: %w", err)
	}
	if key == "" {
		return ErrEmptyKey
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}

	values[key] = value
	return f.write(values)
}

// Remove deletes key.
func (f *File) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("remove preference: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}

	if _, ok := values[key]; !ok {
		return nil
	}

	delete(values, key)
	return f.write(values)
}

// Close is a no-op; the file is not held open between calls.
func (f *File) Close() error {
	return nil
}

func (f *File) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading preferences file: %w", err)
	}

	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}

	if err := json.Unmarshal(data, &values); err != nil {
		f.setAside(err)
		return make(map[string]string), nil
	}

	return values, nil
}

// setAside moves an undecodable file out of the way. If the rename fails the
// file stays in place and is overwritten by the next write.
func (f *File) setAside(decodeErr error) {
	fileCorruptTotal.Inc()

	target := f.path + corruptSuffix
	if err := os.Rename(f.path, target); err != nil {
		f.logger.Warn("preferences file is corrupt, could not move it aside",
			zap.String("path", f.path),
			zap.NamedError("decode_error", decodeErr),
			zap.Error(err),
		)
		return
	}

	f.logger.Warn("preferences file is corrupt, starting empty",
		zap.String("path", f.path),
		zap.String("moved_to", target),
		zap.Error(decodeErr),
	)
}

func (f *File) write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp preferences file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing temp preferences file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp preferences file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing preferences file: %w", err)
	}

	return nil
}

func ensureDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}
