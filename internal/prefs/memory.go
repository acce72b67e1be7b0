package prefs

import (
	"context"
	"fmt"
	"sync"
)

// Memory implements Preferences with an in-process map.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory creates an empty Memory instance.
func NewMemory() *Memory {
	return &Memory{
		values: make(map[string]string),
	}
}

// GetString returns the value stored under key.
func (m *Memory) GetString(ctx context.Context, key string) (string, bool, error) {
	select {
	case <-ctx.Done():
		return "", false, fmt.Errorf("get preference: %w", ctx.Err())
	default:
	}

	if key == "" {
		return "", false, ErrEmptyKey
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	return value, ok, nil
}

// PutString stores value under key.
func (m *Memory) PutString(ctx context.Context, key, value string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("put preference: %w", ctx.Err())
	default:
	}

	if key == "" {
		return ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

// Remove deletes key.
func (m *Memory) Remove(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("remove preference: %w", ctx.Err())
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

// Close is a no-op for the in-memory backend.
func (m *Memory) Close() error {
	return nil
}
