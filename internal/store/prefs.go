package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/localbackend/internal/model"
	"github.com/vyrodovalexey/localbackend/internal/prefs"
)

// Prometheus metrics.
var (
	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "item_store_operations_total",
			Help: "Total number of item store operations",
		},
		[]string{"operation", "result"},
	)

	storeItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "item_store_items",
			Help: "Number of items in the last loaded collection",
		},
	)

	storeCorruptReadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "item_store_corrupt_reads_total",
			Help: "Number of persisted collections that could not be decoded",
		},
	)
)

// PrefsStore implements Store by keeping the whole item collection as one
// JSON array under a single preference key. Every mutation loads the full
// collection, changes it and writes the full collection back.
//
// All operations are serialized by mu, so read-modify-write cycles from
// concurrent requests in this process never interleave.
type PrefsStore struct {
	mu     sync.Mutex
	prefs  prefs.Preferences
	key    string
	logger *zap.Logger
}

// NewPrefsStore creates a PrefsStore persisting under key. An empty key
// selects DefaultItemsKey.
func NewPrefsStore(p prefs.Preferences, key string, logger *zap.Logger) *PrefsStore {
	if key == "" {
		key = DefaultItemsKey
	}

	return &PrefsStore{
		prefs:  p,
		key:    key,
		logger: logger,
	}
}

// List returns all items in persisted order.
func (s *PrefsStore) List(ctx context.Context) ([]model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx)
	if err != nil {
		observe("list", err)
		return nil, fmt.Errorf("list items: %w", err)
	}

	observe("list", nil)
	return items, nil
}

// Get retrieves an item by its ID.
func (s *PrefsStore) Get(ctx context.Context, id int) (*model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx)
	if err != nil {
		observe("get", err)
		return nil, fmt.Errorf("get item: %w", err)
	}

	idx := indexOf(items, id)
	if idx < 0 {
		observe("get", ErrNotFound)
		return nil, ErrNotFound
	}

	observe("get", nil)
	item := items[idx]
	return &item, nil
}

// Create adds a new item with the next free ID.
func (s *PrefsStore) Create(ctx context.Context, name, description string) (*model.Item, error) {
	item := model.Item{Name: name, Description: description}
	if err := item.Validate(); err != nil {
		observe("create", err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx)
	if err != nil {
		observe("create", err)
		return nil, fmt.Errorf("create item: %w", err)
	}

	item.ID = nextID(items)
	items = append(items, item)

	if err := s.save(ctx, items); err != nil {
		observe("create", err)
		return nil, fmt.Errorf("create item: %w", err)
	}

	observe("create", nil)
	return &item, nil
}

// Update replaces the fields present in patch.
func (s *PrefsStore) Update(ctx context.Context, id int, patch model.ItemPatch) (*model.Item, error) {
	if err := patch.Validate(); err != nil {
		observe("update", err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx)
	if err != nil {
		observe("update", err)
		return nil, fmt.Errorf("update item: %w", err)
	}

	idx := indexOf(items, id)
	if idx < 0 {
		observe("update", ErrNotFound)
		return nil, ErrNotFound
	}

	items[idx] = patch.Apply(items[idx])

	if err := s.save(ctx, items); err != nil {
		observe("update", err)
		return nil, fmt.Errorf("update item: %w", err)
	}

	observe("update", nil)
	item := items[idx]
	return &item, nil
}

// Delete removes an item by its ID. The collection is only written back
// when an item was actually removed.
func (s *PrefsStore) Delete(ctx context.Context, id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx)
	if err != nil {
		observe("delete", err)
		return false, fmt.Errorf("delete item: %w", err)
	}

	idx := indexOf(items, id)
	if idx < 0 {
		observe("delete", ErrNotFound)
		return false, nil
	}

	items = append(items[:idx], items[idx+1:]...)

	if err := s.save(ctx, items); err != nil {
		observe("delete", err)
		return false, fmt.Errorf("delete item: %w", err)
	}

	observe("delete", nil)
	return true, nil
}

// Seed writes items when the stored collection is empty and reports whether
// it did so.
func (s *PrefsStore) Seed(ctx context.Context, items []model.Item) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load(ctx)
	if err != nil {
		return false, fmt.Errorf("seed items: %w", err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	if err := s.save(ctx, items); err != nil {
		return false, fmt.Errorf("seed items: %w", err)
	}

	s.logger.Info("seeded item store", zap.Int("count", len(items)))
	return true, nil
}

// load reads the persisted collection. An absent or undecodable value is an
// empty collection; only backend failures are returned as errors.
func (s *PrefsStore) load(ctx context.Context) ([]model.Item, error) {
	raw, ok, err := s.prefs.GetString(ctx, s.key)
	if err != nil {
		return nil, err
	}

	items := make([]model.Item, 0)
	if !ok || raw == "" {
		storeItems.Set(0)
		return items, nil
	}

	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		storeCorruptReadsTotal.Inc()
		s.logger.Warn("persisted items are corrupt, treating as empty",
			zap.String("key", s.key),
			zap.Error(err),
		)
		storeItems.Set(0)
		return make([]model.Item, 0), nil
	}
	if items == nil {
		items = make([]model.Item, 0)
	}

	storeItems.Set(float64(len(items)))
	return items, nil
}

// save serializes and overwrites the whole collection.
func (s *PrefsStore) save(ctx context.Context, items []model.Item) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding items: %w", err)
	}

	if err := s.prefs.PutString(ctx, s.key, string(data)); err != nil {
		return err
	}

	storeItems.Set(float64(len(items)))
	return nil
}

func indexOf(items []model.Item, id int) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

// nextID returns max(existing IDs)+1, or 1 for an empty collection.
func nextID(items []model.Item) int {
	maxID := 0
	for _, item := range items {
		if item.ID > maxID {
			maxID = item.ID
		}
	}
	return maxID + 1
}

func observe(operation string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case errors.Is(err, model.ErrEmptyName):
		result = "invalid"
	default:
		result = "error"
	}
	storeOperationsTotal.WithLabelValues(operation, result).Inc()
}
