// Package store provides data storage interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/vyrodovalexey/localbackend/internal/model"
)

// Store errors.
var (
	ErrNotFound  = errors.New("item not found")
	ErrInvalidID = errors.New("invalid item ID")
)

// DefaultItemsKey is the preference key the item collection is persisted under.
const DefaultItemsKey = "items_data"

// Store defines the interface for item storage operations.
type Store interface {
	// List returns all items in persisted order.
	List(ctx context.Context) ([]model.Item, error)

	// Get retrieves an item by its ID.
	Get(ctx context.Context, id int) (*model.Item, error)

	// Create adds a new item and returns it with its assigned ID.
	Create(ctx context.Context, name, description string) (*model.Item, error)

	// Update replaces the fields present in patch and returns the updated item.
	Update(ctx context.Context, id int, patch model.ItemPatch) (*model.Item, error)

	// Delete removes an item by its ID and reports whether it existed.
	Delete(ctx context.Context, id int) (bool, error)
}
