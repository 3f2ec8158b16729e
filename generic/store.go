/*
store.go - Persistent entity store contract

PURPOSE:
  Defines the interface between the engine and whatever holds its records.
  The engine only needs five operations per named collection, matching a
  generic networked data store: list, filter, create, update, delete.

KEY TYPES:
  Meta:          id + timestamps assigned by the store
  Record:        anything embedding Meta
  Collection[T]: the per-collection operations

SERVER-ASSIGNED FIELDS:
  Create assigns ID, CreatedAt and UpdatedAt. Update refreshes UpdatedAt and
  keeps CreatedAt. Callers never set them.

FILTERING:
  Filter is equality on every provided field, using the JSON field names of T.
  Booleans, strings and numbers are supported.

IMPLEMENTATIONS:
  - store/sqlite: SQLite document table
  - store/memory: In-memory for testing

SEE ALSO:
  - absence/store.go: The six collections the engine consumes
*/
package generic

import (
	"context"
	"time"
)

// Meta carries the store-assigned identity of a record.
type Meta struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetMeta gives stores access to the embedded Meta.
func (m *Meta) GetMeta() *Meta { return m }

// Record is implemented by pointers to any struct embedding Meta.
type Record interface {
	GetMeta() *Meta
}

// MetaOf returns the Meta of a value whose pointer embeds Meta, or nil.
func MetaOf[T any](v *T) *Meta {
	if r, ok := any(v).(Record); ok {
		return r.GetMeta()
	}
	return nil
}

// Criteria is a field -> value equality filter.
type Criteria map[string]any

// ListOptions control ordering and paging. OrderBy is a field name,
// prefixed with "-" for descending order. Zero Limit means no limit.
type ListOptions struct {
	OrderBy string
	Limit   int
	Offset  int
}

// Collection is the persistence contract for one named collection.
type Collection[T any] interface {
	// List returns records ordered and paged by opts.
	List(ctx context.Context, opts ListOptions) ([]T, error)

	// Filter returns records whose fields equal every criterion.
	Filter(ctx context.Context, criteria Criteria) ([]T, error)

	// Get returns the record or nil if it does not exist.
	Get(ctx context.Context, id string) (*T, error)

	// Create stores a new record and returns it with Meta assigned.
	Create(ctx context.Context, v T) (T, error)

	// Update replaces the stored record. Returns ErrEntityNotFound if missing.
	Update(ctx context.Context, id string, v T) (T, error)

	// Delete removes the record. Returns ErrEntityNotFound if missing.
	Delete(ctx context.Context, id string) error
}
