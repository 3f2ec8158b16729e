// Package memory provides an in-memory generic.Collection for tests and dev runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/absence-engine/absence"
	"github.com/warp/absence-engine/generic"
)

// =============================================================================
// MEMORY COLLECTION - Records held as JSON documents
// =============================================================================

// Collection keeps every record as its JSON encoding, so callers never share
// memory with the store and filters see the same field names as SQLite.
type Collection[T any] struct {
	name  string
	now   func() time.Time
	mu    sync.RWMutex
	docs  map[string][]byte
	order []string
}

func NewCollection[T any](name string) *Collection[T] {
	return &Collection[T]{
		name: name,
		now:  time.Now,
		docs: make(map[string][]byte),
	}
}

// NewAbsenceStore returns an absence.Store backed entirely by memory.
func NewAbsenceStore() *absence.Store {
	return &absence.Store{
		Employees:    NewCollection[absence.Employee](absence.CollectionEmployees),
		Absences:     NewCollection[absence.Absence](absence.CollectionAbsences),
		AbsenceTypes: NewCollection[absence.AbsenceType](absence.CollectionAbsenceTypes),
		Vacations:    NewCollection[absence.Vacation](absence.CollectionVacations),
		Holidays:     NewCollection[absence.Holiday](absence.CollectionHolidays),
		Balances:     NewCollection[absence.VacationPendingBalance](absence.CollectionBalances),
		Runs:         NewCollection[absence.RecalculationRun](absence.CollectionRuns),
	}
}

func (c *Collection[T]) List(_ context.Context, opts generic.ListOptions) ([]T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := append([]string(nil), c.order...)
	if opts.OrderBy != "" {
		if err := c.sortLocked(ids, opts.OrderBy); err != nil {
			return nil, err
		}
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(ids) {
			ids = nil
		} else {
			ids = ids[opts.Offset:]
		}
	}
	if opts.Limit > 0 && opts.Limit < len(ids) {
		ids = ids[:opts.Limit]
	}
	return c.decodeLocked(ids)
}

func (c *Collection[T]) Filter(_ context.Context, criteria generic.Criteria) ([]T, error) {
	want, err := normalize(criteria)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var ids []string
	for _, id := range c.order {
		fields, err := fieldsOf(c.docs[id])
		if err != nil {
			return nil, err
		}
		if matches(fields, want) {
			ids = append(ids, id)
		}
	}
	return c.decodeLocked(ids)
}

func (c *Collection[T]) Get(_ context.Context, id string) (*T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	doc, ok := c.docs[id]
	if !ok {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", c.name, id, err)
	}
	return &v, nil
}

func (c *Collection[T]) Create(_ context.Context, v T) (T, error) {
	meta := generic.MetaOf(&v)
	if meta == nil {
		return v, fmt.Errorf("%s: record does not embed generic.Meta", c.name)
	}
	now := c.now().UTC()
	meta.ID = uuid.NewString()
	meta.CreatedAt, meta.UpdatedAt = now, now

	doc, err := json.Marshal(v)
	if err != nil {
		return v, fmt.Errorf("encode %s: %w", c.name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[meta.ID] = doc
	c.order = append(c.order, meta.ID)
	return v, nil
}

func (c *Collection[T]) Update(_ context.Context, id string, v T) (T, error) {
	meta := generic.MetaOf(&v)
	if meta == nil {
		return v, fmt.Errorf("%s: record does not embed generic.Meta", c.name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	old, ok := c.docs[id]
	if !ok {
		return v, &generic.NotFoundError{Collection: c.name, ID: id}
	}
	var stored generic.Meta
	if err := json.Unmarshal(old, &stored); err != nil {
		return v, fmt.Errorf("decode %s %s: %w", c.name, id, err)
	}
	meta.ID = id
	meta.CreatedAt = stored.CreatedAt
	meta.UpdatedAt = c.now().UTC()

	doc, err := json.Marshal(v)
	if err != nil {
		return v, fmt.Errorf("encode %s: %w", c.name, err)
	}
	c.docs[id] = doc
	return v, nil
}

func (c *Collection[T]) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.docs[id]; !ok {
		return &generic.NotFoundError{Collection: c.name, ID: id}
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of records.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

func (c *Collection[T]) decodeLocked(ids []string) ([]T, error) {
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		var v T
		if err := json.Unmarshal(c.docs[id], &v); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", c.name, id, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// sortLocked orders ids by a JSON field; insertion order breaks ties.
func (c *Collection[T]) sortLocked(ids []string, orderBy string) error {
	field, desc := strings.TrimPrefix(orderBy, "-"), strings.HasPrefix(orderBy, "-")
	keys := make(map[string]any, len(ids))
	for _, id := range ids {
		fields, err := fieldsOf(c.docs[id])
		if err != nil {
			return err
		}
		keys[id] = fields[field]
	}
	sort.SliceStable(ids, func(i, j int) bool {
		cmp := compare(keys[ids[i]], keys[ids[j]])
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
	return nil
}

// =============================================================================
// FIELD MATCHING
// =============================================================================

func fieldsOf(doc []byte) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return fields, nil
}

// normalize passes criteria through JSON so 2023 and 2023.0 compare equal.
func normalize(criteria generic.Criteria) (map[string]any, error) {
	raw, err := json.Marshal(criteria)
	if err != nil {
		return nil, fmt.Errorf("encode criteria: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode criteria: %w", err)
	}
	return out, nil
}

func matches(fields, want map[string]any) bool {
	for k, v := range want {
		if !reflect.DeepEqual(fields[k], v) {
			return false
		}
	}
	return true
}

// compare orders nil first, then numbers, then strings.
func compare(a, b any) int {
	switch x := a.(type) {
	case nil:
		if b == nil {
			return 0
		}
		return -1
	case float64:
		switch y := b.(type) {
		case nil:
			return 1
		case float64:
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
		return -1
	case string:
		switch y := b.(type) {
		case string:
			return strings.Compare(x, y)
		case nil, float64:
			return 1
		}
		return -1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
