/*
Package sqlite provides a SQLite-backed implementation of generic.Collection.

PURPOSE:
  Persists every engine collection as JSON documents in one table. The
  engine only needs list / filter / get / create / update / delete, so a
  document table keeps the schema stable while records evolve.

KEY TABLE:
  entities(collection, id, data, created_at, updated_at)
    collection: record kind (Employee, Absence, VacationPendingBalance, ...)
    data:       the full JSON record, including id and timestamps

FILTERING:
  Filter compiles each criterion to json_extract(data, '$.field') = ?.
  JSON booleans come back from json_extract as 1/0, so boolean criteria are
  bound as integers.

INDEXES:
  - idx_entities_collection: List and Filter scans per collection
  - idx_entities_employee: employee_id lookups (absences, balances)

CONCURRENCY:
  A sync.RWMutex serializes writes; reads share the lock. Ledger writes for
  one employee are issued sequentially by the orchestrator, so no row-level
  locking is done here.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  db, err := sqlite.New("./data/absences.db")
  if err != nil {
      log.Fatal(err)
  }
  defer db.Close()

  store := sqlite.NewAbsenceStore(db)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - generic/store.go: Collection contract
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/absence-engine/absence"
	"github.com/warp/absence-engine/generic"
)

// Store owns the database handle shared by every collection.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every new connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_entities_collection
		ON entities(collection, created_at);

	-- Absences and balance rows are almost always read per employee
	CREATE INDEX IF NOT EXISTS idx_entities_employee
		ON entities(collection, json_extract(data, '$.employee_id'));
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM entities")
	return err
}

// NewAbsenceStore binds every engine collection to the database.
func NewAbsenceStore(s *Store) *absence.Store {
	return &absence.Store{
		Employees:    NewCollection[absence.Employee](s, absence.CollectionEmployees),
		Absences:     NewCollection[absence.Absence](s, absence.CollectionAbsences),
		AbsenceTypes: NewCollection[absence.AbsenceType](s, absence.CollectionAbsenceTypes),
		Vacations:    NewCollection[absence.Vacation](s, absence.CollectionVacations),
		Holidays:     NewCollection[absence.Holiday](s, absence.CollectionHolidays),
		Balances:     NewCollection[absence.VacationPendingBalance](s, absence.CollectionBalances),
		Runs:         NewCollection[absence.RecalculationRun](s, absence.CollectionRuns),
	}
}

// =============================================================================
// COLLECTION (generic.Collection interface)
// =============================================================================

// Collection is one named collection of T documents.
type Collection[T any] struct {
	s    *Store
	name string
}

func NewCollection[T any](s *Store, name string) *Collection[T] {
	return &Collection[T]{s: s, name: name}
}

// List returns documents ordered by a JSON field (insertion order by default).
func (c *Collection[T]) List(ctx context.Context, opts generic.ListOptions) ([]T, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	query := "SELECT data FROM entities WHERE collection = ?"
	args := []any{c.name}

	if opts.OrderBy != "" {
		field, dir := strings.TrimPrefix(opts.OrderBy, "-"), "ASC"
		if strings.HasPrefix(opts.OrderBy, "-") {
			dir = "DESC"
		}
		query += " ORDER BY json_extract(data, ?) " + dir + ", rowid ASC"
		args = append(args, jsonPath(field))
	} else {
		query += " ORDER BY rowid ASC"
	}

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		query += " LIMIT -1"
	}
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	return c.query(ctx, query, args...)
}

// Filter returns documents matching every criterion.
func (c *Collection[T]) Filter(ctx context.Context, criteria generic.Criteria) ([]T, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	query := "SELECT data FROM entities WHERE collection = ?"
	args := []any{c.name}

	// Sorted for stable SQL text.
	fields := make([]string, 0, len(criteria))
	for f := range criteria {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		query += " AND json_extract(data, ?) = ?"
		args = append(args, jsonPath(f), bindValue(criteria[f]))
	}
	query += " ORDER BY rowid ASC"

	return c.query(ctx, query, args...)
}

// Get returns the document or nil if it does not exist.
func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	var data string
	err := c.s.db.QueryRowContext(ctx,
		"SELECT data FROM entities WHERE collection = ? AND id = ?",
		c.name, id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", c.name, id, err)
	}

	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, fmt.Errorf("failed to decode %s %s: %w", c.name, id, err)
	}
	return &v, nil
}

// Create assigns id and timestamps, then inserts the document.
func (c *Collection[T]) Create(ctx context.Context, v T) (T, error) {
	meta := generic.MetaOf(&v)
	if meta == nil {
		return v, fmt.Errorf("%s: record does not embed generic.Meta", c.name)
	}
	now := c.s.now().UTC()
	meta.ID = uuid.NewString()
	meta.CreatedAt, meta.UpdatedAt = now, now

	data, err := json.Marshal(v)
	if err != nil {
		return v, fmt.Errorf("failed to encode %s: %w", c.name, err)
	}

	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	_, err = c.s.db.ExecContext(ctx, `
		INSERT INTO entities (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.name, meta.ID, string(data), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return v, fmt.Errorf("failed to create %s: %w", c.name, err)
	}
	return v, nil
}

// Update replaces the document, keeping created_at.
func (c *Collection[T]) Update(ctx context.Context, id string, v T) (T, error) {
	meta := generic.MetaOf(&v)
	if meta == nil {
		return v, fmt.Errorf("%s: record does not embed generic.Meta", c.name)
	}

	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	var createdAt string
	err := c.s.db.QueryRowContext(ctx,
		"SELECT created_at FROM entities WHERE collection = ? AND id = ?",
		c.name, id,
	).Scan(&createdAt)
	if err == sql.ErrNoRows {
		return v, &generic.NotFoundError{Collection: c.name, ID: id}
	}
	if err != nil {
		return v, fmt.Errorf("failed to get %s %s: %w", c.name, id, err)
	}

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return v, fmt.Errorf("failed to parse created_at of %s %s: %w", c.name, id, err)
	}
	now := c.s.now().UTC()
	meta.ID = id
	meta.CreatedAt = created
	meta.UpdatedAt = now

	data, err := json.Marshal(v)
	if err != nil {
		return v, fmt.Errorf("failed to encode %s: %w", c.name, err)
	}
	_, err = c.s.db.ExecContext(ctx,
		"UPDATE entities SET data = ?, updated_at = ? WHERE collection = ? AND id = ?",
		string(data), now.Format(time.RFC3339Nano), c.name, id,
	)
	if err != nil {
		return v, fmt.Errorf("failed to update %s %s: %w", c.name, id, err)
	}
	return v, nil
}

// Delete removes the document.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	result, err := c.s.db.ExecContext(ctx,
		"DELETE FROM entities WHERE collection = ? AND id = ?",
		c.name, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", c.name, id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &generic.NotFoundError{Collection: c.name, ID: id}
	}
	return nil
}

func (c *Collection[T]) query(ctx context.Context, query string, args ...any) ([]T, error) {
	rows, err := c.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.name, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", c.name, err)
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", c.name, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

func jsonPath(field string) string {
	return "$." + field
}

// bindValue adapts a criterion to what json_extract returns.
func bindValue(v any) any {
	switch x := v.(type) {
	case bool:
		if x {
			return 1
		}
		return 0
	case fmt.Stringer:
		return x.String()
	}
	return v
}
