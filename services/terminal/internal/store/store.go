package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/appetiteclub/apt"
	_ "github.com/mattn/go-sqlite3"
)

// Collections cached on every terminal.
const (
	CollectionUsers          = "users"
	CollectionMenuItems      = "menu_items"
	CollectionMenuCategories = "menu_categories"
	CollectionSections       = "sections"
	CollectionSales          = "sales"
	CollectionHistory        = "history"
	CollectionStockMovements = "stock_movements"
	CollectionSyncQueue      = "sync_queue"
)

// Well-known settings keys restored before remote reconciliation completes.
const (
	SettingTableCount   = "tables.count"
	SettingTablesPerRow = "tables.per_row"
	SettingSizePercent  = "grid.size_percent"
	SettingCachedTables = "tables.cached"
	SettingTaxRate      = "tax.rate"
)

// Record pairs an id with the value persisted under it.
type Record struct {
	ID    string
	Value any
}

// Store is the per-device durable cache. Values are stored as JSON documents
// in named collections; all filtering happens in memory after GetAll.
type Store struct {
	path   string
	db     *sql.DB
	logger apt.Logger
}

func NewStore(path string, logger apt.Logger) *Store {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Store{path: path, logger: logger}
}

// Start opens the database file and creates the schema if needed.
func (s *Store) Start(ctx context.Context) error {
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return fmt.Errorf("cannot open store at %s: %w", s.path, err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			content TEXT NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			content TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return fmt.Errorf("cannot create store schema: %w", err)
		}
	}

	s.db = db
	return nil
}

func (s *Store) Stop(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put writes one value. Local writes must complete before the corresponding
// remote mutation is enqueued, so failures are returned, never swallowed.
func (s *Store) Put(ctx context.Context, collection, id string, v any) error {
	content, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cannot encode %s/%s: %w", collection, id, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO records (collection, id, content) VALUES (?, ?, ?)`,
		collection, id, string(content),
	)
	if err != nil {
		return fmt.Errorf("cannot write %s/%s: %w", collection, id, err)
	}
	return nil
}

// BulkPut writes a batch of records in a single transaction.
func (s *Store) BulkPut(ctx context.Context, collection string, records []Record) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return bulkInsert(ctx, tx, collection, records)
	})
}

// ReplaceAll clears a collection and writes the given records atomically.
// Reconciliation uses it to swap in the merged snapshot.
func (s *Store) ReplaceAll(ctx context.Context, collection string, records []Record) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, collection); err != nil {
			return err
		}
		return bulkInsert(ctx, tx, collection, records)
	})
}

// GetAll decodes every record in a collection into out, which must be a
// pointer to a slice. Rows with malformed content are dropped and logged
// rather than failing the whole load.
func (s *Store) GetAll(ctx context.Context, collection string, out any) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content FROM records WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return fmt.Errorf("cannot read collection %s: %w", collection, err)
	}
	defer rows.Close()

	raw := make([]json.RawMessage, 0)
	for rows.Next() {
		var id, content string
		if err := rows.Scan(&id, &content); err != nil {
			return fmt.Errorf("cannot scan %s row: %w", collection, err)
		}
		if !json.Valid([]byte(content)) {
			s.logger.Error("discarding malformed cached record", "collection", collection, "id", id)
			continue
		}
		raw = append(raw, json.RawMessage(content))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	joined, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(joined, out); err != nil {
		return fmt.Errorf("cannot decode collection %s: %w", collection, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("cannot delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, collection string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, collection)
	if err != nil {
		return fmt.Errorf("cannot clear collection %s: %w", collection, err)
	}
	return nil
}

// PutSetting persists a scalar local setting under a well-known key.
func (s *Store) PutSetting(ctx context.Context, key string, v any) error {
	content, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cannot encode setting %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (key, content) VALUES (?, ?)`, key, string(content))
	if err != nil {
		return fmt.Errorf("cannot write setting %s: %w", key, err)
	}
	return nil
}

// GetSetting loads a setting into out. It reports false when the key is
// absent or its cached content is malformed, so callers fall back to
// configured defaults instead of crashing on a corrupt cache.
func (s *Store) GetSetting(ctx context.Context, key string, out any) (bool, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM settings WHERE key = ?`, key).Scan(&content)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cannot read setting %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		s.logger.Error("discarding malformed cached setting", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func bulkInsert(ctx context.Context, tx *sql.Tx, collection string, records []Record) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO records (collection, id, content) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, record := range records {
		content, err := json.Marshal(record.Value)
		if err != nil {
			return fmt.Errorf("cannot encode %s/%s: %w", collection, record.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, collection, record.ID, string(content)); err != nil {
			return fmt.Errorf("cannot write %s/%s: %w", collection, record.ID, err)
		}
	}
	return nil
}
