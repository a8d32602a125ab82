package dedup

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/perimetra/vulnfeed/internal/errors"
	"github.com/perimetra/vulnfeed/internal/types"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists processed identities in a SQLite database. Reads are
// served from memory like every other backend; the database is only touched
// at open, commit and close.
type SQLiteStore struct {
	*recordSet
	db       *sql.DB
	lockPath string
	readOnly bool
}

// NewSQLiteStore opens the database at dbPath and loads the full set
func NewSQLiteStore(dbPath string, opts Options) (*SQLiteStore, error) {
	// _journal_mode=WAL: allows a reader (serve mode) next to the run's writer
	// _busy_timeout=3000: wait up to 3 seconds for locks instead of failing
	connStr := dbPath + "?mode=rwc&_journal_mode=WAL&_busy_timeout=3000"

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, errors.NewTransientf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	// Verify WAL actually took effect
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		db.Close()
		return nil, errors.NewTransientf("failed to check journal mode: %w", err)
	}
	if !strings.EqualFold(journalMode, "wal") {
		db.Close()
		return nil, errors.NewTransientf("WAL journal mode not enabled (got %s)", journalMode)
	}

	store := &SQLiteStore{
		recordSet: newRecordSet(),
		db:        db,
		lockPath:  dbPath + ".lock",
		readOnly:  opts.ReadOnly,
	}

	if !opts.ReadOnly {
		if err := acquireLock(store.lockPath); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := store.initSchema(); err != nil {
		store.cleanupOpen()
		return nil, errors.NewPermanentf("failed to initialize schema: %w", err)
	}

	if err := store.load(); err != nil {
		store.cleanupOpen()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) cleanupOpen() {
	if !s.readOnly {
		_ = releaseLock(s.lockPath)
	}
	s.db.Close()
}

// initSchema creates the database schema
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS processed_items (
		source TEXT NOT NULL,
		external_id TEXT NOT NULL,
		title TEXT,
		first_seen INTEGER NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (cast(strftime('%s', 'now') as integer)),
		PRIMARY KEY (source, external_id)
	);

	CREATE INDEX IF NOT EXISTS idx_processed_items_first_seen ON processed_items(first_seen);
	CREATE INDEX IF NOT EXISTS idx_processed_items_source ON processed_items(source);
	`

	_, err := s.db.Exec(schema)
	return err
}

// load reads every row into the in-memory set
func (s *SQLiteStore) load() error {
	rows, err := s.db.Query(`
		SELECT source, external_id, title, first_seen FROM processed_items
	`)
	if err != nil {
		return errors.NewPermanentf("failed to load processed items: %v: %w", err, errors.ErrStoreCorrupt)
	}
	defer rows.Close()

	var records []types.ProcessedRecord
	for rows.Next() {
		var sourceStr string
		var rec types.ProcessedRecord
		var title sql.NullString
		var firstSeen int64
		if err := rows.Scan(&sourceStr, &rec.ExternalID, &title, &firstSeen); err != nil {
			return errors.NewPermanentf("failed to scan processed item: %v: %w", err, errors.ErrStoreCorrupt)
		}

		source, ok := types.ParseSource(sourceStr)
		if !ok {
			return errors.NewPermanentf("unknown source %q in database: %w", sourceStr, errors.ErrStoreCorrupt)
		}
		rec.Source = source
		rec.Title = title.String
		rec.FirstSeen = time.Unix(firstSeen, 0).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return errors.NewPermanentf("error iterating processed items: %v: %w", err, errors.ErrStoreCorrupt)
	}

	s.replace(records)
	return nil
}

// Commit rewrites the table from the in-memory set in one transaction
func (s *SQLiteStore) Commit(ctx context.Context) error {
	if s.readOnly {
		return errors.NewPermanentf("store opened read-only")
	}
	if err := ctx.Err(); err != nil {
		return errors.NewTransientf("commit cancelled: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewTransientf("failed to begin commit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM processed_items`); err != nil {
		return errors.NewTransientf("failed to clear processed items: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO processed_items (source, external_id, title, first_seen)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return errors.NewTransientf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range s.snapshot() {
		if _, err := stmt.ExecContext(ctx,
			string(rec.Source), rec.ExternalID, rec.Title, rec.FirstSeen.Unix(),
		); err != nil {
			return errors.NewTransientf("failed to insert processed item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewTransientf("failed to commit transaction: %w", err)
	}

	return nil
}

// Close releases the run lock and the database connection
func (s *SQLiteStore) Close() error {
	if !s.readOnly {
		if err := releaseLock(s.lockPath); err != nil {
			s.db.Close()
			return err
		}
	}
	return s.db.Close()
}
