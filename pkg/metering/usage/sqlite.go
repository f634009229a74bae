package usage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteConfig contains configuration for the SQLite usage store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/usage.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements Store using SQLite.
// Usage records are the permanent audit trail of metered consumption;
// nothing in this store mutates or deletes them.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite usage store.
// It initializes the schema and enables WAL mode if configured.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 10
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "metering.usage.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, NewStoreError("sqlite", "open", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStore{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite usage store initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
	)

	return s, nil
}

// initialize sets up the database schema and enables WAL mode.
func (s *SQLiteStore) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return NewStoreError("sqlite", "enable_wal", err)
		}
	}

	busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
		return NewStoreError("sqlite", "set_busy_timeout", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS usage_records (
		id TEXT NOT NULL PRIMARY KEY,
		idempotency_key TEXT UNIQUE,
		subject TEXT NOT NULL,
		feature TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		cost_cents INTEGER NOT NULL,
		write_off INTEGER NOT NULL DEFAULT 0,
		metadata TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_usage_subject ON usage_records(subject, created_at);
	CREATE INDEX IF NOT EXISTS idx_usage_feature ON usage_records(subject, feature, created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return NewStoreError("sqlite", "create_schema", err)
	}

	return nil
}

// Append durably writes a usage record, deduplicating on idempotency key.
func (s *SQLiteStore) Append(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Subject == "" {
		return ErrInvalidRecord
	}

	var metadata interface{}
	if len(rec.Metadata) > 0 {
		data, err := json.Marshal(rec.Metadata)
		if err != nil {
			return NewStoreError("sqlite", "encode_metadata", err)
		}
		metadata = string(data)
	}

	// Empty keys are stored as NULL so the unique index only applies to
	// records that actually carry a key.
	var idemKey interface{}
	if rec.IdempotencyKey != "" {
		idemKey = rec.IdempotencyKey
	}

	writeOff := 0
	if rec.WriteOff {
		writeOff = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records (id, idempotency_key, subject, feature, quantity, cost_cents, write_off, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, rec.ID, idemKey, rec.Subject, rec.Feature, rec.Quantity, rec.CostCents, writeOff, metadata, rec.CreatedAt.UnixNano())
	if err != nil {
		return NewStoreError("sqlite", "append", err)
	}

	return nil
}

// Recent returns the most recent records for a subject, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, subject string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, idempotency_key, subject, feature, quantity, cost_cents, write_off, metadata, created_at
		FROM usage_records
		WHERE subject = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, subject, limit)
	if err != nil {
		return nil, NewStoreError("sqlite", "query", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, NewStoreError("sqlite", "scan", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, NewStoreError("sqlite", "iterate", err)
	}

	return records, nil
}

// FeatureTotals aggregates usage for a (subject, feature) pair within [from, to).
func (s *SQLiteStore) FeatureTotals(ctx context.Context, subject, feature string, from, to time.Time) (*Totals, error) {
	totals := &Totals{}
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0), COALESCE(SUM(cost_cents), 0), COUNT(*)
		FROM usage_records
		WHERE subject = ? AND feature = ? AND created_at >= ? AND created_at < ?
	`, subject, feature, from.UnixNano(), to.UnixNano()).Scan(&totals.Quantity, &totals.CostCents, &totals.Records)
	if err != nil {
		return nil, NewStoreError("sqlite", "aggregate", err)
	}

	return totals, nil
}

// Close releases any resources held by the store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanRecord scans a single usage record row.
func scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		rec       Record
		idemKey   sql.NullString
		metadata  sql.NullString
		writeOff  int
		createdAt int64
	)
	if err := rows.Scan(&rec.ID, &idemKey, &rec.Subject, &rec.Feature, &rec.Quantity, &rec.CostCents, &writeOff, &metadata, &createdAt); err != nil {
		return nil, err
	}

	rec.IdempotencyKey = idemKey.String
	rec.WriteOff = writeOff != 0
	rec.CreatedAt = time.Unix(0, createdAt)

	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
			return nil, err
		}
	}

	return &rec, nil
}
