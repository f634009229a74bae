package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements Store using SQLite for persistence.
// This store survives restarts and is suitable for single-instance
// deployments. It uses a write-ahead log (WAL) for better concurrent
// performance and periodic checkpointing to balance write performance
// with durability.
//
// Debits are guarded by a conditional UPDATE inside a transaction: the
// balance adjustment and the transaction append commit together, and a
// debit that would drive the balance negative affects zero rows and is
// rolled back.
type SQLiteStore struct {
	db               *sql.DB
	dbPath           string
	snapshotInterval time.Duration
	done             chan struct{}
	closeOnce        sync.Once

	// prepared statements for the hot read paths
	quotaStmt   *sql.Stmt
	balanceStmt *sql.Stmt
	sumStmt     *sql.Stmt
	listStmt    *sql.Stmt
}

// SQLiteStoreConfig configures the SQLite store.
type SQLiteStoreConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// SnapshotInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	SnapshotInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteStore creates a new SQLite store with default settings.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(SQLiteStoreConfig{
		DBPath:           dbPath,
		SnapshotInterval: 5 * time.Minute,
		BusyTimeout:      5 * time.Second,
	})
}

// NewSQLiteStoreWithConfig creates a new SQLite store with custom configuration.
func NewSQLiteStoreWithConfig(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.SnapshotInterval == 0 {
		cfg.SnapshotInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	// Open database with WAL mode and busy timeout
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:               db,
		dbPath:           cfg.DBPath,
		snapshotInterval: cfg.SnapshotInterval,
		done:             make(chan struct{}),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	go store.checkpointLoop()

	return store, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rate_windows (
		key TEXT NOT NULL PRIMARY KEY,
		window_start INTEGER NOT NULL,
		count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daily_quotas (
		subject TEXT NOT NULL,
		feature TEXT NOT NULL,
		day TEXT NOT NULL,
		consumed INTEGER NOT NULL,
		PRIMARY KEY (subject, feature, day)
	);

	CREATE TABLE IF NOT EXISTS accounts (
		subject TEXT NOT NULL PRIMARY KEY,
		balance INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT NOT NULL PRIMARY KEY,
		subject TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount INTEGER NOT NULL,
		reason TEXT NOT NULL,
		metadata TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_windows_start ON rate_windows(window_start);
	CREATE INDEX IF NOT EXISTS idx_quotas_day ON daily_quotas(day);
	CREATE INDEX IF NOT EXISTS idx_tx_subject ON transactions(subject, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.quotaStmt, err = s.db.Prepare(`
		SELECT consumed FROM daily_quotas
		WHERE subject = ? AND feature = ? AND day = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare quota statement: %w", err)
	}

	s.balanceStmt, err = s.db.Prepare(`
		SELECT balance FROM accounts WHERE subject = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare balance statement: %w", err)
	}

	s.sumStmt, err = s.db.Prepare(`
		SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE subject = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare sum statement: %w", err)
	}

	s.listStmt, err = s.db.Prepare(`
		SELECT id, subject, kind, amount, reason, metadata, created_at
		FROM transactions
		WHERE subject = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare list statement: %w", err)
	}

	return nil
}

// BumpWindow atomically increments the fixed-window counter for key.
func (s *SQLiteStore) BumpWindow(ctx context.Context, key string, windowStart time.Time, limit int64) (int64, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		start int64
		count int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT window_start, count FROM rate_windows WHERE key = ?`, key,
	).Scan(&start, &count)

	ws := windowStart.Unix()

	switch {
	case err == sql.ErrNoRows || (err == nil && start != ws):
		// New or expired window: replace with a fresh count of 1.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rate_windows (key, window_start, count) VALUES (?, ?, 1)
			ON CONFLICT (key) DO UPDATE SET window_start = excluded.window_start, count = 1
		`, key, ws)
		if err != nil {
			return 0, false, fmt.Errorf("failed to reset window: %w", err)
		}
		count = 1

	case err != nil:
		return 0, false, fmt.Errorf("failed to load window: %w", err)

	case count < limit:
		count++
		if _, err = tx.ExecContext(ctx,
			`UPDATE rate_windows SET count = ? WHERE key = ?`, count, key,
		); err != nil {
			return 0, false, fmt.Errorf("failed to increment window: %w", err)
		}

	default:
		// Window is full; the count is returned unchanged.
		if err = tx.Commit(); err != nil {
			return 0, false, fmt.Errorf("failed to commit: %w", err)
		}
		return count, false, nil
	}

	if err = tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit: %w", err)
	}

	return count, true, nil
}

// PruneWindows removes windows whose start is before the cutoff.
func (s *SQLiteStore) PruneWindows(ctx context.Context, before time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_windows WHERE window_start < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune windows: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(deleted), nil
}

// QuotaConsumed returns the consumed quantity for (subject, feature, day).
func (s *SQLiteStore) QuotaConsumed(ctx context.Context, subject, feature, day string) (int64, error) {
	if subject == "" {
		return 0, ErrInvalidSubject
	}

	var consumed int64
	err := s.quotaStmt.QueryRowContext(ctx, subject, feature, day).Scan(&consumed)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load quota: %w", err)
	}

	return consumed, nil
}

// AddQuotaConsumed adds quantity to the consumed counter for (subject, feature, day).
func (s *SQLiteStore) AddQuotaConsumed(ctx context.Context, subject, feature, day string, quantity int64) (int64, error) {
	if subject == "" {
		return 0, ErrInvalidSubject
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_quotas (subject, feature, day, consumed) VALUES (?, ?, ?, ?)
		ON CONFLICT (subject, feature, day) DO UPDATE SET consumed = consumed + excluded.consumed
	`, subject, feature, day, quantity)
	if err != nil {
		return 0, fmt.Errorf("failed to add quota consumption: %w", err)
	}

	var consumed int64
	err = tx.QueryRowContext(ctx,
		`SELECT consumed FROM daily_quotas WHERE subject = ? AND feature = ? AND day = ?`,
		subject, feature, day,
	).Scan(&consumed)
	if err != nil {
		return 0, fmt.Errorf("failed to read quota: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	return consumed, nil
}

// PruneQuotas removes quota records for days before the cutoff day key.
func (s *SQLiteStore) PruneQuotas(ctx context.Context, beforeDay string) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM daily_quotas WHERE day < ?`, beforeDay)
	if err != nil {
		return 0, fmt.Errorf("failed to prune quotas: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(deleted), nil
}

// Balance returns the current balance for a subject, creating a
// zero-balance account if none exists.
func (s *SQLiteStore) Balance(ctx context.Context, subject string) (int64, error) {
	if subject == "" {
		return 0, ErrInvalidSubject
	}

	var balance int64
	err := s.balanceStmt.QueryRowContext(ctx, subject).Scan(&balance)
	if err == sql.ErrNoRows {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO accounts (subject, balance) VALUES (?, 0)`, subject,
		); err != nil {
			return 0, fmt.Errorf("failed to create account: %w", err)
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load balance: %w", err)
	}

	return balance, nil
}

// ApplyTransaction atomically appends a transaction and adjusts the balance.
func (s *SQLiteStore) ApplyTransaction(ctx context.Context, txRec *TransactionRecord) (int64, error) {
	if txRec == nil || txRec.Subject == "" {
		return 0, ErrInvalidSubject
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO accounts (subject, balance) VALUES (?, 0)`, txRec.Subject,
	); err != nil {
		return 0, fmt.Errorf("failed to create account: %w", err)
	}

	// Conditional update: a debit that would drive the balance negative
	// affects zero rows and the whole transaction is rolled back.
	result, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + ? WHERE subject = ? AND balance + ? >= 0`,
		txRec.Amount, txRec.Subject, txRec.Amount)
	if err != nil {
		return 0, fmt.Errorf("failed to update balance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		var balance int64
		_ = tx.QueryRowContext(ctx,
			`SELECT balance FROM accounts WHERE subject = ?`, txRec.Subject,
		).Scan(&balance)
		return balance, ErrInsufficientFunds
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, subject, kind, amount, reason, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, txRec.ID, txRec.Subject, txRec.Kind, txRec.Amount, txRec.Reason, txRec.Metadata, txRec.CreatedAt.UnixNano()); err != nil {
		return 0, fmt.Errorf("failed to append transaction: %w", err)
	}

	var balance int64
	err = tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE subject = ?`, txRec.Subject,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	return balance, nil
}

// Transactions returns the most recent transactions for a subject, newest first.
func (s *SQLiteStore) Transactions(ctx context.Context, subject string, limit int) ([]*TransactionRecord, error) {
	if subject == "" {
		return nil, ErrInvalidSubject
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.listStmt.QueryContext(ctx, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var records []*TransactionRecord
	for rows.Next() {
		var (
			rec       TransactionRecord
			metadata  sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.Subject, &rec.Kind, &rec.Amount, &rec.Reason, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec.Metadata = metadata.String
		rec.CreatedAt = time.Unix(0, createdAt)
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// TransactionSum returns the sum of transaction amounts for a subject.
func (s *SQLiteStore) TransactionSum(ctx context.Context, subject string) (int64, error) {
	if subject == "" {
		return 0, ErrInvalidSubject
	}

	var sum int64
	if err := s.sumStmt.QueryRowContext(ctx, subject).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum transactions: %w", err)
	}

	return sum, nil
}

// Close releases any resources held by the store.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteStore) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)

		if s.quotaStmt != nil {
			s.quotaStmt.Close()
		}
		if s.balanceStmt != nil {
			s.balanceStmt.Close()
		}
		if s.sumStmt != nil {
			s.sumStmt.Close()
		}
		if s.listStmt != nil {
			s.listStmt.Close()
		}

		if s.db != nil {
			// Run final checkpoint
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteStore) checkpointLoop() {
	ticker := time.NewTicker(s.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}
