package locks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"
)

// SQLiteStore implements the lease table on an embedded SQLite database.
// The compare-and-set is a single conditional upsert, so SQLite's writer
// serialization gives the per-key atomicity the store contract requires.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewSQLiteStore opens (and if needed initializes) a SQLite lease store.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db, logger: logger, now: time.Now}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS leases (
    lock_key TEXT PRIMARY KEY,
    holder INTEGER NOT NULL,
    claimed_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leases_expires_at ON leases(expires_at);
`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}
	return nil
}

// TryClaim upserts the lease, but only past an existing row when that row
// belongs to the same holder or has expired.
func (s *SQLiteStore) TryClaim(ctx context.Context, key string, holder int, ttl time.Duration) (bool, int, error) {
	if holder <= 0 {
		return false, 0, ErrInvalidHolder
	}

	now := s.now()
	query := `
		INSERT INTO leases (lock_key, holder, claimed_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(lock_key) DO UPDATE SET
			holder = excluded.holder,
			claimed_at = excluded.claimed_at,
			expires_at = excluded.expires_at
		WHERE leases.holder = excluded.holder OR leases.expires_at <= ?`

	res, err := s.db.ExecContext(ctx, query,
		key, holder, now.UnixNano(), now.Add(ttl).UnixNano(), now.UnixNano())
	if err != nil {
		return false, 0, fmt.Errorf("failed to claim lease: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("failed to read claim result: %w", err)
	}
	if affected > 0 {
		return true, holder, nil
	}

	// Conflict: report the current holder without mutation.
	var current int
	err = s.db.QueryRowContext(ctx,
		`SELECT holder FROM leases WHERE lock_key = ? AND expires_at > ?`,
		key, now.UnixNano()).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The conflicting lease was released or expired between the two
			// statements; the caller's next claim will succeed.
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("failed to read conflicting lease: %w", err)
	}
	return false, current, nil
}

// Release deletes the lease only when the holder value matches. Idempotent.
func (s *SQLiteStore) Release(ctx context.Context, key string, holder int) error {
	if holder <= 0 {
		return ErrInvalidHolder
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM leases WHERE lock_key = ? AND holder = ?`, key, holder)
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

// Status reports the holder value per key, treating expired rows as free.
func (s *SQLiteStore) Status(ctx context.Context, keys []string) (map[string]int, error) {
	states := make(map[string]int, len(keys))
	if len(keys) == 0 {
		return states, nil
	}
	for _, key := range keys {
		states[key] = 0
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, 0, len(keys)+1)
	for _, key := range keys {
		args = append(args, key)
	}
	args = append(args, s.now().UnixNano())

	query := fmt.Sprintf(
		`SELECT lock_key, holder FROM leases WHERE lock_key IN (%s) AND expires_at > ?`,
		placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read lease states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var holder int
		if err := rows.Scan(&key, &holder); err != nil {
			return nil, fmt.Errorf("failed to scan lease state: %w", err)
		}
		states[key] = holder
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lease states: %w", err)
	}
	return states, nil
}

// Sweep deletes expired rows and reports how many were removed.
func (s *SQLiteStore) Sweep(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM leases WHERE expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired leases: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read sweep result: %w", err)
	}
	return int(removed), nil
}

// Count reports the number of live lease rows.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leases WHERE expires_at > ?`, s.now().UnixNano()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count leases: %w", err)
	}
	return count, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
