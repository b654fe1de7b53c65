package locks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresStore implements the lease table on PostgreSQL for deployments
// where several coordinator instances share one database. The schema is
// managed by the migrations in locks/schema.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewPostgresStore creates a PostgreSQL-backed lease store.
func NewPostgresStore(dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger, now: time.Now}, nil
}

// TryClaim upserts the lease; the conditional DO UPDATE only fires for a
// same-holder or expired row, which is the database-level compare-and-set.
func (s *PostgresStore) TryClaim(ctx context.Context, key string, holder int, ttl time.Duration) (bool, int, error) {
	if holder <= 0 {
		return false, 0, ErrInvalidHolder
	}

	now := s.now()
	query := `
		INSERT INTO leases (lock_key, holder, claimed_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lock_key) DO UPDATE SET
			holder = EXCLUDED.holder,
			claimed_at = EXCLUDED.claimed_at,
			expires_at = EXCLUDED.expires_at
		WHERE leases.holder = EXCLUDED.holder OR leases.expires_at <= $5`

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

	var current int
	err = s.db.QueryRowContext(ctx,
		`SELECT holder FROM leases WHERE lock_key = $1 AND expires_at > $2`,
		key, now.UnixNano()).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("failed to read conflicting lease: %w", err)
	}
	return false, current, nil
}

// Release deletes the lease only when the holder value matches. Idempotent.
func (s *PostgresStore) Release(ctx context.Context, key string, holder int) error {
	if holder <= 0 {
		return ErrInvalidHolder
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM leases WHERE lock_key = $1 AND holder = $2`, key, holder)
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

// Status reports the holder value per key, treating expired rows as free.
func (s *PostgresStore) Status(ctx context.Context, keys []string) (map[string]int, error) {
	states := make(map[string]int, len(keys))
	if len(keys) == 0 {
		return states, nil
	}
	for _, key := range keys {
		states[key] = 0
	}

	placeholders := make([]string, len(keys))
	args := make([]any, 0, len(keys)+1)
	for i, key := range keys {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, key)
	}
	args = append(args, s.now().UnixNano())

	query := fmt.Sprintf(
		`SELECT lock_key, holder FROM leases WHERE lock_key IN (%s) AND expires_at > $%d`,
		strings.Join(placeholders, ","), len(keys)+1)

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
func (s *PostgresStore) Sweep(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM leases WHERE expires_at <= $1`, s.now().UnixNano())
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
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leases WHERE expires_at > $1`, s.now().UnixNano()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count leases: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
