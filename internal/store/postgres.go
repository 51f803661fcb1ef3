// ABOUTME: PostgreSQL implementation of the Store interface using pgx connection pools
// ABOUTME: Used when the identity directory is shared with the platform's main database

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// PostgresStore implements the Store interface on top of a pgx pool
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects to dsn, verifies the connection, and creates the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	logger := slog.Default().With("component", "store", "driver", "postgres")

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.createSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("Postgres store initialized")
	return s, nil
}

func (s *PostgresStore) createSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			email      TEXT NOT NULL,
			tier       TEXT NOT NULL DEFAULT 'free' CHECK (tier IN ('free', 'premium', 'enterprise')),
			active     BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS feature_usage (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			feature    TEXT NOT NULL,
			success    BOOLEAN NOT NULL,
			latency_ms BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_feature_usage_user ON feature_usage(user_id);
		CREATE INDEX IF NOT EXISTS idx_feature_usage_created ON feature_usage(created_at);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close releases the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// GetUser retrieves a user by id
func (s *PostgresStore) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	var tier string
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, tier, active, created_at, updated_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &tier, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	u.Tier = Tier(tier)
	return &u, nil
}

// CreateUser inserts a new user
func (s *PostgresStore) CreateUser(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if user.Tier == "" {
		user.Tier = TierFree
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, tier, active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, string(user.Tier), user.Active, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateUser
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	s.logger.Debug("created user", "user_id", user.ID, "tier", user.Tier)
	return nil
}

// SetUserActive enables or disables a user
func (s *PostgresStore) SetUserActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET active = $1, updated_at = $2 WHERE id = $3`,
		active, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsers returns every user ordered by creation time
func (s *PostgresStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, email, tier, active, created_at, updated_at FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		var tier string
		if err := rows.Scan(&u.ID, &u.Email, &tier, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		u.Tier = Tier(tier)
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return users, nil
}

// SaveUsage stores a feature usage record
func (s *PostgresStore) SaveUsage(ctx context.Context, usage *FeatureUsage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO feature_usage (id, user_id, feature, success, latency_ms, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		usage.ID, usage.UserID, usage.Feature, usage.Success, usage.LatencyMS, usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting usage: %w", err)
	}
	return nil
}

// GetUsageStats returns per-feature usage statistics with optional filters
func (s *PostgresStore) GetUsageStats(ctx context.Context, filter UsageFilter) ([]*FeatureStats, error) {
	query := `
		SELECT
			feature,
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT success),
			COALESCE(AVG(latency_ms), 0)::float8
		FROM feature_usage
		WHERE 1=1
	`
	args := []any{}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if filter.Until != nil {
		args = append(args, *filter.Until)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query += " GROUP BY feature ORDER BY feature"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying usage stats: %w", err)
	}
	defer rows.Close()

	var stats []*FeatureStats
	for rows.Next() {
		var fs FeatureStats
		if err := rows.Scan(&fs.Feature, &fs.Requests, &fs.Failures, &fs.AvgLatencyMS); err != nil {
			return nil, fmt.Errorf("scanning usage row: %w", err)
		}
		stats = append(stats, &fs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage rows: %w", err)
	}
	return stats, nil
}

var _ Store = (*PostgresStore)(nil)
