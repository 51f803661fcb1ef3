// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Holds the user directory and feature usage log with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store", "driver", "sqlite")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Each connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			email      TEXT NOT NULL,
			tier       TEXT NOT NULL DEFAULT 'free',
			active     INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			CHECK (tier IN ('free', 'premium', 'enterprise'))
		);

		CREATE TABLE IF NOT EXISTS feature_usage (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			feature    TEXT NOT NULL,
			success    INTEGER NOT NULL,
			latency_ms INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_feature_usage_user ON feature_usage(user_id);
		CREATE INDEX IF NOT EXISTS idx_feature_usage_created ON feature_usage(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetUser retrieves a user by id
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	query := `SELECT id, email, tier, active, created_at, updated_at FROM users WHERE id = ?`

	var u User
	var tier string
	var active int
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &tier, &active, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	u.Tier = Tier(tier)
	u.Active = active != 0
	if u.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if u.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &u, nil
}

// CreateUser inserts a new user
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if user.Tier == "" {
		user.Tier = TierFree
	}

	query := `
		INSERT INTO users (id, email, tier, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		string(user.Tier),
		boolToInt(user.Active),
		user.CreatedAt.UTC().Format(time.RFC3339),
		user.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateUser
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Debug("created user", "user_id", user.ID, "tier", user.Tier)
	return nil
}

// SetUserActive enables or disables a user
func (s *SQLiteStore) SetUserActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE users SET active = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, boolToInt(active), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsers returns every user ordered by creation time
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*User, error) {
	query := `SELECT id, email, tier, active, created_at, updated_at FROM users ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*User
	for rows.Next() {
		var u User
		var tier string
		var active int
		var createdAt, updatedAt string
		if err := rows.Scan(&u.ID, &u.Email, &tier, &active, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		u.Tier = Tier(tier)
		u.Active = active != 0
		u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return users, nil
}

// SaveUsage stores a feature usage record
func (s *SQLiteStore) SaveUsage(ctx context.Context, usage *FeatureUsage) error {
	query := `
		INSERT INTO feature_usage (id, user_id, feature, success, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		usage.ID,
		usage.UserID,
		usage.Feature,
		boolToInt(usage.Success),
		usage.LatencyMS,
		usage.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting usage: %w", err)
	}
	return nil
}

// GetUsageStats returns per-feature usage statistics with optional filters
func (s *SQLiteStore) GetUsageStats(ctx context.Context, filter UsageFilter) ([]*FeatureStats, error) {
	query := `
		SELECT
			feature,
			COUNT(*) AS requests,
			COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0) AS failures,
			COALESCE(AVG(latency_ms), 0) AS avg_latency
		FROM feature_usage
		WHERE 1=1
	`
	args := []any{}

	if filter.UserID != nil {
		query += " AND user_id = ?"
		args = append(args, *filter.UserID)
	}
	if filter.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}
	if filter.Until != nil {
		query += " AND created_at < ?"
		args = append(args, filter.Until.UTC().Format(time.RFC3339Nano))
	}
	query += " GROUP BY feature ORDER BY feature"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying usage stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)
