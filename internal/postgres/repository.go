package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointbot/internal/config"
	"github.com/pointbot/internal/domain"
)

// Repository provides PostgreSQL-based point storage
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
		now:    time.Now,
	}, nil
}

// SetClock replaces the clock used to timestamp awarded points
func (r *Repository) SetClock(now func() time.Time) {
	r.now = now
}

// Close closes the database connection pool
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// Ping checks that the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return storageError("pinging database", err)
	}
	return nil
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id BIGINT PRIMARY KEY,
			first_name TEXT,
			last_name TEXT,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS points (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(user_id),
			ts BIGINT NOT NULL,
			meta TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_points_user_ts ON points(user_id, ts)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed", "driver", "postgres")
	return nil
}

// UpsertUser inserts a user or refreshes the name fields of an existing one
func (r *Repository) UpsertUser(ctx context.Context, user domain.User) error {
	query := `
		INSERT INTO users (user_id, first_name, last_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name
	`
	_, err := r.pool.Exec(ctx, query, user.ID, user.FirstName, nullable(user.LastName))
	if err != nil {
		return storageError("upserting user", err)
	}
	return nil
}

// AwardPoint appends one point for the user at the current time
func (r *Repository) AwardPoint(ctx context.Context, userID int64, meta string) (*domain.PointEvent, error) {
	event := &domain.PointEvent{
		UserID:    userID,
		Timestamp: r.now().UnixMilli(),
		Meta:      meta,
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`INSERT INTO points (user_id, ts, meta) VALUES ($1, $2, $3) RETURNING id`,
			event.UserID, event.Timestamp, nullable(event.Meta),
		).Scan(&event.ID)
	})
	if err != nil {
		return nil, storageError("awarding point", err)
	}
	return event, nil
}

// CountPoints returns the number of points awarded to the user
func (r *Repository) CountPoints(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM points WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, storageError("counting points", err)
	}
	return count, nil
}

// Leaderboard ranks every known user by point count, highest first, with
// ties broken by first name
func (r *Repository) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	query := `
		SELECT u.user_id,
		       TRIM(COALESCE(u.first_name, '') || ' ' || COALESCE(u.last_name, '')) AS full_name,
		       COUNT(p.id) AS points,
		       ROW_NUMBER() OVER (ORDER BY COUNT(p.id) DESC, u.first_name ASC, u.user_id ASC) AS rank
		FROM users u
		LEFT JOIN points p ON p.user_id = u.user_id
		GROUP BY u.user_id
		ORDER BY points DESC, u.first_name ASC, u.user_id ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, storageError("getting leaderboard", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var entry domain.LeaderboardEntry
		if err := rows.Scan(&entry.UserID, &entry.DisplayName, &entry.Points, &entry.Rank); err != nil {
			return nil, storageError("scanning leaderboard entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("iterating leaderboard", err)
	}
	return entries, nil
}

// GetUser returns a stored user
func (r *Repository) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	var (
		user      domain.User
		firstName *string
		lastName  *string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, first_name, last_name, created_at FROM users WHERE user_id = $1`,
		userID,
	).Scan(&user.ID, &firstName, &lastName, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, storageError("getting user", err)
	}
	if firstName != nil {
		user.FirstName = *firstName
	}
	if lastName != nil {
		user.LastName = *lastName
	}
	return &user, nil
}

// CountUsers returns the number of stored users
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, storageError("counting users", err)
	}
	return count, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
}
