// Package sqlite is the default point store, kept in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	// Registers the "sqlite3" driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/pointbot/internal/config"
	"github.com/pointbot/internal/domain"
)

// Repository provides SQLite-based point storage
type Repository struct {
	db     *sql.DB
	logger *slog.Logger

	// SQLite allows one writer at a time; writes queue here instead of
	// failing with SQLITE_BUSY.
	writeMu sync.Mutex
	now     func() time.Time
}

// NewRepository opens (or creates) the SQLite database at cfg.Path
func NewRepository(cfg *config.StorageConfig, logger *slog.Logger) (*Repository, error) {
	dsn := fmt.Sprintf(
		"file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on",
		cfg.Path, cfg.BusyTimeout.Milliseconds(),
	)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}, nil
}

// SetClock replaces the clock used to timestamp awarded points
func (r *Repository) SetClock(now func() time.Time) {
	r.now = now
}

// Close closes the database
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping checks that the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return storageError("pinging database", err)
	}
	return nil
}

// RunMigrations creates the tables and indexes if they do not exist
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id INTEGER PRIMARY KEY,
			first_name TEXT,
			last_name TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS points (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			meta TEXT,
			FOREIGN KEY(user_id) REFERENCES users(user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_points_user_ts ON points(user_id, ts)`,
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	for _, migration := range migrations {
		if _, err := r.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed", "driver", "sqlite")
	return nil
}

// UpsertUser inserts a user or refreshes the name fields of an existing one
func (r *Repository) UpsertUser(ctx context.Context, user domain.User) error {
	query := `
		INSERT INTO users (user_id, first_name, last_name)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name
	`

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	_, err := r.db.ExecContext(ctx, query, user.ID, user.FirstName, nullString(user.LastName))
	if err != nil {
		return storageError("upserting user", err)
	}
	return nil
}

// AwardPoint appends one point for the user at the current time.
// The insert runs in its own transaction.
func (r *Repository) AwardPoint(ctx context.Context, userID int64, meta string) (*domain.PointEvent, error) {
	event := &domain.PointEvent{
		UserID:    userID,
		Timestamp: r.now().UnixMilli(),
		Meta:      meta,
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError("beginning transaction", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO points (user_id, ts, meta) VALUES (?, ?, ?)`,
		event.UserID, event.Timestamp, nullString(event.Meta),
	)
	if err != nil {
		return nil, storageError("inserting point", err)
	}
	if event.ID, err = result.LastInsertId(); err != nil {
		return nil, storageError("reading point id", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storageError("committing point", err)
	}
	return event, nil
}

// CountPoints returns the number of points awarded to the user
func (r *Repository) CountPoints(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM points WHERE user_id = ?`, userID).Scan(&count)
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
		       COUNT(p.id) AS points
		FROM users u
		LEFT JOIN points p ON p.user_id = u.user_id
		GROUP BY u.user_id
		ORDER BY points DESC, u.first_name ASC, u.user_id ASC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, storageError("getting leaderboard", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var entry domain.LeaderboardEntry
		if err := rows.Scan(&entry.UserID, &entry.DisplayName, &entry.Points); err != nil {
			return nil, storageError("scanning leaderboard entry", err)
		}
		entry.Rank = int64(len(entries) + 1)
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
		firstName sql.NullString
		lastName  sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, first_name, last_name, created_at FROM users WHERE user_id = ?`,
		userID,
	).Scan(&user.ID, &firstName, &lastName, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, storageError("getting user", err)
	}
	user.FirstName = firstName.String
	user.LastName = lastName.String
	return &user, nil
}

// CountUsers returns the number of stored users
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, storageError("counting users", err)
	}
	return count, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
}
