package service

import (
	"context"

	"github.com/pointbot/internal/domain"
)

// PointStore persists users and awarded points.
// Reads must observe every completed write; implementations do not cache.
type PointStore interface {
	UpsertUser(ctx context.Context, user domain.User) error
	AwardPoint(ctx context.Context, userID int64, meta string) (*domain.PointEvent, error)
	CountPoints(ctx context.Context, userID int64) (int64, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// AwardListener is notified after a point has been stored
type AwardListener interface {
	PointAwarded(user domain.User, total int64)
}
