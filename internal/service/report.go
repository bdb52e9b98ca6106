package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pointbot/internal/config"
	"github.com/pointbot/internal/domain"
)

// NoPointsLine is the whole leaderboard report when nobody is ranked yet
const NoPointsLine = "No points yet."

// Reporter answers read-only point queries
type Reporter struct {
	store  PointStore
	award  config.AwardConfig
	logger *slog.Logger
}

// NewReporter creates a new reporter
func NewReporter(store PointStore, award config.AwardConfig, logger *slog.Logger) *Reporter {
	return &Reporter{
		store:  store,
		award:  award,
		logger: logger,
	}
}

// Welcome returns the greeting for the start command
func (r *Reporter) Welcome() string {
	return fmt.Sprintf(
		"👋 Welcome! Type messages with at least %d characters to earn points. ⏳ 1 point every %d seconds.",
		r.award.MinChars, r.award.CooldownSeconds,
	)
}

// Greet records the user and returns the welcome text
func (r *Reporter) Greet(ctx context.Context, user domain.User) (string, error) {
	if err := r.store.UpsertUser(ctx, user); err != nil {
		return "", fmt.Errorf("upserting user: %w", err)
	}
	return r.Welcome(), nil
}

// PointsSummary records the user, then returns their point total
func (r *Reporter) PointsSummary(ctx context.Context, user domain.User) (int64, error) {
	if err := r.store.UpsertUser(ctx, user); err != nil {
		return 0, fmt.Errorf("upserting user: %w", err)
	}
	count, err := r.store.CountPoints(ctx, user.ID)
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return count, nil
}

// PointsLine formats a point total for chat
func PointsLine(points int64) string {
	return fmt.Sprintf("🏆 You currently have %d points!", points)
}

// Leaderboard returns up to limit ranked entries. Non-positive limits fall
// back to the configured default; limits above the maximum are capped.
func (r *Reporter) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = r.award.LeaderboardLimit
	}
	if r.award.MaxLimit > 0 && limit > r.award.MaxLimit {
		limit = r.award.MaxLimit
	}

	entries, err := r.store.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("getting leaderboard: %w", err)
	}
	for i := range entries {
		entries[i].Rank = int64(i + 1)
		if strings.TrimSpace(entries[i].DisplayName) == "" {
			entries[i].DisplayName = fallbackName(entries[i].UserID)
		}
	}
	return entries, nil
}

// LeaderboardReport returns the leaderboard as display lines
func (r *Reporter) LeaderboardReport(ctx context.Context, limit int) ([]string, error) {
	entries, err := r.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []string{NoPointsLine}, nil
	}

	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, "🏅 Leaderboard:")
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("%d. %s — %d pts", entry.Rank, entry.DisplayName, entry.Points))
	}
	return lines, nil
}

func fallbackName(userID int64) string {
	return fmt.Sprintf("User %d", userID)
}
