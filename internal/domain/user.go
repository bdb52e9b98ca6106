package domain

import (
	"strings"
	"time"
)

// User represents a chat participant that has been seen by the bot
type User struct {
	ID        int64     `json:"user_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName joins first and last name, trimmed
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// PointEvent is a single awarded point. Rows are append-only.
type PointEvent struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	Meta      string `json:"meta,omitempty"`
}

// LeaderboardEntry represents a single ranked row of the leaderboard
type LeaderboardEntry struct {
	Rank        int64  `json:"rank"`
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Points      int64  `json:"points"`
}
