package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/pointbot/internal/domain"
)

// memStore is an in-memory PointStore for tests
type memStore struct {
	mu        sync.Mutex
	users     map[int64]domain.User
	points    []domain.PointEvent
	upserts   int
	failAward error
	failUser  error
}

func newMemStore() *memStore {
	return &memStore{users: make(map[int64]domain.User)}
}

func (s *memStore) UpsertUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUser != nil {
		return s.failUser
	}
	s.upserts++
	s.users[user.ID] = user
	return nil
}

func (s *memStore) AwardPoint(_ context.Context, userID int64, meta string) (*domain.PointEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAward != nil {
		return nil, s.failAward
	}
	if _, ok := s.users[userID]; !ok {
		return nil, errors.New("foreign key violation")
	}
	ev := domain.PointEvent{ID: int64(len(s.points) + 1), UserID: userID, Meta: meta}
	s.points = append(s.points, ev)
	return &ev, nil
}

func (s *memStore) CountPoints(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, p := range s.points {
		if p.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *memStore) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	users := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	s.mu.Unlock()

	entries := make([]domain.LeaderboardEntry, 0, len(users))
	firstNames := make(map[int64]string, len(users))
	for _, u := range users {
		n, _ := s.CountPoints(ctx, u.ID)
		firstNames[u.ID] = u.FirstName
		entries = append(entries, domain.LeaderboardEntry{UserID: u.ID, DisplayName: u.DisplayName(), Points: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return firstNames[entries[i].UserID] < firstNames[entries[j].UserID]
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *memStore) pointCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}
