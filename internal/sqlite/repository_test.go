package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pointbot/internal/config"
	"github.com/pointbot/internal/domain"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()

	cfg := &config.StorageConfig{
		Path:            filepath.Join(t.TempDir(), "points.db"),
		MaxConnections:  4,
		ConnMaxLifetime: time.Hour,
		BusyTimeout:     5 * time.Second,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo, err := NewRepository(cfg, logger)
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	if err := repo.RunMigrations(context.Background()); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return repo
}

func mustUpsert(t *testing.T, repo *Repository, user domain.User) {
	t.Helper()
	if err := repo.UpsertUser(context.Background(), user); err != nil {
		t.Fatalf("UpsertUser(%d): %v", user.ID, err)
	}
}

func mustAward(t *testing.T, repo *Repository, userID int64, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := repo.AwardPoint(context.Background(), userID, ""); err != nil {
			t.Fatalf("AwardPoint(%d): %v", userID, err)
		}
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	repo := setupTestRepo(t)
	if err := repo.RunMigrations(context.Background()); err != nil {
		t.Fatalf("second migration run failed: %v", err)
	}
}

func TestUpsertUserIsIdempotent(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	user := domain.User{ID: 7, FirstName: "Ana", LastName: "Cruz"}

	mustUpsert(t, repo, user)
	mustUpsert(t, repo, user)

	count, err := repo.CountUsers(ctx)
	if err != nil {
		t.Fatalf("CountUsers: %v", err)
	}
	if count != 1 {
		t.Fatalf("got %d users, want 1", count)
	}

	got, err := repo.GetUser(ctx, 7)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.FirstName != "Ana" || got.LastName != "Cruz" {
		t.Errorf("got %+v, want Ana Cruz", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestUpsertUserRefreshesNames(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	mustUpsert(t, repo, domain.User{ID: 1, FirstName: "Old", LastName: "Name"})
	mustUpsert(t, repo, domain.User{ID: 1, FirstName: "New"})

	got, err := repo.GetUser(ctx, 1)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.FirstName != "New" || got.LastName != "" {
		t.Errorf("names not refreshed: %+v", got)
	}
}

func TestGetUserNotFound(t *testing.T) {
	repo := setupTestRepo(t)
	_, err := repo.GetUser(context.Background(), 404)
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("got %v, want ErrUserNotFound", err)
	}
}

func TestAwardPointAndCount(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return fixed })

	mustUpsert(t, repo, domain.User{ID: 1, FirstName: "Ana"})

	count, err := repo.CountPoints(ctx, 1)
	if err != nil {
		t.Fatalf("CountPoints: %v", err)
	}
	if count != 0 {
		t.Fatalf("got %d points before any award, want 0", count)
	}

	event, err := repo.AwardPoint(ctx, 1, `{"source":"test"}`)
	if err != nil {
		t.Fatalf("AwardPoint: %v", err)
	}
	if event.ID == 0 {
		t.Error("expected an assigned id")
	}
	if event.Timestamp != fixed.UnixMilli() {
		t.Errorf("timestamp = %d, want %d", event.Timestamp, fixed.UnixMilli())
	}

	mustAward(t, repo, 1, 2)

	count, err = repo.CountPoints(ctx, 1)
	if err != nil {
		t.Fatalf("CountPoints: %v", err)
	}
	if count != 3 {
		t.Errorf("got %d points, want 3", count)
	}
}

func TestCountPointsUnknownUser(t *testing.T) {
	repo := setupTestRepo(t)
	count, err := repo.CountPoints(context.Background(), 999)
	if err != nil {
		t.Fatalf("CountPoints: %v", err)
	}
	if count != 0 {
		t.Errorf("got %d, want 0", count)
	}
}

func TestAwardPointRequiresKnownUser(t *testing.T) {
	repo := setupTestRepo(t)
	_, err := repo.AwardPoint(context.Background(), 12345, "")
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected a storage error for an unknown user, got %v", err)
	}
	count, _ := repo.CountPoints(context.Background(), 12345)
	if count != 0 {
		t.Errorf("failed award must not leave a row, got %d", count)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	mustUpsert(t, repo, domain.User{ID: 2, FirstName: "Bea"})
	mustUpsert(t, repo, domain.User{ID: 1, FirstName: "Ana", LastName: "Cruz"})
	mustUpsert(t, repo, domain.User{ID: 3, FirstName: "Cid"})
	mustUpsert(t, repo, domain.User{ID: 4, FirstName: "Dan"})
	mustAward(t, repo, 1, 3)
	mustAward(t, repo, 2, 3)
	mustAward(t, repo, 3, 1)

	entries, err := repo.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}

	want := []domain.LeaderboardEntry{
		{Rank: 1, UserID: 1, DisplayName: "Ana Cruz", Points: 3},
		{Rank: 2, UserID: 2, DisplayName: "Bea", Points: 3},
		{Rank: 3, UserID: 3, DisplayName: "Cid", Points: 1},
		{Rank: 4, UserID: 4, DisplayName: "Dan", Points: 0},
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d: %+v", len(entries), len(want), entries)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
	}

	top, err := repo.Leaderboard(ctx, 2)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(top) != 2 {
		t.Errorf("limit not applied, got %d entries", len(top))
	}
}

func TestLeaderboardEmpty(t *testing.T) {
	repo := setupTestRepo(t)
	entries, err := repo.Leaderboard(context.Background(), 20)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %+v", entries)
	}
}

func TestConcurrentAwards(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	const users, perUser = 8, 25
	for id := int64(1); id <= users; id++ {
		mustUpsert(t, repo, domain.User{ID: id, FirstName: "user"})
	}

	var wg sync.WaitGroup
	errs := make(chan error, users*perUser)
	for id := int64(1); id <= users; id++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for i := 0; i < perUser; i++ {
				if _, err := repo.AwardPoint(ctx, id, ""); err != nil {
					errs <- err
				}
			}
		}(id)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent award failed: %v", err)
	}
	for id := int64(1); id <= users; id++ {
		count, err := repo.CountPoints(ctx, id)
		if err != nil {
			t.Fatalf("CountPoints: %v", err)
		}
		if count != perUser {
			t.Errorf("user %d has %d points, want %d", id, count, perUser)
		}
	}
}
