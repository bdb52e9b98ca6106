package cooldown

import (
	"sync"
	"testing"
	"time"
)

func TestEligibleWithoutPriorAward(t *testing.T) {
	tr := NewTracker()
	if !tr.Eligible(42, time.Unix(0, 0), 20*time.Second) {
		t.Fatal("expected unknown user to be eligible")
	}
}

func TestEligibleAfterCooldown(t *testing.T) {
	tr := NewTracker()
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cooldown := 20 * time.Second

	tr.RecordAward(1, start)

	if tr.Eligible(1, start.Add(19900*time.Millisecond), cooldown) {
		t.Error("expected user to be in cooldown at t=19.9s")
	}
	if !tr.Eligible(1, start.Add(20*time.Second), cooldown) {
		t.Error("expected user to be eligible at t=20s")
	}
	if !tr.Eligible(2, start, cooldown) {
		t.Error("cooldown of one user must not affect another")
	}
}

func TestRecordAwardOverwrites(t *testing.T) {
	tr := NewTracker()
	start := time.Unix(1000, 0)
	tr.RecordAward(1, start)
	tr.RecordAward(1, start.Add(time.Minute))

	last, ok := tr.LastAward(1)
	if !ok {
		t.Fatal("expected an entry")
	}
	if !last.Equal(start.Add(time.Minute)) {
		t.Errorf("got last award %v, want %v", last, start.Add(time.Minute))
	}
	if tr.Len() != 1 {
		t.Errorf("got %d entries, want 1", tr.Len())
	}
}

func TestPrune(t *testing.T) {
	tr := NewTracker()
	now := time.Unix(10_000, 0)
	tr.RecordAward(1, now.Add(-time.Hour))
	tr.RecordAward(2, now.Add(-5*time.Second))

	removed := tr.Prune(now, 20*time.Second)
	if removed != 1 {
		t.Fatalf("got %d removed, want 1", removed)
	}
	if _, ok := tr.LastAward(1); ok {
		t.Error("expected stale entry to be pruned")
	}
	if tr.Eligible(2, now, 20*time.Second) {
		t.Error("recent entry must survive pruning")
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Eligible(id, now, time.Second)
				tr.RecordAward(id, now)
			}
		}(int64(i))
	}
	wg.Wait()

	if tr.Len() != 50 {
		t.Errorf("got %d entries, want 50", tr.Len())
	}
}
