package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pointbot/internal/config"
	"github.com/pointbot/internal/cooldown"
)

// PruneWorker periodically drops cooldown entries that can no longer block
// an award, keeping the in-memory table bounded by the set of recently
// rewarded users.
type PruneWorker struct {
	tracker  *cooldown.Tracker
	config   *config.PruneConfig
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewPruneWorker creates a new prune worker
func NewPruneWorker(
	tracker *cooldown.Tracker,
	cfg *config.PruneConfig,
	cooldown time.Duration,
	logger *slog.Logger,
) *PruneWorker {
	return &PruneWorker{
		tracker:  tracker,
		config:   cfg,
		cooldown: cooldown,
		logger:   logger,
		now:      time.Now,
	}
}

// Start begins the background prune loop
func (w *PruneWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	w.logger.Info("prune worker started", "interval", w.config.Interval)

	go w.run(ctx, w.stopCh, w.doneCh)
	return nil
}

// Stop stops the background prune loop
func (w *PruneWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.running = false
	w.mu.Unlock()

	close(stopCh)
	<-doneCh

	w.logger.Info("prune worker stopped")
	return nil
}

func (w *PruneWorker) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.RunOnce()
		}
	}
}

// RunOnce runs a single prune cycle and returns the number of entries removed
func (w *PruneWorker) RunOnce() int {
	removed := w.tracker.Prune(w.now(), w.cooldown)
	w.logger.Debug("prune cycle completed",
		"removed", removed,
		"remaining", w.tracker.Len(),
	)
	return removed
}

// IsRunning returns whether the worker is currently running
func (w *PruneWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
