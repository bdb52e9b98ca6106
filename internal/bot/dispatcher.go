// Package bot routes chat events to the award engine and the reporter and
// sends whatever reply they produce.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/pointbot/internal/domain"
	"github.com/pointbot/internal/service"
)

// Commands understood by the dispatcher
const (
	CommandStart       = "start"
	CommandPoints      = "points"
	CommandLeaderboard = "leaderboard"
)

// Replier sends a text reply back to where an event came from
type Replier interface {
	Reply(ctx context.Context, ev domain.ChatEvent, text string) error
}

// Dispatcher handles one chat event at a time
type Dispatcher struct {
	engine           *service.AwardEngine
	reporter         *service.Reporter
	leaderboardLimit int
	logger           *slog.Logger
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(engine *service.AwardEngine, reporter *service.Reporter, leaderboardLimit int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		engine:           engine,
		reporter:         reporter,
		leaderboardLimit: leaderboardLimit,
		logger:           logger,
	}
}

// Dispatch processes a single event. Storage failures are logged and the
// event is dropped; the caller's loop keeps running. The returned error
// is only for callers that want to count failures.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.ChatEvent, replier Replier) error {
	logger := d.logger.With(
		"event_id", uuid.NewString(),
		"source", ev.Source,
		"user_id", ev.UserID,
		"chat_id", ev.ChatID,
	)

	if err := ev.Validate(); err != nil {
		logger.Warn("dropping invalid event", "error", err)
		return err
	}

	var (
		reply string
		err   error
	)
	if name, ok := ParseCommand(ev.Text); ok {
		reply, err = d.handleCommand(ctx, name, ev)
	} else {
		reply, err = d.handleMessage(ctx, ev, logger)
	}
	if err != nil {
		logger.Error("failed to process event", "error", err)
		return err
	}

	if reply == "" {
		return nil
	}
	if err := replier.Reply(ctx, ev, reply); err != nil {
		logger.Error("failed to send reply", "error", err)
		return fmt.Errorf("sending reply: %w", err)
	}
	return nil
}

func (d *Dispatcher) handleMessage(ctx context.Context, ev domain.ChatEvent, logger *slog.Logger) (string, error) {
	out, err := d.engine.HandleMessage(ctx, ev)
	if err != nil {
		return "", err
	}
	logger.Debug("message evaluated", "decision", out.Decision)
	return out.Reply, nil
}

// handleCommand answers a command; unknown commands get no reply
func (d *Dispatcher) handleCommand(ctx context.Context, name string, ev domain.ChatEvent) (string, error) {
	switch name {
	case CommandStart:
		return d.reporter.Greet(ctx, ev.User())

	case CommandPoints:
		points, err := d.reporter.PointsSummary(ctx, ev.User())
		if err != nil {
			return "", err
		}
		return service.PointsLine(points), nil

	case CommandLeaderboard:
		lines, err := d.reporter.LeaderboardReport(ctx, d.leaderboardLimit)
		if err != nil {
			return "", err
		}
		return strings.Join(lines, "\n"), nil

	default:
		d.logger.Debug("ignoring unknown command", "command", name)
		return "", nil
	}
}

// ParseCommand extracts the command name from text such as
// "/points" or "/points@MyBot extra". ok is false for plain messages.
func ParseCommand(text string) (name string, ok bool) {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "/") {
		return "", false
	}
	word := strings.Fields(t[1:])
	if len(word) == 0 {
		return "", true
	}
	name, _, _ = strings.Cut(word[0], "@")
	return strings.ToLower(name), true
}
