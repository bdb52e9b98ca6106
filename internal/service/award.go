package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pointbot/internal/config"
	"github.com/pointbot/internal/cooldown"
	"github.com/pointbot/internal/domain"
	"github.com/pointbot/internal/validator"
)

// Decision is the result of evaluating one message
type Decision string

const (
	DecisionDirectChat Decision = "direct_chat"
	DecisionTooShort   Decision = "too_short"
	DecisionInvalid    Decision = "invalid_text"
	DecisionCooldown   Decision = "cooldown"
	DecisionAwarded    Decision = "awarded"
)

// Outcome describes what happened to a message and whether to answer it
type Outcome struct {
	Decision Decision
	Reply    string
	Event    *domain.PointEvent
}

// HasReply reports whether the sender should get a reply
func (o Outcome) HasReply() bool {
	return o.Reply != ""
}

// AwardEngine decides per message whether to award a point
type AwardEngine struct {
	store    PointStore
	tracker  *cooldown.Tracker
	award    config.AwardConfig
	messages config.MessagesConfig
	listener AwardListener
	logger   *slog.Logger
}

// NewAwardEngine creates a new award engine. The tracker is owned by the
// engine from here on.
func NewAwardEngine(
	store PointStore,
	tracker *cooldown.Tracker,
	award config.AwardConfig,
	messages config.MessagesConfig,
	logger *slog.Logger,
) *AwardEngine {
	return &AwardEngine{
		store:    store,
		tracker:  tracker,
		award:    award,
		messages: messages,
		logger:   logger,
	}
}

// SetListener registers a listener for successful awards
func (e *AwardEngine) SetListener(l AwardListener) {
	e.listener = l
}

// Tracker returns the engine's cooldown tracker
func (e *AwardEngine) Tracker() *cooldown.Tracker {
	return e.tracker
}

// HandleMessage runs a plain (non-command) message through the award rules.
// Storage failures are returned as errors; the point is not awarded and
// the cooldown is left untouched.
func (e *AwardEngine) HandleMessage(ctx context.Context, ev domain.ChatEvent) (Outcome, error) {
	if ev.IsDirect() {
		return Outcome{Decision: DecisionDirectChat, Reply: e.messages.DirectRejection}, nil
	}

	if err := e.store.UpsertUser(ctx, ev.User()); err != nil {
		return Outcome{}, fmt.Errorf("upserting user: %w", err)
	}

	if !validator.LongEnough(ev.Text, e.award.MinChars) {
		return Outcome{Decision: DecisionTooShort, Reply: e.messages.InvalidRejection}, nil
	}
	if !validator.IsAwardWorthy(ev.Text, e.award.MinChars) {
		return Outcome{Decision: DecisionInvalid, Reply: e.messages.InvalidRejection}, nil
	}

	now := ev.Now
	if now.IsZero() {
		now = time.Now()
	}
	if !e.tracker.Eligible(ev.UserID, now, e.award.Cooldown()) {
		e.logger.Debug("user in cooldown", "user_id", ev.UserID)
		return Outcome{Decision: DecisionCooldown}, nil
	}

	point, err := e.store.AwardPoint(ctx, ev.UserID, eventMeta(ev))
	if err != nil {
		return Outcome{}, fmt.Errorf("awarding point: %w", err)
	}
	e.tracker.RecordAward(ev.UserID, now)

	e.logger.Debug("point awarded", "user_id", ev.UserID, "point_id", point.ID)
	e.notify(ctx, ev.User())

	return Outcome{Decision: DecisionAwarded, Event: point}, nil
}

// notify tells the listener about a new award; failures only get logged
func (e *AwardEngine) notify(ctx context.Context, user domain.User) {
	if e.listener == nil {
		return
	}
	total, err := e.store.CountPoints(ctx, user.ID)
	if err != nil {
		e.logger.Warn("failed to count points for award notification", "user_id", user.ID, "error", err)
		return
	}
	e.listener.PointAwarded(user, total)
}

// eventMeta records where the awarded message came from
func eventMeta(ev domain.ChatEvent) string {
	if ev.Source == "" && ev.ChatID == 0 {
		return ""
	}
	meta := map[string]interface{}{
		"source":  ev.Source,
		"chat_id": ev.ChatID,
	}
	if ev.MessageID != 0 {
		meta["message_id"] = ev.MessageID
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	return string(data)
}
