// Package telegram connects the dispatcher to the Telegram Bot API using
// long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pointbot/internal/bot"
	"github.com/pointbot/internal/config"
	"github.com/pointbot/internal/domain"
)

// SourceName tags events that came from Telegram
const SourceName = "telegram"

// handleTimeout bounds the processing of a single update
const handleTimeout = 10 * time.Second

// EventHandler processes chat events
type EventHandler interface {
	Dispatch(ctx context.Context, ev domain.ChatEvent, replier bot.Replier) error
}

// Poller receives updates from Telegram and hands them to the dispatcher
type Poller struct {
	api     *tgbotapi.BotAPI
	config  *config.TelegramConfig
	handler EventHandler
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPoller authenticates against the Bot API and returns a poller
func NewPoller(cfg *config.TelegramConfig, handler EventHandler, logger *slog.Logger) (*Poller, error) {
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(cfg.Token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	api.Debug = cfg.Debug

	return &Poller{
		api:     api,
		config:  cfg,
		handler: handler,
		logger:  logger.With("source", SourceName),
	}, nil
}

// Username returns the bot's username as reported by the API
func (p *Poller) Username() string {
	return p.api.Self.UserName
}

// Start begins long polling in the background
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = p.config.PollTimeout
	u.AllowedUpdates = []string{"message"}
	updates := p.api.GetUpdatesChan(u)

	ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	p.wg.Add(1)
	go p.run(ctx, updates)

	p.logger.Info("telegram poller started", "bot", p.Username())
	return nil
}

// Stop stops polling and waits for the update being handled to finish
func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.api.StopReceivingUpdates()
	p.cancel()
	p.wg.Wait()

	p.logger.Info("telegram poller stopped")
	return nil
}

func (p *Poller) run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			p.handleUpdate(update)
		}
	}
}

// handleUpdate runs one update to completion, independent of shutdown
func (p *Poller) handleUpdate(update tgbotapi.Update) {
	ev, ok := EventFromUpdate(update)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	// Errors are already logged by the dispatcher
	_ = p.handler.Dispatch(ctx, ev, p)
}

// Reply sends text to the chat the event came from
func (p *Poller) Reply(ctx context.Context, ev domain.ChatEvent, text string) error {
	msg := tgbotapi.NewMessage(ev.ChatID, text)
	if p.config.ReplyToMessage && ev.MessageID != 0 {
		msg.ReplyToMessageID = int(ev.MessageID)
		msg.AllowSendingWithoutReply = true
	}
	if _, err := p.api.Send(msg); err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	return nil
}

// EventFromUpdate converts a Telegram update into a chat event.
// Only new text messages with a sender qualify. The event is stamped with
// the local receive time, not the message date, so cooldowns follow the
// server clock.
func EventFromUpdate(update tgbotapi.Update) (domain.ChatEvent, bool) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.Text == "" {
		return domain.ChatEvent{}, false
	}

	return domain.ChatEvent{
		UserID:    msg.From.ID,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
		ChatKind:  domain.ParseChatKind(msg.Chat.Type),
		Text:      msg.Text,
		Now:       time.Now(),
		ChatID:    msg.Chat.ID,
		MessageID: int64(msg.MessageID),
		Source:    SourceName,
	}, true
}
