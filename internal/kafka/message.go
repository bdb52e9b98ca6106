package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pointbot/internal/domain"
)

// EventMessage is the wire format of an inbound chat event
type EventMessage struct {
	UserID    int64  `json:"user_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	ChatType  string `json:"chat_type"`
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id,omitempty"`
	Text      string `json:"text"`
	Source    string `json:"source,omitempty"`
}

// ReplyMessage is the wire format of an outbound reply
type ReplyMessage struct {
	ChatID           int64     `json:"chat_id"`
	ReplyToMessageID int64     `json:"reply_to_message_id,omitempty"`
	UserID           int64     `json:"user_id"`
	Source           string    `json:"source,omitempty"`
	Text             string    `json:"text"`
	Timestamp        time.Time `json:"timestamp"`
}

// DecodeEvent parses an inbound message into a chat event stamped with
// received. Messages without a user, text or a known chat type are rejected.
func DecodeEvent(data []byte, received time.Time) (domain.ChatEvent, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return domain.ChatEvent{}, fmt.Errorf("%w: %w", domain.ErrInvalidEvent, err)
	}
	if msg.UserID == 0 {
		return domain.ChatEvent{}, fmt.Errorf("%w: missing user id", domain.ErrInvalidEvent)
	}
	if strings.TrimSpace(msg.Text) == "" {
		return domain.ChatEvent{}, fmt.Errorf("%w: empty text", domain.ErrInvalidEvent)
	}
	kind, ok := domain.LookupChatKind(msg.ChatType)
	if !ok {
		return domain.ChatEvent{}, fmt.Errorf("%w: unknown chat type %q", domain.ErrInvalidEvent, msg.ChatType)
	}

	source := msg.Source
	if source == "" {
		source = SourceName
	}

	return domain.ChatEvent{
		UserID:    msg.UserID,
		FirstName: msg.FirstName,
		LastName:  msg.LastName,
		ChatKind:  kind,
		Text:      msg.Text,
		Now:       received,
		ChatID:    msg.ChatID,
		MessageID: msg.MessageID,
		Source:    source,
	}, nil
}

// EncodeReply builds the outbound payload for a reply to ev
func EncodeReply(ev domain.ChatEvent, text string, now time.Time) ([]byte, error) {
	return json.Marshal(ReplyMessage{
		ChatID:           ev.ChatID,
		ReplyToMessageID: ev.MessageID,
		UserID:           ev.UserID,
		Source:           ev.Source,
		Text:             text,
		Timestamp:        now.UTC(),
	})
}
