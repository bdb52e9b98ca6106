package domain

import (
	"fmt"
	"strings"
	"time"
)

// ChatKind tells whether a message came from a private conversation or a group
type ChatKind string

const (
	ChatKindDirect ChatKind = "direct"
	ChatKindGroup  ChatKind = "group"
)

// ChatEvent is the message-source independent shape of an inbound message.
// Adapters build it from their library's update type.
type ChatEvent struct {
	UserID    int64     `json:"user_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name,omitempty"`
	ChatKind  ChatKind  `json:"chat_kind"`
	Text      string    `json:"text"`
	Now       time.Time `json:"now"`

	// Routing data for replies
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id,omitempty"`
	Source    string `json:"source,omitempty"`
}

// User returns the user identity carried by the event
func (e ChatEvent) User() User {
	return User{
		ID:        e.UserID,
		FirstName: e.FirstName,
		LastName:  e.LastName,
	}
}

// IsDirect reports whether the event came from a private conversation
func (e ChatEvent) IsDirect() bool {
	return e.ChatKind == ChatKindDirect
}

// Validate checks the fields an adapter must always fill in
func (e ChatEvent) Validate() error {
	if e.UserID == 0 {
		return fmt.Errorf("%w: missing user id", ErrInvalidEvent)
	}
	if e.ChatKind != ChatKindDirect && e.ChatKind != ChatKindGroup {
		return fmt.Errorf("%w: unknown chat kind %q", ErrInvalidEvent, e.ChatKind)
	}
	return nil
}

var chatKinds = map[string]ChatKind{
	"private":    ChatKindDirect,
	"direct":     ChatKindDirect,
	"dm":         ChatKindDirect,
	"group":      ChatKindGroup,
	"supergroup": ChatKindGroup,
	"channel":    ChatKindGroup,
}

// LookupChatKind maps a platform chat type onto a ChatKind and reports
// whether the type is known.
func LookupChatKind(s string) (ChatKind, bool) {
	kind, ok := chatKinds[strings.ToLower(strings.TrimSpace(s))]
	return kind, ok
}

// ParseChatKind maps platform chat types onto a ChatKind.
// Anything that is not a private conversation counts as a group.
func ParseChatKind(s string) ChatKind {
	if kind, ok := LookupChatKind(s); ok {
		return kind
	}
	return ChatKindGroup
}
