// Package protocol defines the JSON envelopes exchanged over a connection.
// Every frame carries exactly one event object with a "type" discriminator.
package protocol

import (
	"time"

	"github.com/dkeye/Relay/internal/domain"
	"github.com/samber/lo"
)

type Type string

const (
	TypeWelcome  Type = "welcome"
	TypeHistory  Type = "history"
	TypeSystem   Type = "system"
	TypePresence Type = "presence"
	TypeMessage  Type = "message"
	TypeTyping   Type = "typing"
	TypeError    Type = "error"
	TypeSetName  Type = "set-name"
)

type Action string

const (
	ActionJoin   Action = "join"
	ActionLeave  Action = "leave"
	ActionRename Action = "rename"
)

// Event is any outbound envelope.
type Event interface {
	EventType() Type
}

type Welcome struct {
	Type Type            `json:"type"`
	User domain.Identity `json:"user"`
}

type History struct {
	Type     Type      `json:"type"`
	Messages []Message `json:"messages"`
}

type System struct {
	Type Type   `json:"type"`
	Text string `json:"text"`
}

type Presence struct {
	Type   Type            `json:"type"`
	Action Action          `json:"action"`
	User   domain.Identity `json:"user"`
}

type Message struct {
	Type       Type          `json:"type"`
	SenderID   domain.UserID `json:"senderId"`
	SenderName string        `json:"senderName"`
	Text       string        `json:"text"`
	Timestamp  time.Time     `json:"timestamp"`
}

type Typing struct {
	Type       Type          `json:"type"`
	SenderID   domain.UserID `json:"senderId"`
	SenderName string        `json:"senderName"`
	IsTyping   bool          `json:"isTyping"`
}

type Error struct {
	Type Type   `json:"type"`
	Text string `json:"text"`
}

func (Welcome) EventType() Type  { return TypeWelcome }
func (History) EventType() Type  { return TypeHistory }
func (System) EventType() Type   { return TypeSystem }
func (Presence) EventType() Type { return TypePresence }
func (Message) EventType() Type  { return TypeMessage }
func (Typing) EventType() Type   { return TypeTyping }
func (Error) EventType() Type    { return TypeError }

func NewWelcome(user domain.Identity) Welcome {
	return Welcome{Type: TypeWelcome, User: user}
}

// NewHistory keeps the store's order, which is oldest first.
func NewHistory(msgs []domain.StoredMessage) History {
	events := lo.Map(msgs, func(m domain.StoredMessage, _ int) Message {
		return NewMessage(m)
	})
	return History{Type: TypeHistory, Messages: events}
}

func NewSystem(text string) System {
	return System{Type: TypeSystem, Text: text}
}

func NewPresence(action Action, user domain.Identity) Presence {
	return Presence{Type: TypePresence, Action: action, User: user}
}

func NewMessage(m domain.StoredMessage) Message {
	return Message{
		Type:       TypeMessage,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Text:       m.Text,
		Timestamp:  m.CreatedAt,
	}
}

func NewTyping(sender domain.Identity, isTyping bool) Typing {
	return Typing{Type: TypeTyping, SenderID: sender.ID, SenderName: sender.DisplayName, IsTyping: isTyping}
}

func NewError(text string) Error {
	return Error{Type: TypeError, Text: text}
}
