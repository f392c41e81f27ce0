package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageID string

// StoredMessage is an append-only chat record. Never mutated once written.
type StoredMessage struct {
	ID         MessageID `json:"id"`
	SenderID   UserID    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

func NewStoredMessage(sender Identity, text string, at time.Time) StoredMessage {
	return StoredMessage{
		ID:         MessageID(uuid.NewString()),
		SenderID:   sender.ID,
		SenderName: sender.DisplayName,
		Text:       text,
		CreatedAt:  at.UTC(),
	}
}
