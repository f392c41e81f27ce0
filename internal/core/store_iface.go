//go:generate go run go.uber.org/mock/mockgen -source=store_iface.go -destination=../mocks/mock_store.go -package=mocks
package core

import (
	"context"

	"github.com/dkeye/Relay/internal/domain"
)

// MessageStore is the durable chat log.
type MessageStore interface {
	Append(ctx context.Context, msg domain.StoredMessage) error
	// Recent returns at most limit messages, oldest first.
	Recent(ctx context.Context, limit int) ([]domain.StoredMessage, error)
}

type AccountStore interface {
	CreateAccount(ctx context.Context, acc domain.Account) error
	AccountByUsername(ctx context.Context, username string) (domain.Account, error)
	AccountByID(ctx context.Context, id domain.UserID) (domain.Account, error)
}
