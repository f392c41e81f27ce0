package core

import (
	"context"
	"errors"

	"github.com/dkeye/Relay/internal/domain"
)

var ErrUnauthorized = errors.New("unauthorized")

// Credentials is whatever the transport could extract before the upgrade.
type Credentials struct {
	SessionUserID domain.UserID
	Token         string
	RequestedName string
}

// IdentityResolver decides whether a connection may become active and as whom.
// A returned identity with an empty DisplayName asks for a generated guest name.
type IdentityResolver interface {
	Resolve(ctx context.Context, creds Credentials) (domain.Identity, error)
}
