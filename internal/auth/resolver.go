package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/google/uuid"
)

// AnonymousResolver admits everyone. Without a requested name the identity
// comes back unnamed and a guest name is generated at registration.
type AnonymousResolver struct{}

func (AnonymousResolver) Resolve(_ context.Context, creds core.Credentials) (domain.Identity, error) {
	id := domain.UserID(uuid.NewString())
	if strings.TrimSpace(creds.RequestedName) == "" {
		return domain.Identity{ID: id}, nil
	}
	return domain.NewIdentity(id, creds.RequestedName), nil
}

// SessionResolver admits connections that carry a login session cookie or
// a bearer token of an existing account. The display name is the username.
type SessionResolver struct {
	Accounts core.AccountStore
	Tokens   *TokenIssuer
}

func (r SessionResolver) Resolve(ctx context.Context, creds core.Credentials) (domain.Identity, error) {
	userID := creds.SessionUserID
	if userID == "" && creds.Token != "" {
		claims, err := r.Tokens.Validate(creds.Token)
		if err != nil {
			return domain.Identity{}, fmt.Errorf("%w: %v", core.ErrUnauthorized, err)
		}
		userID = claims.UserID
	}
	if userID == "" {
		return domain.Identity{}, fmt.Errorf("%w: no session", core.ErrUnauthorized)
	}
	acc, err := r.Accounts.AccountByID(ctx, userID)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", core.ErrUnauthorized, err)
	}
	return acc.Identity(), nil
}
