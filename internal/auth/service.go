package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service owns account registration and password login.
type Service struct {
	accounts core.AccountStore
	tokens   *TokenIssuer
}

func NewService(accounts core.AccountStore, tokens *TokenIssuer) *Service {
	return &Service{accounts: accounts, tokens: tokens}
}

func (s *Service) Register(ctx context.Context, c Credentials) (domain.Account, error) {
	c.Username = strings.TrimSpace(c.Username)
	if err := ValidateCredentials(c); err != nil {
		return domain.Account{}, err
	}
	hash, err := HashPassword(c.Password)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash password: %w", err)
	}
	acc := domain.Account{
		ID:           domain.UserID(uuid.NewString()),
		Username:     c.Username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.accounts.CreateAccount(ctx, acc); err != nil {
		return domain.Account{}, err
	}
	log.Info().Str("module", "auth").Str("user", string(acc.ID)).Str("username", acc.Username).Msg("account created")
	return acc, nil
}

// Login returns the account and a bearer token. Unknown users and wrong
// passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, c Credentials) (domain.Account, string, error) {
	acc, err := s.accounts.AccountByUsername(ctx, strings.TrimSpace(c.Username))
	if errors.Is(err, domain.ErrAccountNotFound) {
		return domain.Account{}, "", domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.Account{}, "", err
	}
	match, err := ComparePassword(c.Password, acc.PasswordHash)
	if err != nil || !match {
		return domain.Account{}, "", domain.ErrInvalidCredentials
	}
	token, err := s.tokens.Generate(acc.Identity())
	if err != nil {
		return domain.Account{}, "", fmt.Errorf("generate token: %w", err)
	}
	return acc, token, nil
}
