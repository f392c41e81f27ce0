package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/Relay/internal/domain"
	json "github.com/goccy/go-json"
)

const (
	accountNamePrefix = "account:name:"
	accountIDPrefix   = "account:id:"
)

// AccountStore indexes accounts by case-folded username and by id.
type AccountStore struct {
	db *badger.DB
}

func NewAccountStore(db *badger.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) CreateAccount(ctx context.Context, acc domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	nameKey := []byte(accountNamePrefix + foldName(acc.Username))
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(nameKey); err == nil {
			return domain.ErrAccountExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(nameKey, value); err != nil {
			return err
		}
		return txn.Set([]byte(accountIDPrefix+string(acc.ID)), []byte(foldName(acc.Username)))
	})
}

func (s *AccountStore) AccountByUsername(ctx context.Context, username string) (domain.Account, error) {
	var acc domain.Account
	err := s.db.View(func(txn *badger.Txn) error {
		return loadAccount(txn, foldName(username), &acc)
	})
	return acc, err
}

func (s *AccountStore) AccountByID(ctx context.Context, id domain.UserID) (domain.Account, error) {
	var acc domain.Account
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(accountIDPrefix + string(id)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrAccountNotFound
		}
		if err != nil {
			return err
		}
		folded, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return loadAccount(txn, string(folded), &acc)
	})
	return acc, err
}

func loadAccount(txn *badger.Txn, folded string, acc *domain.Account) error {
	item, err := txn.Get([]byte(accountNamePrefix + folded))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.ErrAccountNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(v []byte) error {
		return json.Unmarshal(v, acc)
	})
}

func foldName(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
