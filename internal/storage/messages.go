package storage

import (
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/Relay/internal/domain"
	json "github.com/goccy/go-json"
)

const messagePrefix = "msg:"

type MessageStore struct {
	db *badger.DB
}

func NewMessageStore(db *badger.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Append writes under "msg:{unix_nano padded to 19}:{id}" so keys sort by
// creation time, the id breaking ties within one nanosecond.
func (s *MessageStore) Append(ctx context.Context, msg domain.StoredMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	key := messageKey(msg)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Recent walks the keyspace backwards from the newest message and returns
// the batch oldest first.
func (s *MessageStore) Recent(ctx context.Context, limit int) ([]domain.StoredMessage, error) {
	if limit <= 0 {
		return []domain.StoredMessage{}, nil
	}
	out := make([]domain.StoredMessage, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var msg domain.StoredMessage
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &msg)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

func messageKey(msg domain.StoredMessage) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", messagePrefix, msg.CreatedAt.UnixNano(), msg.ID))
}
