package orch

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

const (
	MaxHistory              = 100
	DefaultMaxMessageLength = 2000
	DefaultStoreTimeout     = 5 * time.Second
)

type Options struct {
	// AllowRename enables set-name; only the anonymous variant has it.
	AllowRename      bool
	HistoryLimit     int
	MaxMessageLength int
	StoreTimeout     time.Duration
	Now              func() time.Time
}

// Orchestrator drives a connection through Active and Closed and dispatches
// its inbound events. It holds no state of its own beyond its collaborators.
type Orchestrator struct {
	Registry    *app.Registry
	Broadcaster *app.Broadcaster
	Store       core.MessageStore
	Names       *app.GuestNamer
	opts        Options

	// feed orders joins against message ingestion: ingestion holds it
	// shared from persist to broadcast, Connect exclusively.
	feed sync.RWMutex
}

func New(registry *app.Registry, broadcaster *app.Broadcaster, store core.MessageStore, names *app.GuestNamer, opts Options) *Orchestrator {
	if opts.HistoryLimit <= 0 || opts.HistoryLimit > MaxHistory {
		opts.HistoryLimit = MaxHistory
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = DefaultMaxMessageLength
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if names == nil {
		names = app.NewGuestNamer()
	}
	return &Orchestrator{
		Registry:    registry,
		Broadcaster: broadcaster,
		Store:       store,
		Names:       names,
		opts:        opts,
	}
}

func (o *Orchestrator) Online() []domain.Identity {
	return o.Registry.Identities()
}

// RecentMessages serves history outside of a connection; limit is clamped
// to 1..MaxHistory.
func (o *Orchestrator) RecentMessages(ctx context.Context, limit int) ([]domain.StoredMessage, error) {
	if limit <= 0 || limit > MaxHistory {
		limit = MaxHistory
	}
	ctx, cancel := context.WithTimeout(ctx, o.opts.StoreTimeout)
	defer cancel()
	return o.Store.Recent(ctx, limit)
}
