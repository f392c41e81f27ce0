package app

import (
	"errors"
	"sort"
	"sync"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

var (
	ErrDuplicateConnection = errors.New("duplicate connection")
	ErrConnectionNotFound  = errors.New("connection not found")
)

// Entry is a point-in-time copy of one registration.
type Entry struct {
	ID       core.ConnID
	Conn     core.SignalConnection
	Identity domain.Identity
}

// Registry is the single source of truth for who is online.
// Every read and write goes through mu, so register, deregister, rename and
// snapshot observe one total order.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnID]*Entry
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[core.ConnID]*Entry),
	}
}

// AdmitFunc runs under the registry lock right after an entry is added.
// It must not block and must not call back into the Registry. Frames it
// queues on the new connection precede any broadcast that can reach it.
type AdmitFunc func(identity domain.Identity, online int)

func (r *Registry) Register(id core.ConnID, conn core.SignalConnection, identity domain.Identity) error {
	_, err := r.Admit(id, conn, identity, nil, nil)
	return err
}

// RegisterGuest picks a display name that no live connection currently uses
// and registers under it, all under one lock so two concurrent guests can't
// be handed the same name.
func (r *Registry) RegisterGuest(id core.ConnID, conn core.SignalConnection, userID domain.UserID, namer *GuestNamer) (domain.Identity, error) {
	return r.Admit(id, conn, domain.Identity{ID: userID}, namer, nil)
}

// Admit registers a connection. An identity without a display name gets a
// guest name from namer. onAdmit, when set, sees the final identity and the
// number of live connections including this one.
func (r *Registry) Admit(id core.ConnID, conn core.SignalConnection, identity domain.Identity, namer *GuestNamer, onAdmit AdmitFunc) (domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; ok {
		return domain.Identity{}, ErrDuplicateConnection
	}
	if identity.DisplayName == "" && namer != nil {
		identity.DisplayName = namer.Next(r.nameTaken)
	}
	r.conns[id] = &Entry{ID: id, Conn: conn, Identity: identity}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("user", string(identity.ID)).Str("name", identity.DisplayName).Int("online", len(r.conns)).Msg("registered")
	if onAdmit != nil {
		onAdmit(identity, len(r.conns))
	}
	return identity, nil
}

// nameTaken must be called with mu held.
func (r *Registry) nameTaken(name string) bool {
	for _, e := range r.conns {
		if e.Identity.DisplayName == name {
			return true
		}
	}
	return false
}

// Deregister is idempotent: an unknown handle reports false and changes nothing.
func (r *Registry) Deregister(id core.ConnID) (domain.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return domain.Identity{}, false
	}
	delete(r.conns, id)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Int("online", len(r.conns)).Msg("deregistered")
	return e.Identity, true
}

func (r *Registry) Rename(id core.ConnID, name string) (domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return domain.Identity{}, ErrConnectionNotFound
	}
	e.Identity.SetDisplayName(name)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("name", e.Identity.DisplayName).Msg("renamed")
	return e.Identity, nil
}

func (r *Registry) Lookup(id core.ConnID) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot copies every entry; later mutations don't show through.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.conns))
	for _, e := range r.conns {
		out = append(out, *e)
	}
	return out
}

// Identities lists who is online, sorted by display name.
func (r *Registry) Identities() []domain.Identity {
	out := lo.Map(r.Snapshot(), func(e Entry, _ int) domain.Identity { return e.Identity })
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName == out[j].DisplayName {
			return out[i].ID < out[j].ID
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	return out
}
