package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Connect promotes an authorized connection to Active. The joining
// connection gets welcome, history and the greeting before anything else,
// its own join included. History is read while message ingestion is held
// off, so every message reaches the joiner exactly once: in history or live.
func (o *Orchestrator) Connect(ctx context.Context, id core.ConnID, conn core.SignalConnection, claimed domain.Identity) (domain.Identity, error) {
	o.feed.Lock()
	history := o.history(ctx)
	identity, err := o.register(id, conn, claimed, func(identity domain.Identity, online int) {
		o.send(conn, protocol.NewWelcome(identity))
		o.send(conn, protocol.NewHistory(history))
		o.send(conn, protocol.NewSystem(fmt.Sprintf("Welcome, %s! %d online.", identity.DisplayName, online)))
	})
	o.feed.Unlock()
	if err != nil {
		return domain.Identity{}, err
	}

	o.Broadcaster.BroadcastAll(protocol.NewPresence(protocol.ActionJoin, identity))
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("name", identity.DisplayName).Msg("joined")
	return identity, nil
}

// Disconnect is safe to call any number of times; only the first call that
// finds the handle registered announces the leave.
func (o *Orchestrator) Disconnect(id core.ConnID) {
	identity, ok := o.Registry.Deregister(id)
	if !ok {
		return
	}
	o.Broadcaster.BroadcastAll(protocol.NewPresence(protocol.ActionLeave, identity))
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("name", identity.DisplayName).Msg("left")
}

func (o *Orchestrator) register(id core.ConnID, conn core.SignalConnection, claimed domain.Identity, greet app.AdmitFunc) (domain.Identity, error) {
	if claimed.ID == "" {
		claimed.ID = domain.UserID(uuid.NewString())
	}
	if claimed.DisplayName != "" {
		claimed.DisplayName = domain.SanitizeName(claimed.DisplayName)
	}
	return o.Registry.Admit(id, conn, claimed, o.Names, greet)
}

// history never fails the join: a broken store yields an empty replay.
func (o *Orchestrator) history(ctx context.Context) []domain.StoredMessage {
	msgs, err := o.RecentMessages(ctx, o.opts.HistoryLimit)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("load history")
		return nil
	}
	return msgs
}

func (o *Orchestrator) send(conn core.SignalConnection, e protocol.Event) {
	if err := o.Broadcaster.Send(conn, e); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("type", string(e.EventType())).Msg("direct send failed")
	}
}
