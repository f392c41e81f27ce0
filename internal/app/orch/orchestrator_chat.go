package orch

import (
	"context"
	"fmt"
	"strings"

	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/protocol"
	"github.com/rs/zerolog/log"
)

const persistFailedText = "message could not be saved, please retry"

// PersistResult is the outcome of the first half of ingestion; the relay
// half only runs on OK.
type PersistResult struct {
	Message domain.StoredMessage
	Err     error
}

func (r PersistResult) OK() bool { return r.Err == nil }

// OnFrame handles one inbound frame of an Active connection. Frames of
// unknown handles are ignored.
func (o *Orchestrator) OnFrame(ctx context.Context, id core.ConnID, data core.Frame) {
	sender, ok := o.Registry.Lookup(id)
	if !ok {
		return
	}
	in, err := protocol.Decode(data)
	if err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("conn", string(id)).Msg("bad frame")
		o.send(sender.Conn, protocol.NewError(err.Error()))
		return
	}

	switch in.Type {
	case protocol.TypeMessage:
		o.ingest(ctx, sender, in.Text)
	case protocol.TypeTyping:
		o.Broadcaster.BroadcastExcept(protocol.NewTyping(sender.Identity, in.IsTyping), sender.ID)
	case protocol.TypeSetName:
		if !o.opts.AllowRename {
			o.send(sender.Conn, protocol.NewError(fmt.Sprintf("%s %q", protocol.ErrUnknownType, in.Type)))
			return
		}
		o.rename(sender, in.Name)
	}
}

func (o *Orchestrator) ingest(ctx context.Context, sender app.Entry, raw string) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return
	}
	if r := []rune(text); len(r) > o.opts.MaxMessageLength {
		text = string(r[:o.opts.MaxMessageLength])
	}

	o.feed.RLock()
	defer o.feed.RUnlock()
	res := o.persist(ctx, sender.Identity, text)
	if !res.OK() {
		log.Error().Err(res.Err).Str("module", "orch").Str("conn", string(sender.ID)).Msg("persist message")
		o.send(sender.Conn, protocol.NewError(persistFailedText))
		return
	}
	o.Broadcaster.BroadcastAll(protocol.NewMessage(res.Message))
}

func (o *Orchestrator) persist(ctx context.Context, sender domain.Identity, text string) PersistResult {
	msg := domain.NewStoredMessage(sender, text, o.opts.Now())
	ctx, cancel := context.WithTimeout(ctx, o.opts.StoreTimeout)
	defer cancel()
	if err := o.Store.Append(ctx, msg); err != nil {
		return PersistResult{Err: err}
	}
	return PersistResult{Message: msg}
}

func (o *Orchestrator) rename(sender app.Entry, name string) {
	identity, err := o.Registry.Rename(sender.ID, name)
	if err != nil {
		return
	}
	o.Broadcaster.BroadcastAll(protocol.NewPresence(protocol.ActionRename, identity))
}
