package app

import (
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/protocol"
	"github.com/rs/zerolog/log"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SentTo  int
	Dropped []Entry
}

// Broadcaster fans events out to registered connections. A failing
// recipient never fails the call and never stops delivery to the rest.
type Broadcaster struct {
	registry *Registry
	policy   Policy
}

func NewBroadcaster(registry *Registry, policy Policy) *Broadcaster {
	return &Broadcaster{registry: registry, policy: policy}
}

func (b *Broadcaster) BroadcastAll(e protocol.Event) PublishResult {
	return b.broadcast(e, "")
}

// BroadcastExcept skips one handle, typically the sender.
func (b *Broadcaster) BroadcastExcept(e protocol.Event, excluded core.ConnID) PublishResult {
	return b.broadcast(e, excluded)
}

// Send delivers to exactly one connection, whether registered or not.
func (b *Broadcaster) Send(conn core.SignalConnection, e protocol.Event) error {
	frame, err := protocol.Encode(e)
	if err != nil {
		return err
	}
	if !conn.Healthy() {
		return core.ErrConnectionClosed
	}
	return conn.TrySend(frame)
}

func (b *Broadcaster) broadcast(e protocol.Event, excluded core.ConnID) PublishResult {
	res := PublishResult{}
	frame, err := protocol.Encode(e)
	if err != nil {
		log.Error().Err(err).Str("module", "app.broadcast").Msg("encode")
		return res
	}

	for _, m := range b.registry.Snapshot() {
		if excluded != "" && m.ID == excluded {
			continue
		}
		if !m.Conn.Healthy() {
			continue
		}
		if err := m.Conn.TrySend(frame); err != nil {
			log.Debug().Err(err).Str("module", "app.broadcast").Str("conn", string(m.ID)).Msg("send failed")
			res.Dropped = append(res.Dropped, m)
			b.applyPolicy(m, err)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "app.broadcast").Str("type", string(e.EventType())).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (b *Broadcaster) applyPolicy(m Entry, err error) {
	if b.policy == nil {
		return
	}
	switch b.policy.OnBackPressure(m, err) {
	case KickMember:
		log.Warn().Str("module", "app.broadcast").Str("conn", string(m.ID)).Msg("kicking slow member")
		m.Conn.Close()
	case NoAction:
	}
}
