// Package apptest holds in-memory transport doubles for tests.
package apptest

import (
	"sync"

	"github.com/dkeye/Relay/internal/core"
	json "github.com/goccy/go-json"
)

// FakeConn records every frame it accepts.
type FakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	// Full makes TrySend report backpressure.
	Full bool
	// Sick makes Healthy report false without closing.
	Sick bool
}

func NewFakeConn() *FakeConn { return &FakeConn{} }

func (c *FakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	if c.Full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *FakeConn) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.Sick
}

func (c *FakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *FakeConn) Frames() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

// Events decodes every recorded frame into a generic map.
func (c *FakeConn) Events() []map[string]any {
	frames := c.Frames()
	out := make([]map[string]any, 0, len(frames))
	for _, f := range frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			m = map[string]any{"type": "<undecodable>"}
		}
		out = append(out, m)
	}
	return out
}

// Types lists the "type" of every recorded frame, in order.
func (c *FakeConn) Types() []string {
	events := c.Events()
	out := make([]string, 0, len(events))
	for _, e := range events {
		t, _ := e["type"].(string)
		out = append(out, t)
	}
	return out
}

// OfType keeps only events of one type.
func (c *FakeConn) OfType(t string) []map[string]any {
	var out []map[string]any
	for _, e := range c.Events() {
		if e["type"] == t {
			out = append(out, e)
		}
	}
	return out
}

func (c *FakeConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}
