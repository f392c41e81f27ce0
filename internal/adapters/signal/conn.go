package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/core"
)

// WSConn is an indirection over *websocket.Conn to ease testing.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// WsSignalConn is one websocket endpoint. It implements core.SignalConnection;
// frames queue in send and a single writePump drains them.
type WsSignalConn struct {
	id   core.ConnID
	conn WSConn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func NewWsSignalConn(id core.ConnID, conn WSConn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		id:   id,
		conn: conn,
		send: make(chan core.Frame, buffer),
	}
}

func (c *WsSignalConn) ID() core.ConnID { return c.id }

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// Close is idempotent. It stops the writer and unblocks the reader.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}
