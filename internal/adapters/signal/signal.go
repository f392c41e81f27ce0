package signal

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// SessionUserKey is where the login handler stores the account id.
const SessionUserKey = "user_id"

var ErrShutdownTimeout = errors.New("signal: shutdown timed out")

type Options struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

// SignalWSController accepts websocket upgrades and runs one read and one
// write pump per connection.
type SignalWSController struct {
	Orch     *orch.Orchestrator
	Resolver core.IdentityResolver

	opts     Options
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[core.ConnID]*WsSignalConn
	closing bool
	pumps   conc.WaitGroup
}

func NewSignalWSController(o *orch.Orchestrator, resolver core.IdentityResolver, opts Options) *SignalWSController {
	opts = opts.withDefaults()
	return &SignalWSController{
		Orch:     o,
		Resolver: resolver,
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: originChecker(opts.AllowedOrigins)},
		conns:    make(map[core.ConnID]*WsSignalConn),
	}
}

// Credentials collects what the request carries before any upgrade: the
// login session, a bearer token (token or auth_token query, or the
// Authorization header) and a requested guest name.
func Credentials(c *gin.Context) core.Credentials {
	creds := core.Credentials{
		Token:         c.Query("token"),
		RequestedName: c.Query("name"),
	}
	if creds.Token == "" {
		creds.Token = c.Query("auth_token")
	}
	if creds.Token == "" {
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			creds.Token = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
	}
	if uid, ok := sessions.Default(c).Get(SessionUserKey).(string); ok {
		creds.SessionUserID = domain.UserID(uid)
	}
	return creds
}

// HandleSignal resolves the caller, upgrades, and hands the connection to
// the orchestrator. Unauthorized callers never get a websocket.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	if ctl.isClosing() {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
		return
	}

	identity, err := ctl.Resolver.Resolve(c.Request.Context(), Credentials(c))
	if errors.Is(err, core.ErrUnauthorized) {
		log.Info().Err(err).Str("module", "signal").Str("ip", c.ClientIP()).Msg("rejected ws")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("resolve identity")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := NewWsSignalConn(core.ConnID(uuid.NewString()), ws, ctl.opts.SendBuffer)
	connCtx, cancel := context.WithCancel(ctx)
	abort := func() {
		cancel()
		ctl.Orch.Disconnect(conn.id)
		conn.Close()
		ctl.forget(conn.id)
	}

	if !ctl.spawn(conn, func() { ctl.writePump(connCtx, conn) }) {
		abort()
		return
	}

	if _, err := ctl.Orch.Connect(connCtx, conn.id, conn, identity); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(conn.id)).Msg("connect")
		abort()
		return
	}

	if !ctl.spawn(nil, func() {
		defer cancel()
		ctl.readPump(connCtx, conn)
	}) {
		abort()
	}
}

// Shutdown closes every live connection and waits for their pumps. Each
// close runs the normal leave path.
func (ctl *SignalWSController) Shutdown(timeout time.Duration) error {
	ctl.mu.Lock()
	ctl.closing = true
	conns := make([]*WsSignalConn, 0, len(ctl.conns))
	for _, c := range ctl.conns {
		conns = append(conns, c)
	}
	ctl.mu.Unlock()

	log.Info().Str("module", "signal").Int("conns", len(conns)).Msg("closing connections")
	for _, c := range conns {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if r := ctl.pumps.WaitAndRecover(); r != nil {
			log.Error().Str("module", "signal").Str("panic", r.String()).Msg("pump panicked")
		}
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (ctl *SignalWSController) isClosing() bool {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.closing
}

// spawn starts a pump unless shutdown has begun. A non-nil conn is tracked
// in the same critical section, so Shutdown either sees it or refuses it.
func (ctl *SignalWSController) spawn(conn *WsSignalConn, pump func()) bool {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ctl.closing {
		return false
	}
	if conn != nil {
		ctl.conns[conn.id] = conn
	}
	ctl.pumps.Go(pump)
	return true
}

func (ctl *SignalWSController) forget(id core.ConnID) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	delete(ctl.conns, id)
}

// originChecker allows everything when no origins are configured. Clients
// that send no Origin header are not browsers and are let through.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		if !ok {
			log.Warn().Str("module", "signal").Str("origin", origin).Msg("origin rejected")
		}
		return ok
	}
}
