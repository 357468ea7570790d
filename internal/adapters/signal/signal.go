package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/callhub/internal/app/orch"
	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

type Options struct {
	ReadLimit  int64
	SendBuffer int
	// CallLimit individual-call-start events per CallWindow per user.
	CallLimit  int
	CallWindow time.Duration
}

func DefaultOptions() Options {
	return Options{ReadLimit: 32768, SendBuffer: 32, CallLimit: 5, CallWindow: 10 * time.Second}
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	opts    Options
	limiter *CallRateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	return &SignalWSController{
		Orch:    o,
		opts:    opts,
		limiter: NewCallRateLimiter(opts.CallLimit, opts.CallWindow, nil),
	}
}

func (ctl *SignalWSController) Limiter() *CallRateLimiter { return ctl.limiter }

// WsSignalConn implements core.SignalConnection over a gorilla socket.
// Only writePump writes to the socket.
type WsSignalConn struct {
	conn  *websocket.Conn
	send  chan core.Frame
	pings chan struct{}

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*WsSignalConn)(nil)

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	if buffer <= 0 {
		buffer = 32
	}
	return &WsSignalConn{
		conn:  ws,
		send:  make(chan core.Frame, buffer),
		pings: make(chan struct{}, 1),
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

// Ping queues a websocket ping. A probe already queued counts as sent.
func (c *WsSignalConn) Ping() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	select {
	case c.pings <- struct{}{}:
	default:
	}
	return nil
}

func (c *WsSignalConn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// session is the per-socket identity, owned by the read pump.
type session struct {
	conn    *WsSignalConn
	token   string
	userID  domain.UserID
	groupID domain.GroupID
	connID  domain.ConnectionID
}

func (s *session) joined() bool { return s.connID != "" }

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	log.Info().Str("module", "signal").Str("sid", token).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	s := &session{conn: newWsSignalConn(ws, ctl.opts.SendBuffer), token: token}
	go ctl.writePump(ctx, s.conn)
	go ctl.readPump(ctx, s)
}
