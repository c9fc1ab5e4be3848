// Package signal is the broker side websocket endpoint of the signaling
// protocol.
package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/meshcall/internal/app/broker"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
)

type SignalWSController struct {
	Broker     *broker.Broker
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewSignalWSController(b *broker.Broker, readLimit int64, pingPeriod time.Duration) *SignalWSController {
	return &SignalWSController{
		Broker:     b,
		ReadLimit:  readLimit,
		PingPeriod: pingPeriod,
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
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

// HandleSignal upgrades the request and serves the peer named by the id
// query parameter until either side hangs up.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	id := domain.PeerID(c.Query("id"))
	log.Info().Str("module", "signal").Str("token", token).Str("peer", string(id)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, sendBuffer),
	}
	ctx, cancel := context.WithCancel(ctx)
	if err := ctl.Broker.Join(id, token, conn, cancel); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(id)).Msg("join refused")
		cancel()
		ctl.flushAndClose(conn)
		return
	}
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, id, conn)
}
