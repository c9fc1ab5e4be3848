package signal

import (
	"context"
	"time"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	var tick <-chan time.Time
	if ctl.PingPeriod > 0 {
		ticker := time.NewTicker(ctl.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			c.Close()
			return
		case <-tick:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, id domain.PeerID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("peer", string(id)).Msg("readPump closing")
		ctl.Broker.Leave(id, c)
		cancel()
		c.Close()
	}()

	if ctl.PingPeriod > 0 {
		wait := ctl.PingPeriod * 10 / 9
		_ = c.conn.SetReadDeadline(time.Now().Add(wait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("peer", string(id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("peer", string(id)).Msg("readPump read error")
				}
				return
			}
			ctl.Broker.Handle(id, c, data)
		}
	}
}

// flushAndClose writes whatever is queued and closes the socket. Used for
// clients refused before their pumps start.
func (ctl *SignalWSController) flushAndClose(c *WsSignalConn) {
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		default:
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "refused")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
			c.Close()
			return
		}
	}
}
