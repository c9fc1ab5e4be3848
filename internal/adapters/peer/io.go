package peer

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/gorilla/websocket"
)

func (c *Client) writePump() {
	ticker := time.NewTicker(c.ping)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			c.log.Debug().Msg("writePump ctx done")
			return
		case <-ticker.C:
			c.send(domain.SignalMessage{Type: domain.SignalPing})
		case data := <-c.out:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				c.log.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Error().Err(err).Msg("writePump write error")
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer c.lost()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
			default:
				c.log.Error().Err(err).Msg("readPump read error")
			}
			return
		}
		c.dispatch(data)
	}
}

// lost runs when the broker connection ends. Established calls keep their
// media; nothing can be negotiated any more, though.
func (c *Client) lost() {
	select {
	case <-c.ctx.Done():
		return
	default:
	}
	c.reportError(errors.Join(domain.ErrSignaling, errBrokerGone))
}

func (c *Client) dispatch(data []byte) {
	var msg domain.SignalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn().Err(err).Msg("bad json")
		return
	}

	switch msg.Type {
	case domain.SignalOffer:
		c.handleOffer(msg)
	case domain.SignalAnswer:
		if call, ok := c.lookup(msg.Call); ok && call.dir == domain.Outbound {
			call.applyAnswer(msg.SDP)
		}
	case domain.SignalLeave:
		if call, ok := c.lookup(msg.Call); ok && call.peer == msg.Src {
			call.shutdown(false)
		}
	case domain.SignalError:
		err := domain.ErrorForKind(msg.Error)
		c.log.Warn().Err(err).Str("call", msg.Call).Str("dst", string(msg.Dst)).Msg("broker error")
		if call, ok := c.lookup(msg.Call); ok {
			call.shutdown(false)
		}
		c.reportError(err)
	case domain.SignalPong, domain.SignalOpen:
	default:
		c.log.Warn().Str("type", msg.Type).Msg("unknown signal")
	}
}

func (c *Client) handleOffer(msg domain.SignalMessage) {
	if msg.Call == "" || msg.SDP == "" {
		c.log.Warn().Str("src", string(msg.Src)).Msg("offer without call id or sdp")
		return
	}
	meta := domain.CallMeta{Purpose: msg.Purpose}
	if meta.Purpose == "" {
		meta.Purpose = domain.PurposeCall
	}
	call, err := c.newCall(msg.Call, msg.Src, meta, domain.Inbound, msg.SDP)
	if err != nil {
		c.log.Warn().Err(err).Str("src", string(msg.Src)).Msg("inbound call refused")
		return
	}

	c.mu.Lock()
	fn := c.onCall
	if fn == nil {
		c.early = append(c.early, call)
	}
	c.mu.Unlock()
	if fn == nil {
		call.log.Info().Msg("no call handler yet, holding call")
		return
	}
	fn(call)
}
