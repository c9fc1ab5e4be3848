package peer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/meshcall/internal/adapters/rtc"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/media"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

var (
	ErrNotInbound      = errors.New("only inbound calls can be answered")
	ErrAlreadyAnswered = errors.New("call already answered")
	ErrCallClosed      = errors.New("call closed")
)

// Call is one media connection negotiated through the broker. It
// implements core.Connection.
type Call struct {
	client *Client
	rtc    *rtc.WebRTCConnection
	id     string
	peer   domain.PeerID
	meta   domain.CallMeta
	dir    domain.Direction
	offer  string
	log    zerolog.Logger
	timer  *time.Timer

	mu       sync.Mutex
	answered bool
	closed   bool
	remote   *media.Stream
	onStream func(*media.Stream)
	onClose  func()
}

func newCall(c *Client, rc *rtc.WebRTCConnection, id string, remote domain.PeerID, meta domain.CallMeta, dir domain.Direction, offer string) *Call {
	call := &Call{
		client: c,
		rtc:    rc,
		id:     id,
		peer:   remote,
		meta:   meta,
		dir:    dir,
		offer:  offer,
		log: c.log.With().Str("call", id).Str("peer", string(remote)).
			Str("direction", dir.String()).Str("purpose", string(meta.Purpose)).Logger(),
	}
	rc.OnRemoteStream(call.handleStream)
	rc.OnClosed(func() { call.shutdown(true) })
	call.timer = time.AfterFunc(c.timeout, call.expire)
	return call
}

func (c *Call) ID() string                  { return c.id }
func (c *Call) Peer() domain.PeerID         { return c.peer }
func (c *Call) Meta() domain.CallMeta       { return c.meta }
func (c *Call) Direction() domain.Direction { return c.dir }

// Answer accepts an inbound call with stream, which may be nil. The answer
// is sent once ICE gathering is done.
func (c *Call) Answer(stream *media.Stream) error {
	if c.dir != domain.Inbound {
		return ErrNotInbound
	}
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrCallClosed
	case c.answered:
		c.mu.Unlock()
		return ErrAlreadyAnswered
	}
	c.answered = true
	c.mu.Unlock()

	if err := c.rtc.AddStream(stream, kindsFor(c.meta)); err != nil {
		c.shutdown(true)
		return err
	}
	go func() {
		ctx, cancel := context.WithTimeout(c.client.ctx, c.client.timeout)
		defer cancel()
		answer, err := c.rtc.ApplyOfferAndCreateAnswer(ctx, webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  c.offer,
		})
		if err != nil {
			c.log.Warn().Err(err).Msg("create answer")
			c.shutdown(true)
			return
		}
		c.client.send(domain.SignalMessage{
			Type: domain.SignalAnswer,
			Dst:  c.peer,
			Call: c.id,
			SDP:  answer.SDP,
		})
		c.log.Info().Bool("media", stream != nil).Msg("answered")
	}()
	return nil
}

func (c *Call) OnStream(fn func(*media.Stream)) {
	c.mu.Lock()
	c.onStream = fn
	remote := c.remote
	c.mu.Unlock()
	if remote != nil {
		fn(remote)
	}
}

func (c *Call) OnClose(fn func()) {
	c.mu.Lock()
	closed := c.closed
	if !closed {
		c.onClose = fn
	}
	c.mu.Unlock()
	if closed {
		fn()
	}
}

// Close hangs up and tells the remote side.
func (c *Call) Close() { c.shutdown(true) }

func (c *Call) applyAnswer(sdp string) {
	err := c.rtc.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
	if err != nil {
		c.log.Warn().Err(err).Msg("apply answer")
		c.shutdown(true)
	}
}

func (c *Call) handleStream(remote *media.Stream) {
	c.timer.Stop()
	c.mu.Lock()
	if c.closed || c.remote != nil {
		c.mu.Unlock()
		return
	}
	c.remote = remote
	fn := c.onStream
	c.mu.Unlock()
	c.log.Info().Msg("remote stream")
	if fn != nil {
		fn(remote)
	}
}

func (c *Call) expire() {
	c.mu.Lock()
	pending := c.remote == nil && !c.closed
	c.mu.Unlock()
	if pending {
		c.log.Warn().Dur("timeout", c.client.timeout).Msg("negotiation timed out")
		c.shutdown(true)
	}
}

// shutdown releases the call once. With notify set the remote side is sent
// a leave.
func (c *Call) shutdown(notify bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	fn := c.onClose
	c.onClose = nil
	c.mu.Unlock()

	c.timer.Stop()
	c.client.forget(c.id)
	if notify {
		c.client.send(domain.SignalMessage{Type: domain.SignalLeave, Dst: c.peer, Call: c.id})
	}
	c.rtc.Close()
	c.log.Info().Bool("notify", notify).Msg("call closed")
	if fn != nil {
		fn()
	}
}
