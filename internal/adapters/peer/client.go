// Package peer is the participant side of the signaling protocol: it
// implements core.PeerHandle over a broker websocket and pion connections.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/meshcall/internal/adapters/rtc"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/media"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultNegotiateTimeout = 30 * time.Second
	DefaultPingPeriod       = 25 * time.Second

	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

var (
	ErrClientClosed   = errors.New("peer client closed")
	ErrUnexpectedOpen = errors.New("unexpected first message from broker")
	errBrokerGone     = errors.New("broker connection lost")
)

// WSConn is an indirection over *websocket.Conn to ease testing.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	Close() error
}

type Options struct {
	// URL of the broker websocket endpoint, without the id parameter.
	URL string
	// ID is sanitized before use.
	ID         string
	ICEServers []string
	// API is built with rtc.NewAPI when nil.
	API *webrtc.API
	// NegotiateTimeout closes calls that have not produced a remote stream
	// in time, including inbound calls nobody answered.
	NegotiateTimeout time.Duration
	PingPeriod       time.Duration
}

// Client is the local endpoint on the signaling network.
type Client struct {
	id      domain.PeerID
	ws      WSConn
	api     *webrtc.API
	rtcCfg  webrtc.Configuration
	timeout time.Duration
	ping    time.Duration
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	out    chan []byte

	mu     sync.Mutex
	calls  map[string]*Call
	onCall func(core.Connection)
	// early holds inbound calls that arrived before OnCall was set.
	early   []*Call
	onError func(error)
	closed  bool
}

// Open dials the broker and waits until it confirms the id.
func Open(ctx context.Context, opts Options) (*Client, error) {
	id := domain.Sanitize(opts.ID)
	if err := id.Validate(); err != nil {
		return nil, err
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("signal url: %w", err)
	}
	q := u.Query()
	q.Set("id", string(id))
	u.RawQuery = q.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", domain.ErrSignaling, u.Redacted(), err)
	}
	c, err := newClient(id, ws, opts)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	if err := c.handshake(ctx); err != nil {
		_ = ws.Close()
		return nil, err
	}
	c.run()
	return c, nil
}

func newClient(id domain.PeerID, ws WSConn, opts Options) (*Client, error) {
	api := opts.API
	if api == nil {
		var err error
		if api, err = rtc.NewAPI(); err != nil {
			return nil, err
		}
	}
	timeout := opts.NegotiateTimeout
	if timeout <= 0 {
		timeout = DefaultNegotiateTimeout
	}
	ping := opts.PingPeriod
	if ping <= 0 {
		ping = DefaultPingPeriod
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:      id,
		ws:      ws,
		api:     api,
		rtcCfg:  rtc.DefaultWebRTCConfig(opts.ICEServers),
		timeout: timeout,
		ping:    ping,
		log:     log.With().Str("module", "peer").Str("self", string(id)).Logger(),
		ctx:     ctx,
		cancel:  cancel,
		out:     make(chan []byte, sendBuffer),
		calls:   make(map[string]*Call),
	}, nil
}

// handshake reads the broker's verdict on our id.
func (c *Client) handshake(ctx context.Context) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.ws.SetReadDeadline(dl)
		defer c.ws.SetReadDeadline(time.Time{})
	}
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return fmt.Errorf("%w: handshake: %w", domain.ErrSignaling, err)
	}
	var msg domain.SignalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: handshake: %w", domain.ErrSignaling, err)
	}
	switch msg.Type {
	case domain.SignalOpen:
		c.log.Info().Msg("signaling open")
		return nil
	case domain.SignalError:
		return domain.ErrorForKind(msg.Error)
	default:
		return fmt.Errorf("%w: %w: %s", domain.ErrSignaling, ErrUnexpectedOpen, msg.Type)
	}
}

func (c *Client) run() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) ID() domain.PeerID { return c.id }

// OnCall sets the inbound call handler. Calls that arrived before it was
// set are handed over now.
func (c *Client) OnCall(fn func(core.Connection)) {
	c.mu.Lock()
	c.onCall = fn
	early := c.early
	c.early = nil
	c.mu.Unlock()
	for _, call := range early {
		fn(call)
	}
}

func (c *Client) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// Call places an outbound call. The offer is sent once ICE gathering is
// done; the returned connection is usable right away.
func (c *Client) Call(remote domain.PeerID, stream *media.Stream, meta domain.CallMeta) (core.Connection, error) {
	call, err := c.newCall(uuid.NewString(), remote, meta, domain.Outbound, "")
	if err != nil {
		return nil, err
	}
	if err := call.rtc.AddStream(stream, kindsFor(meta)); err != nil {
		call.shutdown(false)
		return nil, fmt.Errorf("add stream: %w", err)
	}
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
		defer cancel()
		offer, err := call.rtc.CreateOffer(ctx)
		if err != nil {
			call.log.Warn().Err(err).Msg("create offer")
			call.shutdown(false)
			return
		}
		c.send(domain.SignalMessage{
			Type:    domain.SignalOffer,
			Dst:     remote,
			Call:    call.id,
			Purpose: meta.Purpose,
			SDP:     offer.SDP,
		})
	}()
	return call, nil
}

// Close hangs up every call and leaves the signaling network.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	calls := make([]*Call, 0, len(c.calls))
	for _, call := range c.calls {
		calls = append(calls, call)
	}
	c.mu.Unlock()

	for _, call := range calls {
		call.shutdown(true)
	}
	// give the writer a moment to flush the leaves
	select {
	case <-time.After(100 * time.Millisecond):
	case <-c.ctx.Done():
	}
	c.cancel()
	c.log.Info().Int("calls", len(calls)).Msg("peer client closed")
	return c.ws.Close()
}

func (c *Client) newCall(id string, remote domain.PeerID, meta domain.CallMeta, dir domain.Direction, offer string) (*Call, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	if _, ok := c.calls[id]; ok {
		return nil, fmt.Errorf("call %s exists", id)
	}
	rc, err := rtc.NewWebRTCConnection(c.api, c.rtcCfg, id, remote)
	if err != nil {
		return nil, err
	}
	call := newCall(c, rc, id, remote, meta, dir, offer)
	c.calls[id] = call
	return call, nil
}

func (c *Client) lookup(id string) (*Call, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	call, ok := c.calls[id]
	return call, ok
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.calls, id)
	c.early = slices.DeleteFunc(c.early, func(call *Call) bool { return call.id == id })
}

// send queues msg for the writer. A full queue loses the message.
func (c *Client) send(msg domain.SignalMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error().Err(err).Msg("marshal")
		return
	}
	select {
	case c.out <- data:
	case <-c.ctx.Done():
	default:
		c.log.Warn().Str("type", msg.Type).Str("dst", string(msg.Dst)).Msg("send queue full, message dropped")
	}
}

func (c *Client) reportError(err error) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func kindsFor(meta domain.CallMeta) media.Kinds {
	if meta.IsBroadcast() {
		return media.AudioOnly
	}
	return media.AudioVideo
}
