// Package session is the facade of the peer media session: it owns the local
// capture, the connection registry and the broadcast amplifier, and applies
// every state change on a single event loop.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dkeye/meshcall/internal/app/broadcast"
	"github.com/dkeye/meshcall/internal/app/localmedia"
	"github.com/dkeye/meshcall/internal/app/registry"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultEventBuffer = 32

var ErrMissingCollaborator = errors.New("session: peer, devices and sinks are required")

type Options struct {
	Peer    core.PeerHandle
	Devices core.Devices
	Sinks   core.SinkFactory
	// Presence is told when local video comes up. Optional.
	Presence core.Presence
	// Gain is the broadcast amplification, > 1. Zero means the default.
	Gain        float64
	EventBuffer int
	Metrics     *Metrics
}

// Session must be driven by Run. Its exported methods are safe to call from
// any goroutine; they hand their work to the loop and wait for the result.
type Session struct {
	peer     core.PeerHandle
	devices  core.Devices
	sinks    core.SinkFactory
	presence core.Presence
	metrics  *Metrics
	log      zerolog.Logger

	media     *localmedia.Controller
	reg       *registry.Registry
	amp       *broadcast.Amplifier
	listening map[string]*listener

	events chan domain.Event

	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
	done  chan struct{}
}

// listener renders a broadcast received from a remote peer.
type listener struct {
	conn core.Connection
	sink core.Sink
}

func New(opts Options) (*Session, error) {
	if opts.Peer == nil || opts.Devices == nil || opts.Sinks == nil {
		return nil, ErrMissingCollaborator
	}
	gain := opts.Gain
	if gain == 0 {
		gain = broadcast.DefaultGain
	}
	amp, err := broadcast.New(gain, log.With().Str("module", "broadcast").Logger())
	if err != nil {
		return nil, err
	}
	buf := opts.EventBuffer
	if buf <= 0 {
		buf = defaultEventBuffer
	}
	logger := log.With().Str("module", "session").Str("self", string(opts.Peer.ID())).Logger()
	s := &Session{
		peer:      opts.Peer,
		devices:   opts.Devices,
		sinks:     opts.Sinks,
		presence:  opts.Presence,
		metrics:   opts.Metrics,
		log:       logger,
		media:     localmedia.New(opts.Sinks, log.With().Str("module", "localmedia").Logger()),
		reg:       registry.New(log.With().Str("module", "registry").Logger()),
		amp:       amp,
		listening: make(map[string]*listener),
		events:    make(chan domain.Event, buf),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	// Inbound calls arriving before Run are queued for the loop.
	s.peer.OnCall(func(c core.Connection) {
		s.post(func() { s.acceptInbound(c) })
	})
	s.peer.OnError(func(err error) {
		s.post(func() { s.onSignalError(err) })
	})
	return s, nil
}

// Events is the notification channel for the surrounding application.
func (s *Session) Events() <-chan domain.Event { return s.events }

// Run processes events until ctx is cancelled, then tears the session down:
// broadcast off, every connection closed, capture released, peer handle
// closed. Run must be called once.
func (s *Session) Run(ctx context.Context) error {
	s.log.Info().Msg("session loop started")

	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			s.teardown()
			return nil
		case <-s.wake:
			for _, fn := range s.drain() {
				fn()
			}
		}
	}
}

// post queues fn for the loop. It never blocks, so it is safe to call from
// collaborator callbacks, including ones invoked on the loop itself.
func (s *Session) post(fn func()) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) drain() []func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queue
	s.queue = nil
	return q
}

// do runs fn on the loop and waits for its result. fn runs only if the
// caller is still waiting when the loop reaches it; once it has started, its
// result is returned even if ctx ends meanwhile.
func (s *Session) do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-s.done:
		return domain.ErrSessionClosed
	default:
	}

	const (
		pending int32 = iota
		started
		abandoned
	)
	var state atomic.Int32
	res := make(chan error, 1)
	s.post(func() {
		if !state.CompareAndSwap(pending, started) {
			return
		}
		res <- fn()
	})

	select {
	case err := <-res:
		return err
	case <-s.done:
	case <-ctx.Done():
		if state.CompareAndSwap(pending, abandoned) {
			return ctx.Err()
		}
		select {
		case err := <-res:
			return err
		case <-s.done:
		}
	}
	select {
	case err := <-res:
		return err
	default:
		return domain.ErrSessionClosed
	}
}

func (s *Session) emit(ev domain.Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Warn().Type("event", ev).Msg("event channel full, notification dropped")
	}
}

func (s *Session) onSignalError(err error) {
	s.log.Error().Err(err).Msg("signaling error")
}

func (s *Session) teardown() {
	if s.amp.Stop() {
		s.metrics.broadcast(false, 0)
	}
	for id, l := range s.listening {
		delete(s.listening, id)
		l.conn.Close()
		l.sink.Close()
	}
	s.reg.Clear()
	s.syncGauges()
	s.media.Close()
	if err := s.peer.Close(); err != nil {
		s.log.Warn().Err(err).Msg("peer close")
	}
	s.log.Info().Msg("session torn down")
}

func (s *Session) syncGauges() {
	s.metrics.setConnections(domain.Outbound, s.reg.Count(domain.Outbound))
	s.metrics.setConnections(domain.Inbound, s.reg.Count(domain.Inbound))
}

// State is a point-in-time view of the session.
type State struct {
	Entries        []registry.EntryInfo `json:"entries"`
	Audio          string               `json:"audio"`
	Video          string               `json:"video"`
	AudioEnabled   bool                 `json:"audio_enabled"`
	VideoEnabled   bool                 `json:"video_enabled"`
	Broadcasting   bool                 `json:"broadcasting"`
	AuxConnections int                  `json:"aux_connections"`
	Listening      int                  `json:"listening"`
}

func (s *Session) Snapshot(ctx context.Context) (State, error) {
	var st State
	err := s.do(ctx, func() error {
		st = s.snapshot()
		return nil
	})
	return st, err
}
