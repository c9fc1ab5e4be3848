package broker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	// OfferLimit offers per OfferInterval are accepted from one peer.
	// Zero disables the limit.
	OfferLimit    int
	OfferInterval time.Duration
	Policy        Policy
	Metrics       *Metrics
}

// Broker is the signaling relay. It keeps no call state: offers, answers
// and leaves are forwarded to their destination with the sender stamped.
type Broker struct {
	dir     *Directory
	limiter *RateLimiter
	policy  Policy
	metrics *Metrics
	log     zerolog.Logger
}

func New(opts Options) *Broker {
	policy := opts.Policy
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Broker{
		dir:     NewDirectory(),
		limiter: NewRateLimiter(opts.OfferLimit, opts.OfferInterval),
		policy:  policy,
		metrics: opts.Metrics,
		log:     log.With().Str("module", "broker").Logger(),
	}
}

// Peers lists the online peers.
func (b *Broker) Peers() []domain.PeerID { return b.dir.IDs() }

// Join registers conn under id and confirms with an open message. On
// failure the client is told why and the caller must close conn.
func (b *Broker) Join(id domain.PeerID, token string, conn core.SignalConnection, cancel context.CancelFunc) error {
	if err := id.Validate(); err != nil {
		b.metrics.reject(domain.SignalErrInvalidID)
		b.send(id, conn, domain.SignalMessage{Type: domain.SignalError, Error: domain.SignalErrInvalidID})
		return err
	}
	if err := b.dir.Bind(id, token, conn, cancel); err != nil {
		b.metrics.reject(domain.SignalErrUnavailableID)
		b.send(id, conn, domain.SignalMessage{Type: domain.SignalError, Error: domain.SignalErrUnavailableID})
		return err
	}
	b.metrics.setOnline(b.dir.Len())
	b.send(id, conn, domain.SignalMessage{Type: domain.SignalOpen, Dst: id})
	return nil
}

// Leave forgets id if conn still owns it.
func (b *Broker) Leave(id domain.PeerID, conn core.SignalConnection) {
	if b.dir.Unbind(id, conn) {
		b.limiter.Forget(id)
		b.metrics.setOnline(b.dir.Len())
	}
}

// Handle processes one frame received from src.
func (b *Broker) Handle(src domain.PeerID, conn core.SignalConnection, data []byte) {
	var msg domain.SignalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		b.log.Warn().Err(err).Str("peer", string(src)).Msg("bad json")
		b.metrics.reject(domain.SignalErrBadPayload)
		b.send(src, conn, domain.SignalMessage{Type: domain.SignalError, Error: domain.SignalErrBadPayload})
		return
	}

	switch msg.Type {
	case domain.SignalPing:
		b.send(src, conn, domain.SignalMessage{Type: domain.SignalPong})
	case domain.SignalOffer:
		if !b.limiter.Allow(src) {
			b.log.Warn().Str("peer", string(src)).Str("dst", string(msg.Dst)).Msg("offer rate limited")
			b.metrics.reject(domain.SignalErrRateLimited)
			b.send(src, conn, domain.SignalMessage{
				Type: domain.SignalError, Error: domain.SignalErrRateLimited, Call: msg.Call, Dst: msg.Dst,
			})
			return
		}
		b.relay(src, conn, msg)
	case domain.SignalAnswer, domain.SignalLeave:
		b.relay(src, conn, msg)
	default:
		b.log.Warn().Str("peer", string(src)).Str("type", msg.Type).Msg("unknown signal")
	}
}

func (b *Broker) relay(src domain.PeerID, conn core.SignalConnection, msg domain.SignalMessage) {
	dst, ok := b.dir.Lookup(msg.Dst)
	if !ok {
		if msg.Type == domain.SignalLeave {
			return
		}
		b.log.Info().Str("peer", string(src)).Str("dst", string(msg.Dst)).Str("type", msg.Type).Msg("destination offline")
		b.metrics.reject(domain.SignalErrPeerUnavailable)
		b.send(src, conn, domain.SignalMessage{
			Type: domain.SignalError, Error: domain.SignalErrPeerUnavailable, Call: msg.Call, Dst: msg.Dst,
		})
		return
	}
	msg.Src = src
	msg.Error = ""
	b.metrics.relay(msg.Type)
	b.log.Debug().Str("peer", string(src)).Str("dst", string(msg.Dst)).Str("type", msg.Type).Str("call", msg.Call).Msg("relay")
	b.send(msg.Dst, dst, msg)
}

// send delivers msg to peer id over conn and applies the backpressure
// policy when the peer cannot keep up.
func (b *Broker) send(id domain.PeerID, conn core.SignalConnection, msg domain.SignalMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.log.Error().Err(err).Msg("marshal")
		return
	}
	err = conn.TrySend(data)
	if err == nil || !errors.Is(err, core.ErrBackpressure) {
		return
	}
	switch b.policy.OnBackPressure(id, msg.Type) {
	case KickPeer:
		b.log.Warn().Str("peer", string(id)).Str("type", msg.Type).Msg("send queue full, kicking peer")
		b.dir.Cancel(id)
		conn.Close()
	case DropFrame:
		b.log.Debug().Str("peer", string(id)).Str("type", msg.Type).Msg("send queue full, frame dropped")
	}
}
