package rtc

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/media"
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("rtc connection closed")

// WebRTCConnection is one pion PeerConnection carrying a local media.Stream
// out and exposing the remote tracks as a media.Stream.
type WebRTCConnection struct {
	pc   *webrtc.PeerConnection
	call string
	peer domain.PeerID
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	remote   *media.Stream
	onRemote func(*media.Stream)
	onClosed func()

	closeOnce sync.Once
}

func NewWebRTCConnection(api *webrtc.API, cfg webrtc.Configuration, call string, peer domain.PeerID) (*WebRTCConnection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &WebRTCConnection{
		pc:     pc,
		call:   call,
		peer:   peer,
		log:    log.With().Str("module", "rtc").Str("call", call).Str("peer", string(peer)).Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
	c.start()
	return c, nil
}

func (c *WebRTCConnection) start() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.log.Debug().Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.log.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			// may run inside pc.Close
			go c.Close()
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.log.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.handleTrack(track, receiver)
	})
}

// AddStream sends the tracks of s for each kind in kinds. The sender for a
// kind follows s: when its track is stopped and a new one is added, the new
// one is picked up. A nil stream adds nothing.
func (c *WebRTCConnection) AddStream(s *media.Stream, kinds media.Kinds) error {
	if s == nil {
		return nil
	}
	for _, k := range kinds.List() {
		capability := audioCodec
		if k == media.Video {
			capability = videoCodec
		}
		out, err := webrtc.NewTrackLocalStaticSample(capability, k.String(), s.ID())
		if err != nil {
			return err
		}
		sender, err := c.pc.AddTrack(out)
		if err != nil {
			return err
		}
		go drainRTCP(sender)
		go c.pump(s, k, out)
	}
	return nil
}

// CreateOffer returns the local offer once ICE gathering is complete, so no
// trickle candidates need to be exchanged.
func (c *WebRTCConnection) CreateOffer(ctx context.Context) (*webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	return c.setLocal(ctx, offer)
}

func (c *WebRTCConnection) ApplyOfferAndCreateAnswer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	return c.setLocal(ctx, answer)
}

func (c *WebRTCConnection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *WebRTCConnection) setLocal(ctx context.Context, desc webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(desc); err != nil {
		return nil, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, ErrClosed
	}
	return c.pc.LocalDescription(), nil
}

// OnRemoteStream fires once with the remote stream, when its first track
// arrives. Later tracks are added to the same stream.
func (c *WebRTCConnection) OnRemoteStream(fn func(*media.Stream)) {
	c.mu.Lock()
	c.onRemote = fn
	remote := c.remote
	c.mu.Unlock()
	if remote != nil {
		fn(remote)
	}
}

// OnClosed sets application-level callback for cleanup.
func (c *WebRTCConnection) OnClosed(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClosed = fn
}

func (c *WebRTCConnection) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		if err := c.pc.Close(); err != nil {
			c.log.Error().Err(err).Msg("close error")
		} else {
			c.log.Info().Msg("closed")
		}
		c.mu.Lock()
		remote := c.remote
		fn := c.onClosed
		c.mu.Unlock()
		if remote != nil {
			remote.Stop()
		}
		if fn != nil {
			fn()
		}
	})
}

func (c *WebRTCConnection) handleTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	go drainRTCP(receiver)

	kind := media.Audio
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		kind = media.Video
	}
	mt := media.NewTrack(kind, track.ID(), newRemoteSource(track, kind, c.log))

	c.mu.Lock()
	first := c.remote == nil
	if first {
		c.remote = media.NewStream(track.StreamID())
	}
	remote := c.remote
	fn := c.onRemote
	c.mu.Unlock()

	remote.AddTrack(mt)
	if first && fn != nil {
		fn(remote)
	}
}

type rtcpSource interface {
	ReadRTCP() ([]rtcp.Packet, interceptor.Attributes, error)
}

// drainRTCP keeps the interceptors fed; the reports themselves are not used.
func drainRTCP(r rtcpSource) {
	for {
		if _, _, err := r.ReadRTCP(); err != nil {
			return
		}
	}
}
