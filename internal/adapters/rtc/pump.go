package rtc

import (
	"context"
	"time"

	"github.com/dkeye/meshcall/internal/media"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
)

const rtpBufferSize = 1500

// pump writes the frames of the first live track of kind in s to out until
// the connection closes, switching tracks whenever s changes.
func (c *WebRTCConnection) pump(s *media.Stream, kind media.Kind, out *webrtc.TrackLocalStaticSample) {
	for {
		changed := s.Changed()
		var frames <-chan media.Frame
		release := func() {}
		for _, t := range s.TracksOf(kind) {
			if !t.Ended() {
				frames, release = t.Subscribe(media.DefaultOutletBuffer)
				break
			}
		}

	forward:
		for {
			select {
			case <-c.ctx.Done():
				release()
				return
			case <-changed:
				release()
				break forward
			case f, ok := <-frames:
				if !ok {
					// track ended; wait for the stream to change
					frames = nil
					continue
				}
				if err := writeFrame(out, kind, f); err != nil {
					c.log.Warn().Err(err).Str("kind", kind.String()).Msg("write sample")
					release()
					return
				}
			}
		}
	}
}

func writeFrame(out *webrtc.TrackLocalStaticSample, kind media.Kind, f media.Frame) error {
	if len(f.Data) == 0 {
		return nil
	}
	data := f.Data
	if kind == media.Audio {
		data = EncodeUlaw(f.Data)
	}
	return out.WriteSample(pionmedia.Sample{Data: data, Duration: f.Duration})
}

// remoteSource turns the RTP packets of a remote track into frames. Audio
// is decoded to PCM, video payloads pass through untouched.
type remoteSource struct {
	track *webrtc.TrackRemote
	kind  media.Kind
	log   zerolog.Logger

	buf     []byte
	lastSeq uint16
	started bool
	lost    uint64
}

func newRemoteSource(track *webrtc.TrackRemote, kind media.Kind, logger zerolog.Logger) *remoteSource {
	return &remoteSource{
		track: track,
		kind:  kind,
		log:   logger,
		buf:   make([]byte, rtpBufferSize),
	}
}

func (r *remoteSource) ReadFrame(ctx context.Context) (media.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return media.Frame{}, err
		}
		n, _, err := r.track.Read(r.buf)
		if err != nil {
			if r.lost > 0 {
				r.log.Debug().Uint64("lost", r.lost).Str("kind", r.kind.String()).Msg("remote track ended")
			}
			return media.Frame{}, err
		}
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(r.buf[:n]); err != nil {
			continue
		}
		r.trackLoss(pkt.SequenceNumber)
		if len(pkt.Payload) == 0 {
			continue
		}
		if r.kind == media.Audio {
			return media.Frame{
				Data:     DecodeUlaw(pkt.Payload),
				Duration: time.Duration(len(pkt.Payload)) * time.Second / media.SampleRate,
			}, nil
		}
		return media.Frame{Data: append([]byte(nil), pkt.Payload...)}, nil
	}
}

func (r *remoteSource) trackLoss(seq uint16) {
	if r.started {
		if gap := seq - r.lastSeq; gap > 1 && gap < 1<<15 {
			r.lost += uint64(gap - 1)
		}
	}
	r.started = true
	r.lastSeq = seq
}
