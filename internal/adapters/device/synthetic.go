// Package device provides capture devices for headless participants: a sine
// tone microphone and a camera emitting fixed placeholder frames.
package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/media"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultToneHz = 440.0
	toneLevel     = 8000
	videoInterval = time.Second / 15
)

// placeholderFrame stands in for an encoded picture. The transport does not
// inspect it.
var placeholderFrame = []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 0x10, 0x00, 0x10, 0x00}

type Options struct {
	ToneHz float64
	// Deny refuses every capture request as if the user blocked access.
	Deny bool
}

// Synthetic implements core.Devices.
type Synthetic struct {
	toneHz float64
	deny   bool
	log    zerolog.Logger

	mu      sync.Mutex
	granted map[media.Kind]bool
	denied  bool
}

func NewSynthetic(opts Options) *Synthetic {
	hz := opts.ToneHz
	if hz <= 0 {
		hz = DefaultToneHz
	}
	return &Synthetic{
		toneHz:  hz,
		deny:    opts.Deny,
		log:     log.With().Str("module", "device").Logger(),
		granted: make(map[media.Kind]bool),
	}
}

func (d *Synthetic) RequestCapture(ctx context.Context, kinds media.Kinds) (*media.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if kinds.Empty() {
		return nil, fmt.Errorf("%w: %w", domain.ErrDeviceAcquisition, domain.ErrNoDevice)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deny {
		d.denied = true
		d.log.Info().Str("kinds", kinds.String()).Msg("capture refused")
		return nil, fmt.Errorf("%w: %w", domain.ErrDeviceAcquisition, domain.ErrPermissionDenied)
	}

	var tracks []*media.Track
	if kinds.Audio {
		tracks = append(tracks, media.NewTrack(media.Audio, "mic-"+uuid.NewString(), newTone(d.toneHz)))
		d.granted[media.Audio] = true
	}
	if kinds.Video {
		tracks = append(tracks, media.NewTrack(media.Video, "cam-"+uuid.NewString(), newBlank()))
		d.granted[media.Video] = true
	}
	d.log.Info().Str("kinds", kinds.String()).Msg("capture granted")
	return media.NewStream("", tracks...), nil
}

// Permission reports what a previous request decided for kind.
func (d *Synthetic) Permission(_ context.Context, kind media.Kind) (core.PermissionState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.granted[kind]:
		return core.PermissionGranted, nil
	case d.denied:
		return core.PermissionDenied, nil
	default:
		return core.PermissionPrompt, nil
	}
}

// tone is a paced sine source.
type tone struct {
	step   float64
	phase  float64
	ticker *time.Ticker
}

func newTone(hz float64) *tone {
	return &tone{
		step:   2 * math.Pi * hz / media.SampleRate,
		ticker: time.NewTicker(media.FrameDuration),
	}
}

func (t *tone) ReadFrame(ctx context.Context) (media.Frame, error) {
	select {
	case <-ctx.Done():
		t.ticker.Stop()
		return media.Frame{}, ctx.Err()
	case <-t.ticker.C:
	}
	buf := make([]byte, media.BytesPerFrame)
	for i := 0; i < media.SamplesPerFrame; i++ {
		s := int16(toneLevel * math.Sin(t.phase))
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
		t.phase = math.Mod(t.phase+t.step, 2*math.Pi)
	}
	return media.Frame{Data: buf, Duration: media.FrameDuration}, nil
}

func newBlank() media.Source {
	ticker := time.NewTicker(videoInterval)
	return media.SourceFunc(func(ctx context.Context) (media.Frame, error) {
		select {
		case <-ctx.Done():
			ticker.Stop()
			return media.Frame{}, ctx.Err()
		case <-ticker.C:
			return media.Frame{Data: placeholderFrame, Duration: videoInterval}, nil
		}
	})
}
