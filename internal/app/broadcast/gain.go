package broadcast

import (
	"context"
	"encoding/binary"
	"io"
	"math"

	"github.com/dkeye/meshcall/internal/media"
)

// DefaultGain doubles the amplitude of the captured voice.
const DefaultGain = 2.0

// NewGainTrack returns a new audio track replaying src multiplied by gain.
// Stopping the returned track releases its subscription to src and leaves
// src running.
func NewGainTrack(src *media.Track, gain float64) *media.Track {
	frames, release := src.Subscribe(media.DefaultOutletBuffer)
	return media.NewTrack(media.Audio, "", &gainSource{
		frames:  frames,
		release: release,
		gain:    gain,
	})
}

type gainSource struct {
	frames  <-chan media.Frame
	release func()
	gain    float64
}

func (g *gainSource) ReadFrame(ctx context.Context) (media.Frame, error) {
	select {
	case <-ctx.Done():
		return media.Frame{}, ctx.Err()
	case f, ok := <-g.frames:
		if !ok {
			return media.Frame{}, io.EOF
		}
		return Amplify(f, g.gain), nil
	}
}

func (g *gainSource) Close() error {
	g.release()
	return nil
}

// Amplify scales 16-bit little-endian PCM by gain, saturating at the int16
// range. The input frame is not modified.
func Amplify(f media.Frame, gain float64) media.Frame {
	out := media.Frame{Data: make([]byte, len(f.Data)), Duration: f.Duration}
	for i := 0; i+1 < len(f.Data); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(f.Data[i:])))
		v := math.Round(s * gain)
		v = max(math.MinInt16, min(math.MaxInt16, v))
		binary.LittleEndian.PutUint16(out.Data[i:], uint16(int16(v)))
	}
	return out
}
