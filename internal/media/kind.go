// Package media models capture and remote streams the way the session sees
// them: kinds, frames, fan-out tracks and mutable streams.
package media

import (
	"strings"
	"time"
)

// Audio frames are 16-bit little-endian mono PCM at 8 kHz, 20 ms each.
const (
	SampleRate      = 8000
	FrameDuration   = 20 * time.Millisecond
	SamplesPerFrame = SampleRate / 50
	BytesPerFrame   = SamplesPerFrame * 2
)

type Kind int

const (
	Audio Kind = iota
	Video
)

func (k Kind) String() string {
	switch k {
	case Audio:
		return "audio"
	case Video:
		return "video"
	default:
		return "unknown"
	}
}

// Kinds selects media kinds, e.g. for a capture request.
type Kinds struct {
	Audio bool
	Video bool
}

var (
	AudioOnly  = Kinds{Audio: true}
	VideoOnly  = Kinds{Video: true}
	AudioVideo = Kinds{Audio: true, Video: true}
)

// Only returns a Kinds selecting just k.
func Only(k Kind) Kinds {
	if k == Video {
		return VideoOnly
	}
	return AudioOnly
}

func (ks Kinds) Has(k Kind) bool {
	switch k {
	case Audio:
		return ks.Audio
	case Video:
		return ks.Video
	default:
		return false
	}
}

func (ks Kinds) Empty() bool { return !ks.Audio && !ks.Video }

// List returns the selected kinds, audio first.
func (ks Kinds) List() []Kind {
	out := make([]Kind, 0, 2)
	if ks.Audio {
		out = append(out, Audio)
	}
	if ks.Video {
		out = append(out, Video)
	}
	return out
}

func (ks Kinds) String() string {
	names := make([]string, 0, 2)
	for _, k := range ks.List() {
		names = append(names, k.String())
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "+")
}

// Frame is one unit of media. Audio carries PCM, video an encoded payload.
type Frame struct {
	Data     []byte
	Duration time.Duration
}

// Silence returns a zeroed copy of f, used for disabled audio tracks.
func (f Frame) Silence() Frame {
	return Frame{Data: make([]byte, len(f.Data)), Duration: f.Duration}
}
