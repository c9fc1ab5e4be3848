package broadcast

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/dkeye/meshcall/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcm(samples ...int16) media.Frame {
	b := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(s))
	}
	return media.Frame{Data: b, Duration: media.FrameDuration}
}

func samples(f media.Frame) []int16 {
	out := make([]int16, len(f.Data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(f.Data[2*i:]))
	}
	return out
}

func TestAmplify(t *testing.T) {
	in := pcm(0, 100, -100, 20000, -20000, math.MaxInt16, math.MinInt16)
	out := Amplify(in, 2)
	assert.Equal(t, []int16{0, 200, -200, math.MaxInt16, math.MinInt16, math.MaxInt16, math.MinInt16}, samples(out))
	assert.Equal(t, []int16{0, 100, -100, 20000, -20000, math.MaxInt16, math.MinInt16}, samples(in))
	assert.Equal(t, in.Duration, out.Duration)
}

type pushSource chan media.Frame

func (p pushSource) ReadFrame(ctx context.Context) (media.Frame, error) {
	select {
	case <-ctx.Done():
		return media.Frame{}, ctx.Err()
	case f := <-p:
		return f, nil
	}
}

func TestGainTrackFollowsSource(t *testing.T) {
	src := make(pushSource)
	mic := media.NewTrack(media.Audio, "mic", src)
	defer mic.Stop()

	loud := NewGainTrack(mic, 3)
	out, release := loud.Subscribe(4)
	defer release()

	src <- pcm(10, -10)
	select {
	case f := <-out:
		assert.Equal(t, []int16{30, -30}, samples(f))
	case <-time.After(time.Second):
		t.Fatal("no amplified frame")
	}

	loud.Stop()
	assert.False(t, mic.Ended())
	require.Eventually(t, func() bool { return loud.Ended() }, time.Second, 10*time.Millisecond)
}

func TestGainTrackEndsWithSource(t *testing.T) {
	mic := media.NewTrack(media.Audio, "", make(pushSource))
	loud := NewGainTrack(mic, 2)
	mic.Stop()
	select {
	case <-loud.Done():
	case <-time.After(time.Second):
		t.Fatal("derived track outlived its source")
	}
}
