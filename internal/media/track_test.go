package media

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanSource replays frames pushed into it.
type chanSource struct {
	in     chan Frame
	closed chan struct{}
}

func newChanSource() *chanSource {
	return &chanSource{in: make(chan Frame), closed: make(chan struct{})}
}

func (s *chanSource) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case f := <-s.in:
		return f, nil
	}
}

func (s *chanSource) Close() error {
	close(s.closed)
	return nil
}

func recv(t *testing.T, ch <-chan Frame) Frame {
	t.Helper()
	select {
	case f, ok := <-ch:
		require.True(t, ok, "channel closed")
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame")
		return Frame{}
	}
}

func TestTrackFanOut(t *testing.T) {
	src := newChanSource()
	tr := NewTrack(Audio, "mic", src)
	defer tr.Stop()

	a, releaseA := tr.Subscribe(4)
	b, releaseB := tr.Subscribe(4)
	defer releaseA()
	defer releaseB()

	src.in <- Frame{Data: []byte{1, 2}, Duration: FrameDuration}
	assert.Equal(t, []byte{1, 2}, recv(t, a).Data)
	assert.Equal(t, []byte{1, 2}, recv(t, b).Data)
}

func TestTrackDisabledAudioIsSilence(t *testing.T) {
	src := newChanSource()
	tr := NewTrack(Audio, "", src)
	defer tr.Stop()
	ch, release := tr.Subscribe(4)
	defer release()

	tr.SetEnabled(false)
	src.in <- Frame{Data: []byte{7, 7, 7, 7}}
	assert.Equal(t, []byte{0, 0, 0, 0}, recv(t, ch).Data)

	tr.SetEnabled(true)
	src.in <- Frame{Data: []byte{7, 7}}
	assert.Equal(t, []byte{7, 7}, recv(t, ch).Data)
}

func TestTrackDisabledVideoIsWithheld(t *testing.T) {
	src := newChanSource()
	tr := NewTrack(Video, "", src)
	defer tr.Stop()
	ch, release := tr.Subscribe(4)
	defer release()

	tr.SetEnabled(false)
	src.in <- Frame{Data: []byte{1}}
	// the loop reads one frame at a time, so the first one has been
	// forwarded once the second is taken
	src.in <- Frame{Data: []byte{2}}
	assert.Empty(t, ch)
	assert.False(t, tr.Enabled())
}

func TestTrackStopClosesOutletsAndSource(t *testing.T) {
	src := newChanSource()
	tr := NewTrack(Audio, "", src)
	ch, _ := tr.Subscribe(1)

	tr.Stop()
	tr.Stop()

	_, ok := <-ch
	assert.False(t, ok)
	assert.True(t, tr.Ended())
	select {
	case <-src.closed:
	case <-time.After(time.Second):
		t.Fatal("source not closed")
	}
	select {
	case <-tr.Done():
	default:
		t.Fatal("done not closed")
	}

	late, _ := tr.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok)
}

func TestTrackRelease(t *testing.T) {
	tr := NewTrack(Audio, "", newChanSource())
	defer tr.Stop()
	ch, release := tr.Subscribe(1)
	release()
	release()
	_, ok := <-ch
	assert.False(t, ok)
	assert.False(t, tr.Ended())
}
