package sink

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/meshcall/internal/media"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pushSource chan media.Frame

func (p pushSource) ReadFrame(ctx context.Context) (media.Frame, error) {
	select {
	case f := <-p:
		return f, nil
	case <-ctx.Done():
		return media.Frame{}, ctx.Err()
	}
}

func TestSinkCountsFrames(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	r := NewRenderer(m)
	audio := make(pushSource)
	stream := media.NewStream("remote", media.NewTrack(media.Audio, "a", audio))
	defer stream.Stop()

	s := r.NewSink("bob").(*Sink)
	s.Attach(stream)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.active))

	require.Eventually(t, func() bool {
		select {
		case audio <- media.Frame{Data: make([]byte, 4)}:
		default:
		}
		return s.Frames()[media.Audio] >= 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.frames.WithLabelValues("audio")), 2.0)

	s.Close()
	s.Close()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.active))
}

func TestSinkFollowsAddedTracks(t *testing.T) {
	r := NewRenderer(nil)
	stream := media.NewStream("remote")
	defer stream.Stop()

	s := r.NewSink("bob").(*Sink)
	defer s.Close()
	s.Attach(stream)

	video := make(pushSource)
	stream.AddTrack(media.NewTrack(media.Video, "v", video))
	require.Eventually(t, func() bool {
		select {
		case video <- media.Frame{Data: []byte{1}}:
		default:
		}
		return s.Frames()[media.Video] >= 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSinkClosedIgnoresAttach(t *testing.T) {
	s := NewRenderer(nil).NewSink("x").(*Sink)
	s.Close()
	s.Attach(media.NewStream("late"))
	assert.Empty(t, s.Frames())
}
