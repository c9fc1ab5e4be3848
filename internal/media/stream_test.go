package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamTracksAndKinds(t *testing.T) {
	a := NewTrack(Audio, "a", newChanSource())
	v := NewTrack(Video, "v", newChanSource())
	s := NewStream("", a)
	defer s.Stop()

	require.NotEmpty(t, s.ID())
	assert.Equal(t, AudioOnly, s.Kinds())

	changed := s.Changed()
	s.AddTrack(v)
	s.AddTrack(v)
	assert.Len(t, s.Tracks(), 2)
	assert.Equal(t, AudioVideo, s.Kinds())
	select {
	case <-changed:
	default:
		t.Fatal("add not notified")
	}

	v.Stop()
	assert.False(t, s.Live(Video))
	assert.True(t, s.RemoveTrack(v))
	assert.False(t, s.RemoveTrack(v))
	assert.Equal(t, []*Track{a}, s.TracksOf(Audio))
	assert.Empty(t, s.TracksOf(Video))
}

func TestStreamStop(t *testing.T) {
	a := NewTrack(Audio, "", newChanSource())
	s := NewStream("x", a)
	s.Stop()
	assert.True(t, a.Ended())
	assert.Empty(t, s.Tracks())
	assert.True(t, s.Kinds().Empty())
}

func TestKinds(t *testing.T) {
	assert.Equal(t, "audio+video", AudioVideo.String())
	assert.Equal(t, "none", Kinds{}.String())
	assert.Equal(t, VideoOnly, Only(Video))
	assert.True(t, AudioOnly.Has(Audio))
	assert.False(t, AudioOnly.Has(Video))
	assert.Equal(t, []Kind{Audio, Video}, AudioVideo.List())
}
