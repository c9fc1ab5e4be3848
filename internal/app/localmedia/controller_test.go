package localmedia

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/meshcall/internal/core/mocks"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/media"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func idle() media.Source {
	return media.SourceFunc(func(ctx context.Context) (media.Frame, error) {
		<-ctx.Done()
		return media.Frame{}, ctx.Err()
	})
}

func capture(kinds media.Kinds) *media.Stream {
	s := media.NewStream("")
	for _, k := range kinds.List() {
		s.AddTrack(media.NewTrack(k, "", idle()))
	}
	return s
}

func newController(t *testing.T) (*Controller, *mocks.MockSinkFactory, *gomock.Controller) {
	ctrl := gomock.NewController(t)
	sinks := mocks.NewMockSinkFactory(ctrl)
	return New(sinks, zerolog.Nop()), sinks, ctrl
}

func expectPreview(ctrl *gomock.Controller, sinks *mocks.MockSinkFactory) *mocks.MockSink {
	sink := mocks.NewMockSink(ctrl)
	sinks.EXPECT().NewSink(previewLabel).Return(sink)
	sink.EXPECT().Attach(gomock.Any())
	return sink
}

func TestAcquireGrantsBothKinds(t *testing.T) {
	c, sinks, ctrl := newController(t)
	preview := expectPreview(ctrl, sinks)

	req, err := c.Begin(media.AudioVideo)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, StateAcquiring, c.State(media.Audio))
	assert.Equal(t, StateAcquiring, c.State(media.Video))

	res, err := c.Complete(req, capture(media.AudioVideo), nil)
	require.NoError(t, err)
	assert.True(t, res.First)
	assert.Equal(t, media.AudioVideo, res.Granted)
	assert.True(t, c.VideoConnected())
	assert.True(t, c.Enabled(media.Audio))
	assert.Equal(t, preview, c.Preview())

	preview.EXPECT().Close()
	c.Close()
	assert.Equal(t, StateStopped, c.State(media.Audio))
}

func TestSecondBeginWhilePending(t *testing.T) {
	c, _, _ := newController(t)
	_, err := c.Begin(media.AudioOnly)
	require.NoError(t, err)
	_, err = c.Begin(media.VideoOnly)
	assert.ErrorIs(t, err, domain.ErrAcquireInProgress)
}

func TestAcquireFailureLeavesStateUnchanged(t *testing.T) {
	c, _, _ := newController(t)
	req, err := c.Begin(media.AudioVideo)
	require.NoError(t, err)

	_, err = c.Complete(req, nil, domain.ErrPermissionDenied)
	assert.ErrorIs(t, err, domain.ErrDeviceAcquisition)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Equal(t, StateUnacquired, c.State(media.Audio))
	assert.Equal(t, StateUnacquired, c.State(media.Video))
	assert.Nil(t, c.Stream())
	assert.Nil(t, c.Preview())
}

func TestAcquireWithoutTracksIsNoDevice(t *testing.T) {
	c, _, _ := newController(t)
	req, err := c.Begin(media.AudioOnly)
	require.NoError(t, err)

	_, err = c.Complete(req, media.NewStream(""), nil)
	assert.ErrorIs(t, err, domain.ErrNoDevice)
	assert.Equal(t, StateUnacquired, c.State(media.Audio))
}

func TestPartialGrantRollsBackMissingKind(t *testing.T) {
	c, sinks, ctrl := newController(t)
	expectPreview(ctrl, sinks).EXPECT().Close().AnyTimes()

	req, err := c.Begin(media.AudioVideo)
	require.NoError(t, err)
	res, err := c.Complete(req, capture(media.AudioOnly), nil)
	require.NoError(t, err)
	assert.Equal(t, media.AudioOnly, res.Granted)
	assert.Equal(t, StateActive, c.State(media.Audio))
	assert.Equal(t, StateUnacquired, c.State(media.Video))
}

func TestUnrequestedTracksAreStopped(t *testing.T) {
	c, sinks, ctrl := newController(t)
	expectPreview(ctrl, sinks).EXPECT().Close().AnyTimes()

	granted := capture(media.AudioVideo)
	video := granted.TracksOf(media.Video)[0]
	req, err := c.Begin(media.AudioOnly)
	require.NoError(t, err)
	_, err = c.Complete(req, granted, nil)
	require.NoError(t, err)

	assert.True(t, video.Ended())
	assert.Empty(t, c.Stream().TracksOf(media.Video))
}

func TestMuteKeepsDevice(t *testing.T) {
	c, sinks, ctrl := newController(t)
	expectPreview(ctrl, sinks).EXPECT().Close().AnyTimes()

	req, _ := c.Begin(media.AudioVideo)
	_, err := c.Complete(req, capture(media.AudioVideo), nil)
	require.NoError(t, err)
	audio := c.Stream().TracksOf(media.Audio)[0]

	assert.True(t, c.Mute(media.Audio))
	assert.False(t, audio.Enabled())
	assert.False(t, audio.Ended())
	assert.False(t, c.Enabled(media.Audio))
	assert.Equal(t, StateActive, c.State(media.Audio))

	assert.True(t, c.Unmute(media.Audio))
	assert.True(t, audio.Enabled())
}

func TestMuteWithoutCapture(t *testing.T) {
	c, _, _ := newController(t)
	assert.False(t, c.Mute(media.Audio))
	assert.False(t, c.Stop(media.Video))
}

func TestStopAndRestartVideo(t *testing.T) {
	c, sinks, ctrl := newController(t)
	first := expectPreview(ctrl, sinks)

	req, _ := c.Begin(media.AudioVideo)
	_, err := c.Complete(req, capture(media.AudioVideo), nil)
	require.NoError(t, err)
	audio := c.Stream().TracksOf(media.Audio)[0]
	oldVideo := c.Stream().TracksOf(media.Video)[0]

	first.EXPECT().Close()
	require.True(t, c.Stop(media.Video))
	assert.True(t, oldVideo.Ended())
	assert.False(t, audio.Ended())
	assert.Equal(t, StateStopped, c.State(media.Video))
	assert.Equal(t, StateActive, c.State(media.Audio))
	assert.False(t, c.VideoConnected())
	assert.Nil(t, c.Preview())

	second := expectPreview(ctrl, sinks)
	req, err = c.Begin(media.AudioVideo)
	require.NoError(t, err)
	assert.Equal(t, media.VideoOnly, req.Kinds)
	res, err := c.Complete(req, capture(media.VideoOnly), nil)
	require.NoError(t, err)
	assert.False(t, res.First)
	assert.Equal(t, StateActive, c.State(media.Video))
	assert.Equal(t, second, c.Preview())
	assert.Len(t, c.Stream().TracksOf(media.Audio), 1)
	assert.Len(t, c.Stream().TracksOf(media.Video), 1)
}

func TestBeginNothingToDo(t *testing.T) {
	c, sinks, ctrl := newController(t)
	expectPreview(ctrl, sinks).EXPECT().Close().AnyTimes()
	req, _ := c.Begin(media.AudioOnly)
	_, err := c.Complete(req, capture(media.AudioOnly), nil)
	require.NoError(t, err)

	req, err = c.Begin(media.AudioOnly)
	require.NoError(t, err)
	assert.Nil(t, req)

	res, err := c.Complete(nil, nil, errors.New("ignored"))
	require.NoError(t, err)
	assert.True(t, res.Granted.Empty())
}
