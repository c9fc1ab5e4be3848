package broadcast

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/core/mocks"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/media"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func liveCapture() *media.Stream {
	return media.NewStream("local",
		media.NewTrack(media.Audio, "mic", make(pushSource)),
		media.NewTrack(media.Video, "cam", make(pushSource)),
	)
}

// dialer records every auxiliary call.
type dialer struct {
	ctrl    *gomock.Controller
	calls   map[domain.PeerID]*media.Stream
	conns   []*mocks.MockConnection
	failFor domain.PeerID
}

func newDialer(ctrl *gomock.Controller) *dialer {
	return &dialer{ctrl: ctrl, calls: make(map[domain.PeerID]*media.Stream)}
}

func (d *dialer) dial(peer domain.PeerID, s *media.Stream) (core.Connection, error) {
	if peer == d.failFor {
		return nil, errors.New("unreachable")
	}
	d.calls[peer] = s
	c := mocks.NewMockConnection(d.ctrl)
	c.EXPECT().ID().Return(fmt.Sprintf("aux-%s", peer)).AnyTimes()
	d.conns = append(d.conns, c)
	return c, nil
}

func TestNewRejectsLowGain(t *testing.T) {
	_, err := New(1.0, zerolog.Nop())
	assert.ErrorIs(t, err, ErrGainTooLow)
	_, err = New(0.5, zerolog.Nop())
	assert.ErrorIs(t, err, ErrGainTooLow)
}

func TestStartOpensOneConnectionPerPeer(t *testing.T) {
	ctrl := gomock.NewController(t)
	amp, err := New(DefaultGain, zerolog.Nop())
	require.NoError(t, err)
	capture := liveCapture()
	defer capture.Stop()
	d := newDialer(ctrl)

	require.True(t, amp.Start(capture, []domain.PeerID{"a", "b", "c"}, d.dial))
	assert.True(t, amp.Active())
	assert.Equal(t, 3, amp.Connections())

	derived := amp.Derived()
	require.NotNil(t, derived)
	assert.NotEqual(t, capture.ID(), derived.ID())
	assert.Equal(t, media.AudioOnly, derived.Kinds())
	for _, s := range d.calls {
		assert.Same(t, derived, s)
	}

	// already on
	assert.False(t, amp.Start(capture, []domain.PeerID{"d"}, d.dial))
	assert.Len(t, d.calls, 3)

	for _, c := range d.conns {
		c.EXPECT().Close()
	}
	require.True(t, amp.Stop())
	assert.False(t, amp.Active())
	assert.Zero(t, amp.Connections())
	assert.True(t, derived.Kinds().Empty())

	for _, tr := range capture.Tracks() {
		assert.False(t, tr.Ended())
		assert.True(t, tr.Enabled())
	}
	assert.False(t, amp.Stop())
}

func TestStartWithoutAudio(t *testing.T) {
	amp, _ := New(DefaultGain, zerolog.Nop())
	d := newDialer(gomock.NewController(t))

	assert.False(t, amp.Start(nil, []domain.PeerID{"a"}, d.dial))

	videoOnly := media.NewStream("", media.NewTrack(media.Video, "", make(pushSource)))
	defer videoOnly.Stop()
	assert.False(t, amp.Start(videoOnly, []domain.PeerID{"a"}, d.dial))
	assert.False(t, amp.Active())
	assert.Empty(t, d.calls)
}

func TestFailedDialSkipsPeer(t *testing.T) {
	ctrl := gomock.NewController(t)
	amp, _ := New(DefaultGain, zerolog.Nop())
	capture := liveCapture()
	defer capture.Stop()
	d := newDialer(ctrl)
	d.failFor = "b"

	require.True(t, amp.Start(capture, []domain.PeerID{"a", "b"}, d.dial))
	assert.Equal(t, 1, amp.Connections())

	assert.True(t, amp.Forget("aux-a"))
	assert.False(t, amp.Forget("aux-a"))
	assert.Zero(t, amp.Connections())
	assert.True(t, amp.Stop())
}

func TestRefreshFollowsReplacedAudio(t *testing.T) {
	ctrl := gomock.NewController(t)
	amp, _ := New(DefaultGain, zerolog.Nop())
	capture := liveCapture()
	defer capture.Stop()
	d := newDialer(ctrl)

	assert.Zero(t, amp.Refresh(capture))
	require.True(t, amp.Start(capture, []domain.PeerID{"a"}, d.dial))
	derived := amp.Derived()
	old := derived.TracksOf(media.Audio)
	require.Len(t, old, 1)
	assert.Zero(t, amp.Refresh(capture))

	mic := capture.TracksOf(media.Audio)[0]
	capture.RemoveTrack(mic)
	mic.Stop()
	capture.AddTrack(media.NewTrack(media.Audio, "mic2", make(pushSource)))

	assert.Equal(t, 1, amp.Refresh(capture))
	now := derived.TracksOf(media.Audio)
	require.Len(t, now, 1)
	assert.NotSame(t, old[0], now[0])
	assert.True(t, old[0].Ended())
	assert.True(t, derived.Live(media.Audio))
	assert.Equal(t, 1, amp.Connections())

	d.conns[0].EXPECT().Close()
	require.True(t, amp.Stop())
}
