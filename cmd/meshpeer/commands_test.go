package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/meshcall/internal/app/session"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder implements controller and logs the calls it receives.
type recorder struct {
	calls []string
	fail  error
}

func (r *recorder) note(s string) error { r.calls = append(r.calls, s); return r.fail }

func (r *recorder) Connect(_ context.Context, p string) error { return r.note("connect " + p) }
func (r *recorder) Disconnect(_ context.Context, p string) error {
	return r.note("disconnect " + p)
}
func (r *recorder) DisconnectInbound(_ context.Context, p string) error {
	return r.note("disconnect-in " + p)
}
func (r *recorder) AcquireMedia(_ context.Context, alert bool) error {
	if alert {
		return r.note("acquire alert")
	}
	return r.note("acquire")
}
func (r *recorder) MuteAudio(context.Context) error      { return r.note("mute") }
func (r *recorder) UnmuteAudio(context.Context) error    { return r.note("unmute") }
func (r *recorder) MuteVideo(context.Context) error      { return r.note("mute-video") }
func (r *recorder) UnmuteVideo(context.Context) error    { return r.note("unmute-video") }
func (r *recorder) StopVideo(context.Context) error      { return r.note("stop-video") }
func (r *recorder) StopAudio(context.Context) error      { return r.note("stop-audio") }
func (r *recorder) RestartVideo(context.Context) error   { return r.note("restart-video") }
func (r *recorder) RestartAudio(context.Context) error   { return r.note("restart-audio") }
func (r *recorder) StartBroadcast(context.Context) error { return r.note("broadcast") }
func (r *recorder) StopBroadcast(context.Context) error  { return r.note("stop-broadcast") }
func (r *recorder) Snapshot(context.Context) (session.State, error) {
	return session.State{Audio: "active", Broadcasting: true}, r.note("state")
}

func TestExecuteDispatch(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"connect bob", "connect bob"},
		{"  disconnect   bob ", "disconnect bob"},
		{"disconnect-in bob", "disconnect-in bob"},
		{"acquire", "acquire alert"},
		{"mute", "mute"},
		{"unmute-video", "unmute-video"},
		{"restart-audio", "restart-audio"},
		{"broadcast", "broadcast"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			r := &recorder{}
			require.NoError(t, execute(t.Context(), r, tt.line, &bytes.Buffer{}))
			assert.Equal(t, []string{tt.want}, r.calls)
		})
	}
}

func TestExecuteRejectsBadInput(t *testing.T) {
	r := &recorder{}
	var out bytes.Buffer
	assert.NoError(t, execute(t.Context(), r, "   ", &out))
	assert.Error(t, execute(t.Context(), r, "dance", &out))
	assert.Error(t, execute(t.Context(), r, "connect", &out))
	assert.Error(t, execute(t.Context(), r, "connect a b", &out))
	assert.Error(t, execute(t.Context(), r, "mute now", &out))
	assert.Empty(t, r.calls)
}

func TestStatePrintsJSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, execute(t.Context(), &recorder{}, "state", &out))
	assert.Contains(t, out.String(), `"broadcasting": true`)
	assert.Contains(t, out.String(), `"audio": "active"`)
}

func TestReadCommandsKeepsGoingAfterErrors(t *testing.T) {
	r := &recorder{fail: errors.New("nope")}
	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()

	err := readCommands(ctx, r, strings.NewReader("connect bob\nbogus\nmute\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"connect bob", "mute"}, r.calls)
	assert.Equal(t, 3, strings.Count(out.String(), "error:"))
}

func TestHelpListsCommands(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, execute(t.Context(), &recorder{}, "help", &out))
	assert.Contains(t, out.String(), "connect <peer>")
	assert.Contains(t, out.String(), "stop-broadcast")
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "video connected: true", describe(domain.VideoConnected{Connected: true}))
	assert.Equal(t, "Broadcast stopped (for 3s)", describe(domain.BroadcastNotice{Message: "Broadcast stopped", TTL: 3 * time.Second}))
}
