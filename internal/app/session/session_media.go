package session

import (
	"context"
	"errors"

	"github.com/dkeye/meshcall/internal/app/localmedia"
	"github.com/dkeye/meshcall/internal/app/registry"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/media"
)

const mediaUnavailableMsg = "No webcam or microphone found, or permission is blocked"

// AcquireMedia requests camera and microphone. With alert set, a failure is
// also announced on the event channel as MediaUnavailable.
func (s *Session) AcquireMedia(ctx context.Context, alert bool) error {
	return s.acquire(ctx, media.AudioVideo, alert)
}

// CheckPreviousPermission acquires silently if microphone access was granted
// before. Anything else is left alone.
func (s *Session) CheckPreviousPermission(ctx context.Context) error {
	st, err := s.devices.Permission(ctx, media.Audio)
	if err != nil {
		return err
	}
	if st != core.PermissionGranted {
		s.log.Debug().Str("permission", string(st)).Msg("no previous grant")
		return nil
	}
	return s.acquire(ctx, media.AudioVideo, false)
}

func (s *Session) MuteAudio(ctx context.Context) error   { return s.toggle(ctx, media.Audio, false) }
func (s *Session) UnmuteAudio(ctx context.Context) error { return s.toggle(ctx, media.Audio, true) }
func (s *Session) MuteVideo(ctx context.Context) error   { return s.toggle(ctx, media.Video, false) }
func (s *Session) UnmuteVideo(ctx context.Context) error { return s.toggle(ctx, media.Video, true) }

func (s *Session) StopVideo(ctx context.Context) error    { return s.stop(ctx, media.Video) }
func (s *Session) StopAudio(ctx context.Context) error    { return s.stop(ctx, media.Audio) }
func (s *Session) RestartVideo(ctx context.Context) error { return s.restart(ctx, media.Video) }
func (s *Session) RestartAudio(ctx context.Context) error { return s.restart(ctx, media.Audio) }

func (s *Session) toggle(ctx context.Context, k media.Kind, on bool) error {
	return s.do(ctx, func() error {
		if on {
			s.media.Unmute(k)
		} else {
			s.media.Mute(k)
		}
		return nil
	})
}

func (s *Session) stop(ctx context.Context, k media.Kind) error {
	return s.do(ctx, func() error {
		if s.media.Stop(k) {
			s.emit(domain.VideoConnected{Connected: s.media.VideoConnected()})
		}
		return nil
	})
}

// restart releases kind if it is live and acquires it afresh.
func (s *Session) restart(ctx context.Context, k media.Kind) error {
	err := s.do(ctx, func() error {
		if s.media.Stop(k) {
			s.emit(domain.VideoConnected{Connected: s.media.VideoConnected()})
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.acquire(ctx, media.Only(k), false)
}

// acquire runs the device request between two loop steps, so the loop keeps
// serving other events while the platform decides.
func (s *Session) acquire(ctx context.Context, kinds media.Kinds, alert bool) error {
	var req *localmedia.Request
	err := s.do(ctx, func() error {
		var err error
		req, err = s.media.Begin(kinds)
		return err
	})
	if err != nil || req == nil {
		return err
	}

	stream, capErr := s.devices.RequestCapture(ctx, req.Kinds)

	// The completion must land even if ctx is gone, or the kinds would stay
	// in acquiring forever.
	err = s.do(context.WithoutCancel(ctx), func() error {
		return s.finishAcquire(req, stream, capErr, alert)
	})
	if errors.Is(err, domain.ErrSessionClosed) && stream != nil {
		stream.Stop()
	}
	return err
}

func (s *Session) finishAcquire(req *localmedia.Request, stream *media.Stream, capErr error, alert bool) error {
	res, err := s.media.Complete(req, stream, capErr)
	s.metrics.acquisition(err)
	if err != nil {
		if alert {
			s.emit(domain.MediaUnavailable{Message: mediaUnavailableMsg, Err: err})
		}
		return err
	}
	s.emit(domain.VideoConnected{Connected: s.media.VideoConnected()})
	if res.Granted.Audio {
		s.amp.Refresh(s.media.Stream())
	}
	if s.presence != nil && (res.First || res.Granted.Video) {
		s.presence.VideoConnected()
	}
	return nil
}

func (s *Session) snapshot() State {
	st := State{
		Entries:        s.reg.Snapshot(),
		Audio:          s.media.State(media.Audio),
		Video:          s.media.State(media.Video),
		AudioEnabled:   s.media.Enabled(media.Audio),
		VideoEnabled:   s.media.Enabled(media.Video),
		Broadcasting:   s.amp.Active(),
		AuxConnections: s.amp.Connections(),
		Listening:      len(s.listening),
	}
	if st.Entries == nil {
		st.Entries = []registry.EntryInfo{}
	}
	return st
}
