// Package localmedia owns the local capture stream: acquisition, mute, stop
// and restart per media kind, plus the local preview sink.
package localmedia

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/media"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
)

const (
	localStreamID = "local"
	previewLabel  = "local-preview"
)

// Request is an acquisition in flight, returned by Begin and consumed by
// Complete.
type Request struct {
	Kinds media.Kinds
	prev  map[media.Kind]string
}

// Result describes a successful acquisition.
type Result struct {
	Granted media.Kinds
	// First is set on the very first successful acquisition of the session.
	First bool
}

// Controller is not safe for concurrent use; the session calls it from its
// event loop only. The device request itself happens between Begin and
// Complete, outside the loop.
type Controller struct {
	sinks core.SinkFactory
	log   zerolog.Logger

	stream  *media.Stream
	preview core.Sink
	states  map[media.Kind]*fsm.FSM
	muted   map[media.Kind]bool
	granted bool
}

func New(sinks core.SinkFactory, logger zerolog.Logger) *Controller {
	return &Controller{
		sinks: sinks,
		log:   logger,
		states: map[media.Kind]*fsm.FSM{
			media.Audio: newKindFSM(),
			media.Video: newKindFSM(),
		},
		muted: make(map[media.Kind]bool),
	}
}

// Begin moves the requested kinds that are not already live to acquiring.
// It returns a nil request when there is nothing to acquire.
func (c *Controller) Begin(want media.Kinds) (*Request, error) {
	for _, k := range []media.Kind{media.Audio, media.Video} {
		if c.states[k].Is(StateAcquiring) {
			return nil, domain.ErrAcquireInProgress
		}
	}

	req := &Request{prev: make(map[media.Kind]string)}
	for _, k := range want.List() {
		st := c.states[k]
		if st.Is(StateActive) {
			continue
		}
		prev := st.Current()
		if err := st.Event(context.Background(), eventAcquire); err != nil {
			return nil, fmt.Errorf("begin %s: %w", k, err)
		}
		req.prev[k] = prev
		switch k {
		case media.Audio:
			req.Kinds.Audio = true
		case media.Video:
			req.Kinds.Video = true
		}
	}
	if req.Kinds.Empty() {
		return nil, nil
	}
	c.log.Debug().Str("kinds", req.Kinds.String()).Msg("acquiring")
	return req, nil
}

// Complete applies the outcome of the device request started by Begin.
// Granted tracks are merged into the existing capture stream; tracks of
// kinds that were not requested are stopped right away. On failure every
// requested kind returns to the state it had before Begin.
func (c *Controller) Complete(req *Request, granted *media.Stream, reqErr error) (Result, error) {
	if req == nil {
		return Result{}, nil
	}
	if reqErr != nil {
		if granted != nil {
			granted.Stop()
		}
		c.rollback(req, req.Kinds)
		if !errors.Is(reqErr, domain.ErrDeviceAcquisition) {
			reqErr = fmt.Errorf("%w: %w", domain.ErrDeviceAcquisition, reqErr)
		}
		c.log.Warn().Err(reqErr).Str("kinds", req.Kinds.String()).Msg("acquisition failed")
		return Result{}, reqErr
	}

	if c.stream == nil {
		c.stream = media.NewStream(localStreamID)
	}

	var got media.Kinds
	if granted != nil {
		for _, t := range granted.Tracks() {
			k := t.Kind()
			if !req.Kinds.Has(k) || t.Ended() {
				t.Stop()
				continue
			}
			t.SetEnabled(true)
			c.stream.AddTrack(t)
			switch k {
			case media.Audio:
				got.Audio = true
			case media.Video:
				got.Video = true
			}
		}
	}

	var missing media.Kinds
	for _, k := range req.Kinds.List() {
		if !got.Has(k) {
			switch k {
			case media.Audio:
				missing.Audio = true
			case media.Video:
				missing.Video = true
			}
			continue
		}
		c.muted[k] = false
		if err := c.states[k].Event(context.Background(), eventGrant); err != nil {
			c.log.Error().Err(err).Str("kind", k.String()).Msg("grant transition")
		}
	}
	c.rollback(req, missing)

	if got.Empty() {
		err := fmt.Errorf("%w: %w", domain.ErrDeviceAcquisition, domain.ErrNoDevice)
		c.log.Warn().Err(err).Str("kinds", req.Kinds.String()).Msg("no tracks granted")
		return Result{}, err
	}

	if c.preview == nil {
		c.preview = c.sinks.NewSink(previewLabel)
		c.preview.Attach(c.stream)
	}

	res := Result{Granted: got, First: !c.granted}
	c.granted = true
	c.log.Info().Str("granted", got.String()).Bool("first", res.First).Msg("capture active")
	return res, nil
}

func (c *Controller) rollback(req *Request, kinds media.Kinds) {
	for _, k := range kinds.List() {
		if prev, ok := req.prev[k]; ok {
			c.states[k].SetState(prev)
		}
	}
}

// Mute disables the tracks of kind without releasing the device.
func (c *Controller) Mute(k media.Kind) bool { return c.setEnabled(k, false) }

// Unmute re-enables the tracks of kind.
func (c *Controller) Unmute(k media.Kind) bool { return c.setEnabled(k, true) }

func (c *Controller) setEnabled(k media.Kind, on bool) bool {
	if !c.states[k].Is(StateActive) || c.stream == nil {
		return false
	}
	for _, t := range c.stream.TracksOf(k) {
		t.SetEnabled(on)
	}
	c.muted[k] = !on
	c.log.Info().Str("kind", k.String()).Bool("enabled", on).Msg("tracks toggled")
	return true
}

// Stop stops and removes the tracks of kind, freeing the device. Stopping
// video also discards the local preview.
func (c *Controller) Stop(k media.Kind) bool {
	if !c.states[k].Is(StateActive) {
		return false
	}
	if c.stream != nil {
		for _, t := range c.stream.TracksOf(k) {
			t.Stop()
			c.stream.RemoveTrack(t)
		}
	}
	if err := c.states[k].Event(context.Background(), eventStop); err != nil {
		c.log.Error().Err(err).Str("kind", k.String()).Msg("stop transition")
	}
	c.muted[k] = false
	if k == media.Video && c.preview != nil {
		c.preview.Close()
		c.preview = nil
	}
	c.log.Info().Str("kind", k.String()).Msg("capture stopped")
	return true
}

// Close releases every track and the preview.
func (c *Controller) Close() {
	for _, k := range []media.Kind{media.Audio, media.Video} {
		c.Stop(k)
	}
	if c.preview != nil {
		c.preview.Close()
		c.preview = nil
	}
}

// State returns the capture state of kind.
func (c *Controller) State(k media.Kind) string { return c.states[k].Current() }

// Active reports whether any kind is being captured.
func (c *Controller) Active() bool {
	return c.states[media.Audio].Is(StateActive) || c.states[media.Video].Is(StateActive)
}

// Enabled reports whether kind is captured and not muted.
func (c *Controller) Enabled(k media.Kind) bool {
	return c.states[k].Is(StateActive) && !c.muted[k]
}

// VideoConnected is the flag reported to the application after transitions.
func (c *Controller) VideoConnected() bool { return c.states[media.Video].Is(StateActive) }

// Stream returns the capture stream, nil before the first grant. Callers
// must not stop or replace its tracks.
func (c *Controller) Stream() *media.Stream { return c.stream }

// Preview returns the current local preview sink, if any.
func (c *Controller) Preview() core.Sink { return c.preview }
