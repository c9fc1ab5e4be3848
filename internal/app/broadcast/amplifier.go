// Package broadcast builds a louder copy of the local voice and sends it to
// every connected peer over auxiliary connections.
package broadcast

import (
	"errors"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/media"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrGainTooLow = errors.New("broadcast gain must be greater than 1")

// Dialer opens an auxiliary connection carrying stream to peer.
type Dialer func(peer domain.PeerID, stream *media.Stream) (core.Connection, error)

// Amplifier owns the derived stream and the auxiliary connections while a
// broadcast is on. It never stops or mutates the capture stream it reads.
// Not safe for concurrent use; the session drives it from its event loop.
type Amplifier struct {
	gain float64
	log  zerolog.Logger

	derived *media.Stream
	// sources maps each capture track to the gain track derived from it.
	sources map[*media.Track]*media.Track
	aux     map[string]core.Connection
}

func New(gain float64, logger zerolog.Logger) (*Amplifier, error) {
	if gain <= 1.0 {
		return nil, ErrGainTooLow
	}
	return &Amplifier{
		gain:    gain,
		log:     logger,
		sources: make(map[*media.Track]*media.Track),
		aux:     make(map[string]core.Connection),
	}, nil
}

func (a *Amplifier) Active() bool { return a.derived != nil }

// Start derives the amplified stream from the live audio of capture and dials
// each of peers once. Peers that show up later are not included. It reports
// false when a broadcast is already on or capture has no live audio.
func (a *Amplifier) Start(capture *media.Stream, peers []domain.PeerID, dial Dialer) bool {
	if a.Active() || capture == nil {
		return false
	}
	var tracks []*media.Track
	for _, src := range capture.TracksOf(media.Audio) {
		if src.Ended() {
			continue
		}
		gt := NewGainTrack(src, a.gain)
		a.sources[src] = gt
		tracks = append(tracks, gt)
	}
	if len(tracks) == 0 {
		a.log.Info().Msg("no live audio to broadcast")
		return false
	}
	a.derived = media.NewStream("broadcast-"+uuid.NewString(), tracks...)

	for _, p := range peers {
		conn, err := dial(p, a.derived)
		if err != nil {
			a.log.Warn().Err(err).Str("peer", string(p)).Msg("auxiliary call failed")
			continue
		}
		a.aux[conn.ID()] = conn
	}
	a.log.Info().Int("targets", len(peers)).Int("opened", len(a.aux)).Float64("gain", a.gain).Msg("broadcast started")
	return true
}

// Stop ends every derived track and closes the auxiliary connections.
func (a *Amplifier) Stop() bool {
	if !a.Active() {
		return false
	}
	a.derived.Stop()
	a.derived = nil
	clear(a.sources)
	aux := a.aux
	a.aux = make(map[string]core.Connection)
	for _, conn := range aux {
		conn.Close()
	}
	a.log.Info().Int("closed", len(aux)).Msg("broadcast stopped")
	return true
}

// Refresh follows capture after its audio was replaced: gain tracks of
// ended sources leave the derived stream and new live audio is amplified
// into it. Auxiliary connections keep sending whatever the derived stream
// holds. It returns the number of tracks added.
func (a *Amplifier) Refresh(capture *media.Stream) int {
	if !a.Active() || capture == nil {
		return 0
	}
	for src, gt := range a.sources {
		if src.Ended() {
			a.derived.RemoveTrack(gt)
			gt.Stop()
			delete(a.sources, src)
		}
	}
	added := 0
	for _, src := range capture.TracksOf(media.Audio) {
		if _, ok := a.sources[src]; ok || src.Ended() {
			continue
		}
		gt := NewGainTrack(src, a.gain)
		a.sources[src] = gt
		a.derived.AddTrack(gt)
		added++
	}
	if added > 0 {
		a.log.Info().Int("tracks", added).Msg("broadcast follows new audio")
	}
	return added
}

// Forget drops an auxiliary connection that the remote side closed.
func (a *Amplifier) Forget(connID string) bool {
	if _, ok := a.aux[connID]; !ok {
		return false
	}
	delete(a.aux, connID)
	a.log.Debug().Str("conn", connID).Msg("auxiliary connection closed remotely")
	return true
}

// Connections returns the number of open auxiliary connections.
func (a *Amplifier) Connections() int { return len(a.aux) }

// Derived returns the amplified stream, nil when not broadcasting.
func (a *Amplifier) Derived() *media.Stream { return a.derived }
