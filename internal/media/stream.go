package media

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Stream is a mutable set of tracks. Tracks can be added and removed while
// the stream is in use; Changed lets consumers follow such edits.
type Stream struct {
	id string

	mu      sync.RWMutex
	tracks  []*Track
	changed chan struct{}
}

func NewStream(id string, tracks ...*Track) *Stream {
	if id == "" {
		id = uuid.NewString()
	}
	return &Stream{
		id:      id,
		tracks:  slices.Clone(tracks),
		changed: make(chan struct{}),
	}
}

func (s *Stream) ID() string { return s.id }

// Tracks returns a snapshot of all tracks.
func (s *Stream) Tracks() []*Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.tracks)
}

// TracksOf returns a snapshot of the tracks of one kind.
func (s *Stream) TracksOf(k Kind) []*Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		if t.Kind() == k {
			out = append(out, t)
		}
	}
	return out
}

// Live reports whether the stream holds a track of kind k that has not ended.
func (s *Stream) Live(k Kind) bool {
	for _, t := range s.TracksOf(k) {
		if !t.Ended() {
			return true
		}
	}
	return false
}

// Kinds reports which kinds have a live track.
func (s *Stream) Kinds() Kinds {
	return Kinds{Audio: s.Live(Audio), Video: s.Live(Video)}
}

func (s *Stream) AddTrack(t *Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.tracks, t) {
		return
	}
	s.tracks = append(s.tracks, t)
	s.notifyLocked()
}

// RemoveTrack detaches t without stopping it.
func (s *Stream) RemoveTrack(t *Track) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.tracks, t)
	if i < 0 {
		return false
	}
	s.tracks = slices.Delete(s.tracks, i, i+1)
	s.notifyLocked()
	return true
}

// Changed returns a channel that is closed on the next add or remove.
func (s *Stream) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

// Stop stops every track and empties the stream.
func (s *Stream) Stop() {
	s.mu.Lock()
	tracks := s.tracks
	s.tracks = nil
	s.notifyLocked()
	s.mu.Unlock()
	for _, t := range tracks {
		t.Stop()
	}
}

func (s *Stream) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
