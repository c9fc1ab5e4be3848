// Package registry keeps the active peer connections of a session, keyed by
// peer and direction.
package registry

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/media"
	"github.com/rs/zerolog"
)

type Registry struct {
	mu      sync.RWMutex
	entries map[Key]*Entry
	log     zerolog.Logger
}

func New(logger zerolog.Logger) *Registry {
	return &Registry{
		entries: make(map[Key]*Entry),
		log:     logger,
	}
}

// Add registers a new entry in calling state. If the key is taken, the
// existing entry is returned with ok=false and nothing changes.
func (r *Registry) Add(key Key, conn core.Connection, sink core.Sink) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e, false
	}
	e := &Entry{
		Key:     key,
		Conn:    conn,
		Sink:    sink,
		Created: time.Now(),
		state:   newEntryFSM(),
	}
	_ = e.state.Event(context.Background(), eventCall)
	r.entries[key] = e
	r.log.Info().Str("peer", string(key.Peer)).Str("direction", key.Direction.String()).Str("conn", conn.ID()).Msg("entry added")
	return e, true
}

// Has reports whether key is registered.
func (r *Registry) Has(key Key) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

func (r *Registry) Get(key Key) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	return e, ok
}

// Connect moves the entry to connected and attaches remote to its sink, but
// only if the entry still exists, still belongs to conn and is still calling.
// A completion that lost the race against a disconnect is dropped.
func (r *Registry) Connect(key Key, conn core.Connection, remote *media.Stream) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok || e.Conn != conn {
		r.log.Debug().Str("peer", string(key.Peer)).Str("direction", key.Direction.String()).Str("conn", conn.ID()).Msg("stale stream dropped")
		return false
	}
	if err := e.connect(remote); err != nil {
		r.log.Debug().Err(err).Str("peer", string(key.Peer)).Str("state", e.State()).Msg("stream ignored")
		return false
	}
	r.log.Info().Str("peer", string(key.Peer)).Str("direction", key.Direction.String()).Msg("entry connected")
	return true
}

// Remove closes the connection, destroys the sink and forgets the entry.
// Removing an absent key is a no-op.
func (r *Registry) Remove(key Key) bool {
	r.mu.Lock()
	e, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.close()
	r.log.Info().Str("peer", string(key.Peer)).Str("direction", key.Direction.String()).Msg("entry removed")
	return true
}

// RemoveConn is Remove restricted to the entry that owns conn. It keeps a
// late close event of an old connection from tearing down its successor.
func (r *Registry) RemoveConn(key Key, conn core.Connection) bool {
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok || e.Conn != conn {
		return false
	}
	return r.Remove(key)
}

// Peers returns every registered peer once, whatever its directions.
func (r *Registry) Peers() []domain.PeerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PeerID, 0, len(r.entries))
	for k := range r.entries {
		if !slices.Contains(out, k.Peer) {
			out = append(out, k.Peer)
		}
	}
	slices.Sort(out)
	return out
}

// Count returns the number of entries in direction d.
func (r *Registry) Count(d domain.Direction) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for k := range r.entries {
		if k.Direction == d {
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) Snapshot() []EntryInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]EntryInfo, 0, len(r.entries))
	for k, e := range r.entries {
		out = append(out, EntryInfo{
			Peer:                 k.Peer,
			Direction:            k.Direction,
			State:                e.State(),
			ConnID:               e.Conn.ID(),
			AnsweredWithoutMedia: e.AnsweredWithoutMedia,
		})
	}
	slices.SortFunc(out, func(a, b EntryInfo) int {
		if a.Peer != b.Peer {
			if a.Peer < b.Peer {
				return -1
			}
			return 1
		}
		return int(a.Direction) - int(b.Direction)
	})
	return out
}

// Clear removes every entry. Used on session teardown.
func (r *Registry) Clear() {
	r.mu.RLock()
	keys := make([]Key, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	for _, k := range keys {
		r.Remove(k)
	}
}
