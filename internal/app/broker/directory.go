// Package broker routes signaling messages between online peers.
package broker

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
)

type client struct {
	conn   core.SignalConnection
	token  string
	joined time.Time
	cancel context.CancelFunc
}

// Directory maps online peer ids to their signaling connections.
type Directory struct {
	mu      sync.RWMutex
	clients map[domain.PeerID]*client
}

func NewDirectory() *Directory {
	return &Directory{clients: make(map[domain.PeerID]*client)}
}

// Bind claims id for conn. It fails with ErrIDTaken while another
// connection holds the id.
func (d *Directory) Bind(id domain.PeerID, token string, conn core.SignalConnection, cancel context.CancelFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.clients[id]; ok {
		return domain.ErrIDTaken
	}
	d.clients[id] = &client{conn: conn, token: token, joined: time.Now(), cancel: cancel}
	log.Info().Str("module", "broker").Str("peer", string(id)).Str("token", token).Msg("bound peer")
	return nil
}

// Unbind releases id if it is still held by conn.
func (d *Directory) Unbind(id domain.PeerID, conn core.SignalConnection) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.clients[id]
	if !ok || c.conn != conn {
		return false
	}
	delete(d.clients, id)
	log.Info().Str("module", "broker").Str("peer", string(id)).Dur("online", time.Since(c.joined)).Msg("unbound peer")
	return true
}

func (d *Directory) Lookup(id domain.PeerID) (core.SignalConnection, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if c, ok := d.clients[id]; ok {
		return c.conn, true
	}
	return nil, false
}

// IDs lists the online peers in order.
func (d *Directory) IDs() []domain.PeerID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.PeerID, 0, len(d.clients))
	for id := range d.clients {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.clients)
}

// Cancel stops the pumps of id's connection.
func (d *Directory) Cancel(id domain.PeerID) bool {
	d.mu.RLock()
	c, ok := d.clients[id]
	d.mu.RUnlock()
	if !ok {
		return false
	}
	if c.cancel != nil {
		c.cancel()
	}
	log.Info().Str("module", "broker").Str("peer", string(id)).Msg("canceled peer")
	return true
}
