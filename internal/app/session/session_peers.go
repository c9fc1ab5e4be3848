package session

import (
	"context"
	"fmt"

	"github.com/dkeye/meshcall/internal/app/registry"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/media"
)

const (
	resultPlaced    = "placed"
	resultAnswered  = "answered"
	resultDuplicate = "duplicate"
	resultFailed    = "failed"
	resultSkipped   = "skipped"
)

// Connect calls peer with the local capture stream. It does nothing while
// capture is not active or when an outbound connection to peer exists.
func (s *Session) Connect(ctx context.Context, peer string) error {
	id := domain.Sanitize(peer)
	return s.do(ctx, func() error { return s.connect(id) })
}

// Disconnect closes the outbound connection to peer, if any.
func (s *Session) Disconnect(ctx context.Context, peer string) error {
	key := registry.Key{Peer: domain.Sanitize(peer), Direction: domain.Outbound}
	return s.do(ctx, func() error { return s.disconnect(key) })
}

// DisconnectInbound closes the connection peer placed to us, if any.
func (s *Session) DisconnectInbound(ctx context.Context, peer string) error {
	key := registry.Key{Peer: domain.Sanitize(peer), Direction: domain.Inbound}
	return s.do(ctx, func() error { return s.disconnect(key) })
}

func (s *Session) connect(id domain.PeerID) error {
	if id == "" || id == s.peer.ID() {
		return nil
	}
	if !s.media.Active() {
		s.log.Debug().Str("peer", string(id)).Msg("connect skipped, capture not active")
		s.metrics.attempt(domain.Outbound, resultSkipped)
		return nil
	}
	key := registry.Key{Peer: id, Direction: domain.Outbound}
	if s.reg.Has(key) {
		s.metrics.attempt(domain.Outbound, resultDuplicate)
		return nil
	}

	conn, err := s.peer.Call(id, s.media.Stream(), domain.CallMeta{Purpose: domain.PurposeCall})
	if err != nil {
		s.metrics.attempt(domain.Outbound, resultFailed)
		s.log.Warn().Err(err).Str("peer", string(id)).Msg("call failed")
		return fmt.Errorf("call %s: %w", id, err)
	}
	s.reg.Add(key, conn, s.sinks.NewSink(key.String()))
	s.watch(key, conn)
	s.metrics.attempt(domain.Outbound, resultPlaced)
	s.syncGauges()
	return nil
}

func (s *Session) disconnect(key registry.Key) error {
	if s.reg.Remove(key) {
		s.syncGauges()
	}
	return nil
}

// acceptInbound runs on the loop for every call the peer handle delivers.
func (s *Session) acceptInbound(c core.Connection) {
	if c.Meta().IsBroadcast() {
		s.acceptBroadcast(c)
		return
	}
	key := registry.Key{Peer: domain.Sanitize(string(c.Peer())), Direction: domain.Inbound}
	if s.reg.Has(key) {
		s.log.Debug().Str("peer", string(key.Peer)).Str("conn", c.ID()).Msg("duplicate inbound call ignored")
		s.metrics.attempt(domain.Inbound, resultDuplicate)
		return
	}

	var local *media.Stream
	if s.media.Active() {
		local = s.media.Stream()
	}
	e, _ := s.reg.Add(key, c, s.sinks.NewSink(key.String()))
	e.AnsweredWithoutMedia = local == nil
	s.watch(key, c)
	if err := c.Answer(local); err != nil {
		s.log.Warn().Err(err).Str("peer", string(key.Peer)).Msg("answer failed")
		s.metrics.attempt(domain.Inbound, resultFailed)
		s.reg.RemoveConn(key, c)
		s.syncGauges()
		return
	}
	if local == nil {
		s.log.Info().Str("peer", string(key.Peer)).Msg("answered without local media")
	}
	s.metrics.attempt(domain.Inbound, resultAnswered)
	s.syncGauges()
}

// acceptBroadcast answers an auxiliary call receive-only. Those calls live
// outside the registry so they never collide with the peer's normal call.
func (s *Session) acceptBroadcast(c core.Connection) {
	id := c.ID()
	l := &listener{conn: c, sink: s.sinks.NewSink("broadcast:" + string(c.Peer()))}
	s.listening[id] = l
	c.OnStream(func(remote *media.Stream) {
		s.post(func() {
			if cur, ok := s.listening[id]; ok && cur == l {
				l.sink.Attach(remote)
			}
		})
	})
	c.OnClose(func() {
		s.post(func() { s.dropListener(id, l) })
	})
	if err := c.Answer(nil); err != nil {
		s.log.Warn().Err(err).Str("peer", string(c.Peer())).Msg("broadcast answer failed")
		s.dropListener(id, l)
		return
	}
	s.log.Info().Str("peer", string(c.Peer())).Str("conn", id).Msg("receiving broadcast")
}

func (s *Session) dropListener(id string, l *listener) {
	if cur, ok := s.listening[id]; !ok || cur != l {
		return
	}
	delete(s.listening, id)
	l.conn.Close()
	l.sink.Close()
}

// watch routes the connection callbacks back onto the loop. Each completion
// checks that the entry still belongs to conn before touching it.
func (s *Session) watch(key registry.Key, conn core.Connection) {
	conn.OnStream(func(remote *media.Stream) {
		s.post(func() { s.reg.Connect(key, conn, remote) })
	})
	conn.OnClose(func() {
		s.post(func() {
			if s.reg.RemoveConn(key, conn) {
				s.log.Info().Str("peer", string(key.Peer)).Str("direction", key.Direction.String()).Msg("closed by remote")
				s.syncGauges()
			}
		})
	})
}
