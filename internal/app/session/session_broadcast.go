package session

import (
	"context"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/media"
)

const (
	noticeBroadcasting = "You are broadcasting to the room"
	noticeStopped      = "Broadcast stopped"
)

// StartBroadcast sends an amplified copy of the local voice to every peer
// currently in the registry. Peers that connect later are not included.
func (s *Session) StartBroadcast(ctx context.Context) error {
	return s.do(ctx, func() error {
		if !s.media.Active() {
			return nil
		}
		if !s.amp.Start(s.media.Stream(), s.reg.Peers(), s.dialAux) {
			return nil
		}
		s.metrics.broadcast(true, s.amp.Connections())
		s.emit(domain.BroadcastNotice{Active: true, Message: noticeBroadcasting, TTL: domain.BroadcastNoticeTTL})
		return nil
	})
}

func (s *Session) StopBroadcast(ctx context.Context) error {
	return s.do(ctx, func() error {
		if !s.amp.Stop() {
			return nil
		}
		s.metrics.broadcast(false, 0)
		s.emit(domain.BroadcastNotice{Active: false, Message: noticeStopped, TTL: domain.BroadcastNoticeTTL})
		return nil
	})
}

func (s *Session) dialAux(peer domain.PeerID, stream *media.Stream) (core.Connection, error) {
	conn, err := s.peer.Call(peer, stream, domain.CallMeta{Purpose: domain.PurposeBroadcast})
	if err != nil {
		return nil, err
	}
	id := conn.ID()
	conn.OnClose(func() {
		s.post(func() { s.amp.Forget(id) })
	})
	return conn, nil
}
