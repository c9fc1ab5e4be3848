package core

import (
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/media"
)

// PeerHandle is the local endpoint on the signaling network.
type PeerHandle interface {
	ID() domain.PeerID
	// Call places an outbound connection carrying stream. It returns before
	// the handshake completes.
	Call(remote domain.PeerID, stream *media.Stream, meta domain.CallMeta) (Connection, error)
	OnCall(func(Connection))
	OnError(func(error))
	Close() error
}
