package core

import (
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/media"
)

//go:generate mockgen -source=media_iface.go -destination=mocks/mock_media_iface.go -package=mocks

// Connection is one negotiated media connection to a remote peer, either
// placed by Call or delivered to an OnCall handler.
type Connection interface {
	// ID is unique per connection, also between the same two peers.
	ID() string
	Peer() domain.PeerID
	Meta() domain.CallMeta
	// Answer accepts an inbound connection. stream may be nil, in which case
	// the remote side receives no local media.
	Answer(stream *media.Stream) error
	// OnStream fires once, when the first remote track arrives. A handler set
	// after that moment is invoked immediately.
	OnStream(func(*media.Stream))
	// OnClose fires once, on local or remote closure.
	OnClose(func())
	// Close tears the connection down. Idempotent.
	Close()
}
