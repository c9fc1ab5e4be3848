package broker

import "github.com/dkeye/meshcall/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickPeer
)

// Policy decides what happens to a peer whose send queue is full.
type Policy interface {
	OnBackPressure(peer domain.PeerID, msgType string) BackpressureAction
}

// SimplePolicy drops pongs and kicks the peer for anything else, since a
// lost offer or answer leaves the call half negotiated.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(_ domain.PeerID, msgType string) BackpressureAction {
	if msgType == domain.SignalPong {
		return DropFrame
	}
	return KickPeer
}
