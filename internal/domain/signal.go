package domain

// Signal message types exchanged with the broker.
const (
	SignalOpen   = "open"
	SignalOffer  = "offer"
	SignalAnswer = "answer"
	SignalLeave  = "leave"
	SignalError  = "error"
	SignalPing   = "ping"
	SignalPong   = "pong"
)

// Error kinds reported by the broker in SignalMessage.Error.
const (
	SignalErrUnavailableID   = "unavailable-id"
	SignalErrInvalidID       = "invalid-id"
	SignalErrPeerUnavailable = "peer-unavailable"
	SignalErrRateLimited     = "rate-limited"
	SignalErrBadPayload      = "bad-payload"
)

// SignalMessage is the single JSON envelope of the signaling protocol.
// Src is always stamped by the broker; clients only fill Dst.
type SignalMessage struct {
	Type    string      `json:"type"`
	Src     PeerID      `json:"src,omitempty"`
	Dst     PeerID      `json:"dst,omitempty"`
	Call    string      `json:"call,omitempty"`
	Purpose CallPurpose `json:"purpose,omitempty"`
	SDP     string      `json:"sdp,omitempty"`
	Error   string      `json:"error,omitempty"`
}
