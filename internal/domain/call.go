package domain

// CallPurpose distinguishes normal mesh calls from auxiliary broadcast sends.
type CallPurpose string

const (
	PurposeCall      CallPurpose = "call"
	PurposeBroadcast CallPurpose = "broadcast"
)

// CallMeta travels with an offer so the callee knows how to treat it.
type CallMeta struct {
	Purpose CallPurpose `json:"purpose,omitempty"`
}

// IsBroadcast reports whether the call only carries a broadcast stream.
func (m CallMeta) IsBroadcast() bool { return m.Purpose == PurposeBroadcast }
