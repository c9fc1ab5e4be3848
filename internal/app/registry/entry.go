package registry

import (
	"context"
	"time"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/media"
	"github.com/looplab/fsm"
)

// Entry states. closed is terminal; a closed entry is no longer registered.
const (
	StateIdle      = "idle"
	StateCalling   = "calling"
	StateConnected = "connected"
	StateClosed    = "closed"
)

const (
	eventCall   = "call"
	eventStream = "stream"
	eventClose  = "close"
)

func newEntryFSM() *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventCall, Src: []string{StateIdle}, Dst: StateCalling},
			{Name: eventStream, Src: []string{StateCalling}, Dst: StateConnected},
			{Name: eventClose, Src: []string{StateIdle, StateCalling, StateConnected}, Dst: StateClosed},
		}, nil,
	)
}

// Key identifies an entry. A peer can hold one outbound and one inbound
// connection at the same time.
type Key struct {
	Peer      domain.PeerID
	Direction domain.Direction
}

func (k Key) String() string { return k.Direction.String() + ":" + string(k.Peer) }

// Entry owns one connection handle and the sink that renders its remote
// stream. Both are released together.
type Entry struct {
	Key     Key
	Conn    core.Connection
	Sink    core.Sink
	Created time.Time

	// AnsweredWithoutMedia marks inbound entries answered while the local
	// participant had no capture stream.
	AnsweredWithoutMedia bool

	state *fsm.FSM
}

func (e *Entry) State() string { return e.state.Current() }

func (e *Entry) connect(remote *media.Stream) error {
	if err := e.state.Event(context.Background(), eventStream); err != nil {
		return err
	}
	e.Sink.Attach(remote)
	return nil
}

func (e *Entry) close() {
	_ = e.state.Event(context.Background(), eventClose)
	e.Conn.Close()
	e.Sink.Close()
}

// EntryInfo is a read-only view of an entry.
type EntryInfo struct {
	Peer                 domain.PeerID    `json:"peer"`
	Direction            domain.Direction `json:"direction"`
	State                string           `json:"state"`
	ConnID               string           `json:"conn_id"`
	AnsweredWithoutMedia bool             `json:"answered_without_media,omitempty"`
}
