package localmedia

import "github.com/looplab/fsm"

// Capture states, tracked separately for audio and video.
const (
	StateUnacquired = "unacquired"
	StateAcquiring  = "acquiring"
	StateActive     = "active"
	StateStopped    = "stopped"
)

const (
	eventAcquire = "acquire"
	eventGrant   = "grant"
	eventStop    = "stop"
)

// newKindFSM tracks one media kind:
// unacquired -> acquiring -> active -> stopped -> acquiring -> active.
// A refused acquisition goes back to whatever state preceded it.
func newKindFSM() *fsm.FSM {
	return fsm.NewFSM(
		StateUnacquired,
		fsm.Events{
			{Name: eventAcquire, Src: []string{StateUnacquired, StateStopped}, Dst: StateAcquiring},
			{Name: eventGrant, Src: []string{StateAcquiring}, Dst: StateActive},
			{Name: eventStop, Src: []string{StateActive}, Dst: StateStopped},
		}, nil,
	)
}
