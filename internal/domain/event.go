package domain

import "time"

// BroadcastNoticeTTL is how long a broadcast notice stays on screen.
const BroadcastNoticeTTL = 3 * time.Second

// Event is emitted on the session notification channel.
type Event interface {
	isEvent()
}

// VideoConnected reports whether local video capture is live.
type VideoConnected struct {
	Connected bool
}

// BroadcastNotice is a transient status message for the broadcast mode.
type BroadcastNotice struct {
	Active  bool
	Message string
	TTL     time.Duration
}

// MediaUnavailable asks the application to tell the user that capture failed.
type MediaUnavailable struct {
	Message string
	Err     error
}

func (VideoConnected) isEvent()   {}
func (BroadcastNotice) isEvent()  {}
func (MediaUnavailable) isEvent() {}
