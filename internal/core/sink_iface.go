package core

import "github.com/dkeye/meshcall/internal/media"

//go:generate mockgen -source=sink_iface.go -destination=mocks/mock_sink_iface.go -package=mocks

// Sink renders or consumes a stream. It is owned by exactly one holder.
type Sink interface {
	Attach(*media.Stream)
	Close()
}

type SinkFactory interface {
	NewSink(label string) Sink
}

// Presence tells the surrounding application that local video came up, so it
// can advertise the participant as reachable for video.
type Presence interface {
	VideoConnected()
}
