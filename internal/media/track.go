package media

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Source produces frames for a Track until it returns an error or ctx ends.
type Source interface {
	ReadFrame(ctx context.Context) (Frame, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Frame, error)

func (f SourceFunc) ReadFrame(ctx context.Context) (Frame, error) { return f(ctx) }

// DefaultOutletBuffer is the per-subscriber queue length in frames.
const DefaultOutletBuffer = 16

// outlet is a single subscriber of a Track. A full outlet loses frames.
type outlet struct {
	ch      chan Frame
	dropped atomic.Uint64
}

// Track fans the frames of one Source out to any number of subscribers.
// Disabling a track keeps it flowing: audio turns into silence and video
// frames are withheld. Stopping ends the track and releases its source.
type Track struct {
	id   string
	kind Kind
	src  Source

	enabled atomic.Bool

	mu      sync.RWMutex
	outlets map[uint64]*outlet
	nextID  uint64
	ended   bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewTrack starts pumping src. An empty id gets a random one.
func NewTrack(kind Kind, id string, src Source) *Track {
	if id == "" {
		id = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Track{
		id:      id,
		kind:    kind,
		src:     src,
		outlets: make(map[uint64]*outlet),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	t.enabled.Store(true)
	go t.loop(ctx)
	return t
}

func (t *Track) ID() string    { return t.id }
func (t *Track) Kind() Kind    { return t.kind }
func (t *Track) Enabled() bool { return t.enabled.Load() }

// SetEnabled mutes or unmutes the track without touching the source.
func (t *Track) SetEnabled(on bool) { t.enabled.Store(on) }

// Done is closed once the track has ended.
func (t *Track) Done() <-chan struct{} { return t.done }

func (t *Track) Ended() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ended
}

// Subscribe returns a frame channel and a function that releases it. The
// channel is closed when the track ends or the subscription is released.
func (t *Track) Subscribe(buffer int) (<-chan Frame, func()) {
	if buffer <= 0 {
		buffer = DefaultOutletBuffer
	}
	o := &outlet{ch: make(chan Frame, buffer)}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		close(o.ch)
		return o.ch, func() {}
	}
	id := t.nextID
	t.nextID++
	t.outlets[id] = o

	var once sync.Once
	return o.ch, func() {
		once.Do(func() { t.unsubscribe(id) })
	}
}

func (t *Track) unsubscribe(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if o, ok := t.outlets[id]; ok {
		delete(t.outlets, id)
		close(o.ch)
	}
}

// Stop ends the track. Safe to call more than once.
func (t *Track) Stop() {
	t.cancel()
	t.finish()
}

// loop reads frames from the source and forwards them to all outlets.
func (t *Track) loop(ctx context.Context) {
	defer t.finish()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		f, err := t.src.ReadFrame(ctx)
		if err != nil {
			return
		}
		t.forward(f)
	}
}

func (t *Track) forward(f Frame) {
	if !t.enabled.Load() {
		if t.kind == Video {
			return
		}
		f = f.Silence()
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, o := range t.outlets {
		select {
		case o.ch <- f:
		default:
			o.dropped.Add(1)
		}
	}
}

func (t *Track) finish() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	for id, o := range t.outlets {
		delete(t.outlets, id)
		close(o.ch)
	}
	t.mu.Unlock()

	close(t.done)
	if c, ok := t.src.(io.Closer); ok {
		_ = c.Close()
	}
}
