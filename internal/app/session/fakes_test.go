package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/media"
)

type fakeConn struct {
	id   string
	peer domain.PeerID
	meta domain.CallMeta

	// answerErr makes Answer fail.
	answerErr error

	mu       sync.Mutex
	local    *media.Stream
	answered bool
	closed   bool
	onStream func(*media.Stream)
	onClose  func()
	remote   *media.Stream
}

func (c *fakeConn) ID() string            { return c.id }
func (c *fakeConn) Peer() domain.PeerID   { return c.peer }
func (c *fakeConn) Meta() domain.CallMeta { return c.meta }

func (c *fakeConn) Answer(s *media.Stream) error {
	if c.answerErr != nil {
		return c.answerErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answered = true
	c.local = s
	return nil
}

func (c *fakeConn) OnStream(fn func(*media.Stream)) {
	c.mu.Lock()
	c.onStream = fn
	remote := c.remote
	c.mu.Unlock()
	if remote != nil {
		fn(remote)
	}
}

func (c *fakeConn) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	fn := c.onClose
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// deliver simulates the remote stream arriving.
func (c *fakeConn) deliver(remote *media.Stream) {
	c.mu.Lock()
	c.remote = remote
	fn := c.onStream
	c.mu.Unlock()
	if fn != nil {
		fn(remote)
	}
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) localStream() (*media.Stream, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local, c.answered
}

type fakePeer struct {
	id domain.PeerID

	// answerErr is handed to every inbound call rung from now on.
	answerErr error

	mu      sync.Mutex
	n       int
	calls   []*fakeConn
	onCall  func(core.Connection)
	onError func(error)
	closed  bool
}

func (p *fakePeer) ID() domain.PeerID { return p.id }

func (p *fakePeer) Call(remote domain.PeerID, s *media.Stream, meta domain.CallMeta) (core.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	c := &fakeConn{id: fmt.Sprintf("out-%d", p.n), peer: remote, meta: meta, local: s}
	p.calls = append(p.calls, c)
	return c, nil
}

func (p *fakePeer) OnCall(fn func(core.Connection)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCall = fn
}

func (p *fakePeer) OnError(fn func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = fn
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// ring simulates an inbound call from remote.
func (p *fakePeer) ring(remote domain.PeerID, purpose domain.CallPurpose) *fakeConn {
	p.mu.Lock()
	p.n++
	c := &fakeConn{id: fmt.Sprintf("in-%d", p.n), peer: remote, meta: domain.CallMeta{Purpose: purpose}, answerErr: p.answerErr}
	fn := p.onCall
	p.mu.Unlock()
	fn(c)
	return c
}

func (p *fakePeer) placed(purpose domain.CallPurpose) []*fakeConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*fakeConn
	for _, c := range p.calls {
		if c.meta.Purpose == purpose {
			out = append(out, c)
		}
	}
	return out
}

type fakeSink struct {
	label string

	mu       sync.Mutex
	attached *media.Stream
	closed   bool
}

func (s *fakeSink) Attach(st *media.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = st
}

func (s *fakeSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSink) state() (*media.Stream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached, s.closed
}

type fakeSinks struct {
	mu    sync.Mutex
	sinks []*fakeSink
}

func (f *fakeSinks) NewSink(label string) core.Sink {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSink{label: label}
	f.sinks = append(f.sinks, s)
	return s
}

func (f *fakeSinks) labelled(label string) []*fakeSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeSink
	for _, s := range f.sinks {
		if s.label == label {
			out = append(out, s)
		}
	}
	return out
}

func idle() media.Source {
	return media.SourceFunc(func(ctx context.Context) (media.Frame, error) {
		<-ctx.Done()
		return media.Frame{}, ctx.Err()
	})
}

func capture(kinds media.Kinds) *media.Stream {
	s := media.NewStream("")
	for _, k := range kinds.List() {
		s.AddTrack(media.NewTrack(k, "", idle()))
	}
	return s
}
