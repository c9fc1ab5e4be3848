// Package sink renders remote streams by draining them and counting what
// arrives.
package sink

import (
	"sync"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/media"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const subscribeBuffer = 32

type Metrics struct {
	frames *prometheus.CounterVec
	bytes  *prometheus.CounterVec
	active prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		frames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshcall", Subsystem: "sink", Name: "frames_total",
			Help: "Frames rendered, by media kind.",
		}, []string{"kind"}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshcall", Subsystem: "sink", Name: "bytes_total",
			Help: "Payload bytes rendered, by media kind.",
		}, []string{"kind"}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "meshcall", Subsystem: "sink", Name: "active",
			Help: "Sinks currently attached to a stream.",
		}),
	}
}

// Renderer is the SinkFactory and Presence of a headless participant.
type Renderer struct {
	metrics *Metrics
	log     zerolog.Logger
}

func NewRenderer(m *Metrics) *Renderer {
	return &Renderer{metrics: m, log: log.With().Str("module", "sink").Logger()}
}

func (r *Renderer) NewSink(label string) core.Sink {
	return &Sink{
		label:   label,
		metrics: r.metrics,
		log:     r.log.With().Str("sink", label).Logger(),
		seen:    make(map[*media.Track]struct{}),
		quit:    make(chan struct{}),
	}
}

func (r *Renderer) VideoConnected() {
	r.log.Info().Msg("local video connected, advertising presence")
}

// Sink consumes every live track of the attached stream, including tracks
// added later.
type Sink struct {
	label   string
	metrics *Metrics
	log     zerolog.Logger

	mu       sync.Mutex
	attached bool
	closed   bool
	seen     map[*media.Track]struct{}
	frames   map[media.Kind]uint64
	quit     chan struct{}
	wg       sync.WaitGroup
}

// Attach starts rendering s. Only the first stream is taken.
func (s *Sink) Attach(stream *media.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.attached || stream == nil {
		return
	}
	s.attached = true
	s.frames = make(map[media.Kind]uint64)
	if s.metrics != nil {
		s.metrics.active.Inc()
	}
	s.log.Info().Str("stream", stream.ID()).Msg("attached")
	s.wg.Add(1)
	go s.follow(stream)
}

func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	attached := s.attached
	close(s.quit)
	s.mu.Unlock()

	s.wg.Wait()
	if attached && s.metrics != nil {
		s.metrics.active.Dec()
	}
	s.log.Debug().Interface("frames", s.Frames()).Msg("closed")
}

// Frames returns how many frames of each kind were rendered.
func (s *Sink) Frames() map[media.Kind]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[media.Kind]uint64, len(s.frames))
	for k, n := range s.frames {
		out[k] = n
	}
	return out
}

func (s *Sink) follow(stream *media.Stream) {
	defer s.wg.Done()
	for {
		changed := stream.Changed()
		for _, t := range stream.Tracks() {
			s.mu.Lock()
			_, ok := s.seen[t]
			s.seen[t] = struct{}{}
			s.mu.Unlock()
			if !ok {
				s.wg.Add(1)
				go s.drain(t)
			}
		}
		select {
		case <-changed:
		case <-s.quit:
			return
		}
	}
}

func (s *Sink) drain(t *media.Track) {
	defer s.wg.Done()
	frames, release := t.Subscribe(subscribeBuffer)
	defer release()
	kind := t.Kind().String()
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return
			}
			s.mu.Lock()
			s.frames[t.Kind()]++
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.frames.WithLabelValues(kind).Inc()
				s.metrics.bytes.WithLabelValues(kind).Add(float64(len(f.Data)))
			}
		case <-s.quit:
			return
		}
	}
}
