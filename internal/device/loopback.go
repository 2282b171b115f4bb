package device

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Loopback is an in-process duplex device. A driver goroutine invokes the
// block callback at the cadence the stream format implies, feeding it input
// from a configurable Source and discarding (or teeing) the output. It backs
// tests and headless deployments where no audio hardware exists.
type Loopback struct {
	name   string
	source Source
	sink   func(out []float64)
	paced  bool
	busy   atomic.Bool
}

// LoopbackOption configures a Loopback.
type LoopbackOption func(*Loopback)

// WithSource sets the capture source. Defaults to silence.
func WithSource(src Source) LoopbackOption {
	return func(l *Loopback) { l.source = src }
}

// WithSink installs an output tap, called with each processed block from
// the driver goroutine.
func WithSink(sink func(out []float64)) LoopbackOption {
	return func(l *Loopback) { l.sink = sink }
}

// WithUnpaced disables real-time pacing: blocks are delivered back to back
// as fast as the callback completes. Intended for tests that want to push
// many blocks through quickly.
func WithUnpaced() LoopbackOption {
	return func(l *Loopback) { l.paced = false }
}

// NewLoopback creates a loopback device.
func NewLoopback(opts ...LoopbackOption) *Loopback {
	l := &Loopback{
		name:   "loopback",
		source: SilenceSource{},
		paced:  true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loopback) Name() string { return l.name }

// Open claims the device and prepares a stream. A second Open before the
// first stream's Close fails with ErrUnavailable.
func (l *Loopback) Open(cfg StreamConfig, fn BlockFunc) (Stream, error) {
	if cfg.SampleRate <= 0 || cfg.BlockSize <= 0 {
		return nil, ErrUnavailable
	}
	if !l.busy.CompareAndSwap(false, true) {
		return nil, ErrUnavailable
	}
	return &loopbackStream{
		dev: l,
		cfg: cfg,
		fn:  fn,
	}, nil
}

type loopbackStream struct {
	dev *Loopback
	cfg StreamConfig
	fn  BlockFunc

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	closed  bool
	running bool
}

func (s *loopbackStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.running {
		return ErrUnavailable
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true
	go s.run(s.stop, s.done)
	return nil
}

func (s *loopbackStream) run(stop, done chan struct{}) {
	defer close(done)
	// The driver goroutine is the analogue of a hardware callback thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	in := make([]float64, s.cfg.BlockSize)
	out := make([]float64, s.cfg.BlockSize)
	period := time.Duration(float64(s.cfg.BlockSize) / float64(s.cfg.SampleRate) * float64(time.Second))

	var ticker *time.Ticker
	if s.dev.paced {
		ticker = time.NewTicker(period)
		defer ticker.Stop()
	}
	for {
		select {
		case <-stop:
			return
		default:
		}
		if ticker != nil {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
		s.dev.source.Fill(in)
		s.fn(in, out)
		if s.dev.sink != nil {
			s.dev.sink(out)
		}
	}
}

// Stop halts the driver goroutine and waits for any in-flight callback to
// finish before returning.
func (s *loopbackStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	close(s.stop)
	<-s.done
	s.running = false
	return nil
}

// Close releases the device. It stops the stream first if needed.
func (s *loopbackStream) Close() error {
	s.mu.Lock()
	if s.running {
		close(s.stop)
		<-s.done
		s.running = false
	}
	alreadyClosed := s.closed
	s.closed = true
	s.mu.Unlock()
	if !alreadyClosed {
		s.dev.busy.Store(false)
	}
	return nil
}
