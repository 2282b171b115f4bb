package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxmorph/voxmorph/internal/device"
	"github.com/voxmorph/voxmorph/internal/dsp"
	"github.com/voxmorph/voxmorph/internal/observe"
)

var (
	// ErrAlreadyRunning is returned by Start on an engine that is not stopped.
	ErrAlreadyRunning = errors.New("engine already running")
	// ErrNotRunning is returned by Stop on an engine that is not running.
	ErrNotRunning = errors.New("engine not running")
)

// State is the engine lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// maxConsecutiveBlockErrors is the escalation threshold: a failing block is
// degraded to silence, and once this many blocks fail back to back the
// engine gives up, tears the stream down and reports the failure. A lone
// glitch never kills a session; a wedged chain does not spin forever.
const maxConsecutiveBlockErrors = 8

// metricsFlushInterval is how often accumulated block counters are pushed
// into the OTel instruments, off the real-time path.
const metricsFlushInterval = time.Second

// Mixer adds post-chain audio (soundboard clips) into a processed block.
// Called from the audio callback; implementations must not allocate or block.
type Mixer interface {
	Mix(block []float64)
}

// Config assembles an engine.
type Config struct {
	SampleRate int
	BlockSize  int
	Device     device.Duplex
	Store      *ParamStore

	// Mixer is optional post-chain audio (soundboard). May be nil.
	Mixer Mixer
	// Tap, when set, receives each processed output block from the audio
	// callback (monitor stream). Must not allocate or block.
	Tap func(block []float64)
	// OnError is invoked once, from a non-callback goroutine, when the
	// engine escalates to the error state. May be nil.
	OnError func(error)

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// Engine owns one device stream and pushes every captured block through the
// effect chain. The control path talks to it through Start/Stop and the
// ParamStore; the audio callback publishes Telemetry snapshots back.
//
// Lifecycle: Stopped → Starting → Running → Stopping → Stopped, with
// Running → Error → Stopped on escalated callback failure.
type Engine struct {
	cfg   Config
	chain *dsp.Chain
	log   *slog.Logger

	mu     sync.Mutex
	stream device.Stream
	state  atomic.Int32

	tele atomic.Pointer[Telemetry]

	// consecErrs and blocksTotal are callback-local; the atomics are
	// shared with the metrics flusher.
	consecErrs  int
	blocksTotal uint64
	blocks      atomic.Int64
	blockErrs   atomic.Int64
	failed      atomic.Bool

	work      []float64
	flushStop chan struct{}
	flushDone chan struct{}
}

// New builds an engine for the given config. The chain and work buffer are
// allocated here so Start only has to open the device.
func New(cfg Config) (*Engine, error) {
	if cfg.Device == nil || cfg.Store == nil {
		return nil, fmt.Errorf("engine: device and param store are required")
	}
	chain, err := dsp.NewChain(cfg.SampleRate, cfg.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		cfg:   cfg,
		chain: chain,
		log:   log.With("component", "engine"),
		work:  make([]float64, cfg.BlockSize),
	}
	e.tele.Store(&Telemetry{SampleRate: cfg.SampleRate, BlockSize: cfg.BlockSize})
	return e, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Telemetry returns the most recent telemetry snapshot.
func (e *Engine) Telemetry() Telemetry {
	return *e.tele.Load()
}

// Start opens the device and begins block processing. It fails with
// ErrAlreadyRunning unless the engine is stopped, and wraps
// device.ErrUnavailable when the device cannot be claimed.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if State(e.state.Load()) != StateStopped {
		return ErrAlreadyRunning
	}
	e.state.Store(int32(StateStarting))

	e.chain.Reset()
	e.consecErrs = 0
	e.failed.Store(false)

	stream, err := e.cfg.Device.Open(device.StreamConfig{
		SampleRate: e.cfg.SampleRate,
		BlockSize:  e.cfg.BlockSize,
	}, e.processBlock)
	if err != nil {
		e.state.Store(int32(StateStopped))
		return fmt.Errorf("open device %q: %w", e.cfg.Device.Name(), err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		e.state.Store(int32(StateStopped))
		return fmt.Errorf("start stream on %q: %w", e.cfg.Device.Name(), err)
	}
	e.stream = stream
	e.state.Store(int32(StateRunning))

	e.flushStop = make(chan struct{})
	e.flushDone = make(chan struct{})
	go e.flushMetrics(e.flushStop, e.flushDone)

	if e.cfg.Metrics != nil {
		e.cfg.Metrics.EnginesRunning.Add(ctx, 1)
	}
	e.log.Info("engine started",
		"device", e.cfg.Device.Name(),
		"sample_rate", e.cfg.SampleRate,
		"block_size", e.cfg.BlockSize)
	return nil
}

// Stop halts the stream and releases the device. After Stop returns no
// further callback runs. Stopping an engine that is not running returns
// ErrNotRunning without side effects, so double stops are harmless.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if State(e.state.Load()) != StateRunning {
		return ErrNotRunning
	}
	e.state.Store(int32(StateStopping))
	e.teardownLocked()
	e.state.Store(int32(StateStopped))
	e.log.Info("engine stopped")
	return nil
}

// teardownLocked stops and closes the stream, halts the metrics flusher and
// publishes a final non-processing telemetry snapshot. Callers hold e.mu.
func (e *Engine) teardownLocked() {
	if e.stream != nil {
		e.stream.Stop()
		e.stream.Close()
		e.stream = nil
	}
	if e.flushStop != nil {
		close(e.flushStop)
		<-e.flushDone
		e.flushStop = nil
	}
	last := *e.tele.Load()
	last.Processing = false
	last.InputLevel = 0
	last.OutputLevel = 0
	e.tele.Store(&last)
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.EnginesRunning.Add(context.Background(), -1)
	}
}

// fail escalates a persistent callback failure: Running → Error → Stopped.
// It runs on its own goroutine because the stream teardown must wait for the
// in-flight callback to return.
func (e *Engine) fail(cause error) {
	e.mu.Lock()
	if State(e.state.Load()) != StateRunning {
		e.mu.Unlock()
		return
	}
	e.state.Store(int32(StateError))
	e.teardownLocked()
	e.state.Store(int32(StateStopped))
	e.mu.Unlock()

	if e.cfg.Metrics != nil {
		e.cfg.Metrics.EngineFailures.Add(context.Background(), 1)
	}
	e.log.Error("engine failed", "error", cause)
	if e.cfg.OnError != nil {
		e.cfg.OnError(cause)
	}
}

// processBlock is the per-block callback. It never lets a fault escape: any
// stage error or panic degrades the block to silence and counts toward the
// escalation threshold.
func (e *Engine) processBlock(in, out []float64) {
	start := time.Now()
	ok := false
	defer func() {
		if r := recover(); r != nil {
			e.degradeBlock(out, fmt.Errorf("stage panic: %v", r))
			return
		}
		if !ok {
			return
		}
		e.consecErrs = 0
		e.blocks.Add(1)
		e.blocksTotal++
		e.publishTelemetry(in, out, time.Since(start))
		if e.cfg.Tap != nil {
			e.cfg.Tap(out)
		}
	}()

	params := e.cfg.Store.Current()
	copy(e.work, in)
	if err := e.chain.Process(e.work, params); err != nil {
		e.degradeBlock(out, err)
		return
	}
	if e.cfg.Mixer != nil {
		e.cfg.Mixer.Mix(e.work)
	}
	copy(out, e.work)
	ok = true
}

// degradeBlock substitutes silence for a failed block and escalates once the
// consecutive-failure threshold is reached.
func (e *Engine) degradeBlock(out []float64, cause error) {
	clear(out)
	e.blockErrs.Add(1)
	e.consecErrs++
	if e.consecErrs == maxConsecutiveBlockErrors && e.failed.CompareAndSwap(false, true) {
		go e.fail(fmt.Errorf("%d consecutive block failures, last: %w", maxConsecutiveBlockErrors, cause))
	}
}

// publishTelemetry stores a fresh snapshot. One small allocation per block
// buys torn-free reads on the control path; everything else in the callback
// reuses preallocated buffers.
func (e *Engine) publishTelemetry(in, out []float64, elapsed time.Duration) {
	blockMs := float64(e.cfg.BlockSize) / float64(e.cfg.SampleRate) * 1000
	e.tele.Store(&Telemetry{
		Processing:       true,
		InputLevel:       meanAbs(in),
		OutputLevel:      meanAbs(out),
		LatencyMs:        2 * blockMs, // capture + playback buffering
		ProcessingTimeMs: float64(elapsed.Microseconds()) / 1000,
		BlocksProcessed:  e.blocksTotal,
		SampleRate:       e.cfg.SampleRate,
		BlockSize:        e.cfg.BlockSize,
	})
}

// flushMetrics drains the callback's counters into OTel instruments once per
// interval, keeping instrument overhead off the audio path.
func (e *Engine) flushMetrics(stop, done chan struct{}) {
	defer close(done)
	if e.cfg.Metrics == nil {
		<-stop
		return
	}
	ticker := time.NewTicker(metricsFlushInterval)
	defer ticker.Stop()
	ctx := context.Background()
	flush := func() {
		e.cfg.Metrics.RecordBlocks(ctx, e.blocks.Swap(0), e.blockErrs.Swap(0))
		if t := e.tele.Load(); t.Processing {
			e.cfg.Metrics.BlockDuration.Record(ctx, t.ProcessingTimeMs/1000)
		}
	}
	for {
		select {
		case <-stop:
			flush()
			return
		case <-ticker.C:
			flush()
		}
	}
}
