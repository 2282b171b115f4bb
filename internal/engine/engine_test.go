package engine

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxmorph/voxmorph/internal/device"
	"github.com/voxmorph/voxmorph/internal/dsp"
)

type toneSource struct {
	amp   float64
	phase float64
}

func (s *toneSource) Fill(block []float64) {
	for i := range block {
		block[i] = s.amp * math.Sin(s.phase)
		s.phase += 2 * math.Pi * 440 / 44100
	}
}

func newTestEngine(t *testing.T, opts ...device.LoopbackOption) (*Engine, *ParamStore) {
	t.Helper()
	opts = append([]device.LoopbackOption{device.WithUnpaced(), device.WithSource(&toneSource{amp: 0.5})}, opts...)
	store := NewParamStore()
	eng, err := New(Config{
		SampleRate: 44100,
		BlockSize:  256,
		Device:     device.NewLoopback(opts...),
		Store:      store,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng, store
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEngine_StartStopLifecycle(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)
	ctx := context.Background()

	if got := eng.State(); got != StateStopped {
		t.Fatalf("initial state = %v, want stopped", got)
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := eng.State(); got != StateRunning {
		t.Fatalf("state after Start = %v, want running", got)
	}
	if err := eng.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start error = %v, want ErrAlreadyRunning", err)
	}

	waitFor(t, "blocks", func() bool { return eng.Telemetry().BlocksProcessed > 0 })

	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := eng.State(); got != StateStopped {
		t.Fatalf("state after Stop = %v, want stopped", got)
	}
	if err := eng.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Stop error = %v, want ErrNotRunning", err)
	}
	if tele := eng.Telemetry(); tele.Processing {
		t.Error("telemetry still reports processing after Stop")
	}
}

func TestEngine_RestartAfterStop(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)
	ctx := context.Background()
	for range 3 {
		if err := eng.Start(ctx); err != nil {
			t.Fatalf("Start: %v", err)
		}
		waitFor(t, "blocks", func() bool { return eng.Telemetry().BlocksProcessed > 0 })
		if err := eng.Stop(); err != nil {
			t.Fatalf("Stop: %v", err)
		}
	}
}

func TestEngine_DeviceUnavailable(t *testing.T) {
	t.Parallel()

	dev := device.NewLoopback()
	store := NewParamStore()
	newEng := func() *Engine {
		eng, err := New(Config{SampleRate: 44100, BlockSize: 256, Device: dev, Store: store})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return eng
	}
	first := newEng()
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop()

	second := newEng()
	err := second.Start(context.Background())
	if !errors.Is(err, device.ErrUnavailable) {
		t.Fatalf("Start on busy device error = %v, want ErrUnavailable", err)
	}
	if got := second.State(); got != StateStopped {
		t.Errorf("state after failed Start = %v, want stopped", got)
	}
}

func TestEngine_TelemetryReflectsSignal(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop()

	waitFor(t, "telemetry", func() bool { return eng.Telemetry().BlocksProcessed > 20 })
	tele := eng.Telemetry()
	if !tele.Processing {
		t.Error("telemetry not marked processing")
	}
	// Mean absolute amplitude of a 0.5 sine is 0.5*2/pi.
	want := 0.5 * 2 / math.Pi
	if math.Abs(tele.InputLevel-want) > 0.05 {
		t.Errorf("input level = %g, want about %g", tele.InputLevel, want)
	}
	if tele.OutputLevel == 0 {
		t.Error("output level is zero with a live tone")
	}
	if tele.LatencyMs <= 0 || tele.ProcessingTimeMs < 0 {
		t.Errorf("implausible timing: latency %g ms, processing %g ms", tele.LatencyMs, tele.ProcessingTimeMs)
	}
}

func TestEngine_ParamSwitchIsAtomic(t *testing.T) {
	t.Parallel()

	eng, store := newTestEngine(t)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop()

	// Hammer the store with correlated field pairs while the audio loop
	// reads snapshots. A reader must never observe DelayTime and DelayMix
	// from different writes; the chain itself asserts nothing, so verify
	// through direct concurrent reads the way the callback performs them.
	done := make(chan struct{})
	var torn atomic.Bool
	go func() {
		defer close(done)
		for i := range 5000 {
			v := 0.01 + float64(i%100)/100
			p := dsp.DefaultParams()
			p.DelayEnabled = true
			p.DelayTime = v
			p.DelayMix = v / 4
			store.Set(p)
		}
	}()
	for {
		select {
		case <-done:
			if torn.Load() {
				t.Fatal("observed torn parameter snapshot")
			}
			return
		default:
		}
		p := store.Current()
		if math.Abs(p.DelayMix-p.DelayTime/4) > 1e-12 && p.DelayTime != 0.3 {
			torn.Store(true)
		}
	}
}

func TestEngine_SoundboardMixerRuns(t *testing.T) {
	t.Parallel()

	var mixed atomic.Int64
	store := NewParamStore()
	eng, err := New(Config{
		SampleRate: 44100,
		BlockSize:  256,
		Device:     device.NewLoopback(device.WithUnpaced()),
		Store:      store,
		Mixer:      mixerFunc(func(block []float64) { mixed.Add(1) }),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop()
	waitFor(t, "mixer", func() bool { return mixed.Load() > 0 })
}

type mixerFunc func(block []float64)

func (f mixerFunc) Mix(block []float64) { f(block) }
