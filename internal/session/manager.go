package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/voxmorph/voxmorph/internal/catalog"
	"github.com/voxmorph/voxmorph/internal/device"
	"github.com/voxmorph/voxmorph/internal/engine"
	"github.com/voxmorph/voxmorph/internal/monitor"
	"github.com/voxmorph/voxmorph/internal/observe"
	"github.com/voxmorph/voxmorph/internal/soundboard"
)

// Config holds the shared dependencies every session is built from.
type Config struct {
	SampleRate int
	BlockSize  int
	Device     device.Duplex
	Voices     catalog.VoiceStore

	// Board is the shared soundboard. May be nil when no clips are
	// configured.
	Board *soundboard.Board
	// MonitorBitrate is the opus bitrate for monitor streams; zero picks
	// the default.
	MonitorBitrate int
	// MonitorDisabled turns the preview stream off entirely.
	MonitorDisabled bool

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// Manager creates sessions over one device and catalog. Sessions share the
// soundboard but each own their parameter store and engine; device
// exclusivity means only one session can actually be processing at a time,
// which the device layer enforces.
type Manager struct {
	cfg Config
	log *slog.Logger
}

// NewManager validates the shared dependencies.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Device == nil {
		return nil, fmt.Errorf("session: device is required")
	}
	if cfg.Voices == nil {
		return nil, fmt.Errorf("session: voice store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{cfg: cfg, log: cfg.Logger}, nil
}

// Open creates a fresh idle session.
func (m *Manager) Open(ctx context.Context) (*Session, error) {
	s := &Session{
		id:      uuid.NewString(),
		mgr:     m,
		store:   engine.NewParamStore(),
		state:   StateIdle,
		hotkeys: make(map[string]string),
	}
	s.log = m.log.With("session_id", s.id)

	if !m.cfg.MonitorDisabled {
		mon, err := monitor.New(m.cfg.SampleRate, m.cfg.MonitorBitrate, s.log)
		if err != nil {
			// Not fatal: everything but the opus preview still works.
			s.log.Warn("monitor stream disabled", "error", err)
		} else {
			s.mon = mon
		}
	}

	eng, err := engine.New(engine.Config{
		SampleRate: m.cfg.SampleRate,
		BlockSize:  m.cfg.BlockSize,
		Device:     m.cfg.Device,
		Store:      s.store,
		Mixer:      boardMixer(m.cfg.Board),
		Tap:        s.tap,
		OnError:    s.engineFailed,
		Metrics:    m.cfg.Metrics,
		Logger:     s.log,
	})
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	s.eng = eng

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.ActiveSessions.Add(ctx, 1)
	}
	s.log.Info("session opened")
	return s, nil
}

// boardMixer avoids storing a typed-nil Board inside the Mixer interface.
func boardMixer(b *soundboard.Board) engine.Mixer {
	if b == nil {
		return nil
	}
	return b
}
