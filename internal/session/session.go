// Package session ties one control connection to one voice-changing
// pipeline: a selected voice, a parameter store, an engine and the optional
// soundboard and monitor hookups. All exported methods are safe for
// concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voxmorph/voxmorph/internal/catalog"
	"github.com/voxmorph/voxmorph/internal/dsp"
	"github.com/voxmorph/voxmorph/internal/engine"
	"github.com/voxmorph/voxmorph/internal/monitor"
)

var (
	// ErrNoVoiceSelected is returned by Start before a voice was chosen.
	ErrNoVoiceSelected = errors.New("no voice selected")
	// ErrAlreadyProcessing is returned by Start while the engine runs.
	ErrAlreadyProcessing = errors.New("already processing")
	// ErrNotProcessing is returned by Stop when the engine is not running.
	ErrNotProcessing = errors.New("not processing")
	// ErrUnknownParameter is returned for an unrecognised effect parameter
	// name.
	ErrUnknownParameter = errors.New("unknown effect parameter")
	// ErrMonitorUnavailable is returned when the sample rate rules out the
	// opus monitor stream.
	ErrMonitorUnavailable = errors.New("monitor stream unavailable")
	// ErrSoundboardUnavailable is returned when no clips are configured.
	ErrSoundboardUnavailable = errors.New("soundboard unavailable")
)

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateVoiceSelected
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateVoiceSelected:
		return "voice_selected"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// Status is the session view pushed to the owning connection. The telemetry
// fields marshal at the top level, so clients read status.processing,
// status.input_level and friends directly; session_id, state and voice ride
// alongside them.
type Status struct {
	SessionID string         `json:"session_id"`
	State     string         `json:"state"`
	Voice     *catalog.Voice `json:"voice,omitempty"`

	engine.Telemetry
}

// Session is one client's voice-changer. It is created by [Manager.Open]
// and must be released with Close when the connection goes away.
type Session struct {
	id    string
	mgr   *Manager
	log   *slog.Logger
	store *engine.ParamStore
	eng   *engine.Engine
	mon   *monitor.Monitor

	mu      sync.Mutex
	state   State
	voice   *catalog.Voice
	hotkeys map[string]string // key -> voice ID
	closed  bool

	// onStatus and onError are set once by the connection handler before
	// any operation runs; both may be nil.
	onStatus func(Status)
	onError  func(error)
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// SetHooks installs the status-push and error callbacks. Hooks are invoked
// without internal locks held, from whichever goroutine triggered the
// change.
func (s *Session) SetHooks(onStatus func(Status), onError func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStatus = onStatus
	s.onError = onError
}

// Voices lists the catalog with this session's hotkey assignments applied.
func (s *Session) Voices(ctx context.Context) ([]catalog.Voice, error) {
	voices, err := s.mgr.cfg.Voices.List(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, voiceID := range s.hotkeys {
		for i := range voices {
			if voices[i].ID == voiceID {
				voices[i].Hotkey = key
			}
		}
	}
	return voices, nil
}

// SearchVoices runs a catalog search; hotkeys are not applied to results.
func (s *Session) SearchVoices(ctx context.Context, query string) ([]catalog.Voice, error) {
	return s.mgr.cfg.Voices.Search(ctx, query)
}

// SelectVoice makes the given voice current and applies its base effect
// profile, if it has one. Selection is allowed at any time, including while
// processing: the new parameters take effect at the next block boundary
// without an engine restart.
func (s *Session) SelectVoice(ctx context.Context, id string) (catalog.Voice, error) {
	voice, err := s.mgr.cfg.Voices.Get(ctx, id)
	if err != nil {
		return catalog.Voice{}, err
	}
	if voice.BaseParams != nil {
		s.store.Set(*voice.BaseParams)
	}

	s.mu.Lock()
	s.voice = &voice
	if s.state == StateIdle {
		s.state = StateVoiceSelected
	}
	s.mu.Unlock()

	s.log.Info("voice selected", "voice_id", voice.ID, "category", voice.Category)
	s.pushStatus()
	return voice, nil
}

// Start opens the device and begins processing. A voice must be selected
// first, and only one run can be active per session.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.voice == nil:
		s.mu.Unlock()
		return ErrNoVoiceSelected
	case s.state == StateProcessing:
		s.mu.Unlock()
		return ErrAlreadyProcessing
	}
	s.mu.Unlock()

	// The engine serialises its own lifecycle; holding s.mu across Start
	// would deadlock against engineFailed.
	if err := s.eng.Start(ctx); err != nil {
		if errors.Is(err, engine.ErrAlreadyRunning) {
			return ErrAlreadyProcessing
		}
		return fmt.Errorf("session %s: %w", s.id, err)
	}

	s.mu.Lock()
	s.state = StateProcessing
	s.mu.Unlock()

	s.log.Info("processing started")
	s.pushStatus()
	return nil
}

// Stop halts processing and returns the session to the voice-selected
// state.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state != StateProcessing {
		s.mu.Unlock()
		return ErrNotProcessing
	}
	s.mu.Unlock()

	// ErrNotRunning here means the engine already failed and tore itself
	// down; the session state still needs the transition.
	if err := s.eng.Stop(); err != nil && !errors.Is(err, engine.ErrNotRunning) {
		return fmt.Errorf("session %s: %w", s.id, err)
	}

	s.mu.Lock()
	if s.state == StateProcessing {
		s.state = StateVoiceSelected
	}
	s.mu.Unlock()

	s.log.Info("processing stopped")
	s.pushStatus()
	return nil
}

// Status composes the current session view.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	st := Status{
		SessionID: s.id,
		State:     s.state.String(),
		Telemetry: s.eng.Telemetry(),
	}
	if s.voice != nil {
		v := *s.voice
		st.Voice = &v
	}
	return st
}

// LoadPreset publishes a built-in preset's parameters.
func (s *Session) LoadPreset(id string) (catalog.Preset, error) {
	preset, err := catalog.PresetByID(id)
	if err != nil {
		return catalog.Preset{}, err
	}
	s.store.Set(preset.Params)
	s.log.Info("preset loaded", "preset_id", preset.ID)
	return preset, nil
}

// SetParameter edits a single effect parameter by wire name. The value is
// clamped into the parameter's range; unknown names and wrong value types
// are rejected without touching the published snapshot.
func (s *Session) SetParameter(name string, value any) (dsp.Params, error) {
	scratch := *s.store.Current()
	if err := applyParam(&scratch, name, value); err != nil {
		return dsp.Params{}, err
	}
	updated := s.store.Update(func(p *dsp.Params) {
		_ = applyParam(p, name, value)
	})
	return updated, nil
}

// Parameters returns the current effect parameter snapshot.
func (s *Session) Parameters() dsp.Params {
	return *s.store.Current()
}

// AssignHotkey binds a key combination to a voice. Reassigning a key moves
// it; assigning an empty key clears the voice's binding.
func (s *Session) AssignHotkey(ctx context.Context, voiceID, key string) error {
	if _, err := s.mgr.cfg.Voices.Get(ctx, voiceID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.hotkeys {
		if v == voiceID {
			delete(s.hotkeys, k)
		}
	}
	if key != "" {
		s.hotkeys[key] = voiceID
	}
	return nil
}

// HotkeyVoice resolves a key combination to its assigned voice ID.
func (s *Session) HotkeyVoice(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.hotkeys[key]
	return id, ok
}

// PlaySound starts a soundboard clip, mixed into the processed output.
func (s *Session) PlaySound(id string, loop bool) error {
	if s.mgr.cfg.Board == nil {
		return ErrSoundboardUnavailable
	}
	return s.mgr.cfg.Board.Play(id, loop)
}

// StopSound halts soundboard playback.
func (s *Session) StopSound() error {
	if s.mgr.cfg.Board == nil {
		return ErrSoundboardUnavailable
	}
	s.mgr.cfg.Board.Stop()
	return nil
}

// StartMonitor begins delivering Opus packets of the processed output to
// sink. The monitor is unavailable when the engine sample rate is not an
// opus rate.
func (s *Session) StartMonitor(sink monitor.Sink) error {
	if s.mon == nil {
		return ErrMonitorUnavailable
	}
	s.mon.Start(sink)
	s.log.Info("monitor started")
	return nil
}

// StopMonitor halts the monitor stream.
func (s *Session) StopMonitor() {
	if s.mon != nil {
		s.mon.Stop()
	}
}

// Close releases the session: a running engine is stopped, the monitor shut
// down and the active-session gauge decremented. Close is idempotent.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	wasProcessing := s.state == StateProcessing
	s.state = StateIdle
	s.mu.Unlock()

	if wasProcessing {
		if err := s.eng.Stop(); err != nil && !errors.Is(err, engine.ErrNotRunning) {
			s.log.Warn("engine stop on close", "error", err)
		}
	}
	if s.mon != nil {
		s.mon.Stop()
	}
	if s.mgr.cfg.Metrics != nil {
		s.mgr.cfg.Metrics.ActiveSessions.Add(ctx, -1)
	}
	s.log.Info("session closed")
}

// tap forwards processed blocks to the monitor encoder. Runs on the audio
// callback; Push is non-blocking.
func (s *Session) tap(block []float64) {
	if s.mon != nil {
		s.mon.Push(block)
	}
}

// engineFailed handles an escalated engine failure: the session drops back
// to voice-selected and the connection is told.
func (s *Session) engineFailed(cause error) {
	s.mu.Lock()
	if s.state == StateProcessing {
		s.state = StateVoiceSelected
	}
	onError := s.onError
	s.mu.Unlock()

	s.log.Error("engine failure ended processing", "error", cause)
	s.pushStatus()
	if onError != nil {
		onError(cause)
	}
}

// pushStatus delivers a fresh status snapshot to the owning connection.
func (s *Session) pushStatus() {
	s.mu.Lock()
	onStatus := s.onStatus
	st := s.statusLocked()
	s.mu.Unlock()
	if onStatus != nil {
		onStatus(st)
	}
}
