package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/voxmorph/voxmorph/internal/catalog"
	"github.com/voxmorph/voxmorph/internal/dsp"
	"github.com/voxmorph/voxmorph/internal/observe"
	"github.com/voxmorph/voxmorph/internal/session"
)

// handleWS upgrades the connection, binds a fresh session to it and runs
// the message loop until the client goes away. Disconnect tears the session
// down, stopping a still-running engine.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The control client is a local desktop app, not a browser page
		// served by us.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}

	ctx := r.Context()
	sess, err := s.cfg.Sessions.Open(ctx)
	if err != nil {
		s.log.Error("session open failed", "error", err)
		ws.Close(websocket.StatusInternalError, "session unavailable")
		return
	}

	c := &conn{
		ws:      ws,
		sess:    sess,
		srv:     s,
		log:     s.log.With("session_id", sess.ID()),
		metrics: s.cfg.Metrics,
	}
	defer func() {
		sess.Close(context.Background())
		ws.Close(websocket.StatusNormalClosure, "")
	}()

	sess.SetHooks(
		func(st session.Status) { c.send(ctx, statusEvent{Type: "status", Status: st}) },
		func(err error) { c.send(ctx, errorEvent{Type: "error", Error: err.Error()}) },
	)

	if err := c.sendConnected(ctx); err != nil {
		c.log.Warn("initial handshake failed", "error", err)
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.statusLoop(loopCtx, s.cfg.StatusInterval)

	c.log.Info("client connected", "remote", r.RemoteAddr)
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			c.log.Info("client disconnected", "error", err)
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("malformed message ignored", "error", err)
			continue
		}
		c.dispatch(ctx, &msg)
	}
}

// conn is one client connection. All writes go through send/sendBinary so
// concurrent pushers (dispatch, status loop, engine failure hook, monitor
// sink) never interleave frames.
type conn struct {
	ws      *websocket.Conn
	sess    *session.Session
	srv     *Server
	log     *slog.Logger
	metrics *observe.Metrics

	mu sync.Mutex
}

// sendConnected delivers the initial snapshot: presets, voices, status and
// the active parameter set, so a reconnecting client resynchronises from
// this one event.
func (c *conn) sendConnected(ctx context.Context) error {
	voices, err := c.sess.Voices(ctx)
	if err != nil {
		return err
	}
	return c.send(ctx, connectedEvent{
		Type:    "connected",
		Session: c.sess.ID(),
		Presets: catalog.Presets(),
		Voices:  voices,
		Status:  c.sess.Status(),
		Params:  c.sess.Parameters(),
	})
}

// statusLoop pushes periodic status while the session is processing.
func (c *conn) statusLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := c.sess.Status()
			if st.Telemetry.Processing {
				c.send(ctx, statusEvent{Type: "status", Status: st})
			}
		}
	}
}

func (c *conn) send(ctx context.Context, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

func (c *conn) sendBinary(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.Write(ctx, websocket.MessageBinary, data)
}

// dispatch resolves one client action. Domain failures become error events;
// the session state is otherwise untouched. Unknown actions are logged and
// ignored to tolerate protocol evolution.
func (c *conn) dispatch(ctx context.Context, msg *clientMessage) {
	ctx, span := observe.StartSpan(ctx, "control."+msg.Action)
	defer span.End()

	var err error
	switch msg.Action {
	case "getVoices":
		var voices []catalog.Voice
		if voices, err = c.sess.Voices(ctx); err == nil {
			err = c.send(ctx, voicesEvent{Type: "voices", Voices: voices})
		}

	case "searchVoices":
		var voices []catalog.Voice
		if voices, err = c.sess.SearchVoices(ctx, msg.Query); err == nil {
			err = c.send(ctx, voicesEvent{Type: "voices", Voices: voices})
		}

	case "selectVoice":
		var voice catalog.Voice
		if voice, err = c.sess.SelectVoice(ctx, msg.VoiceID); err == nil {
			err = c.send(ctx, voiceSelectedEvent{Type: "voiceSelected", Voice: voice})
		}

	case "start":
		err = c.sess.Start(ctx)

	case "stop":
		err = c.sess.Stop()

	case "getStatus":
		err = c.send(ctx, statusEvent{Type: "status", Status: c.sess.Status()})

	case "getPresets":
		err = c.send(ctx, presetsEvent{Type: "presets", Presets: catalog.Presets()})

	case "loadPreset":
		var preset catalog.Preset
		if preset, err = c.sess.LoadPreset(msg.PresetID); err == nil {
			err = c.send(ctx, presetLoadedEvent{Type: "presetLoaded", PresetID: preset.ID, Params: preset.Params})
		}

	case "getDevices":
		event := devicesEvent{Type: "devices"}
		if c.srv.cfg.Devices != nil {
			event.Devices = c.srv.cfg.Devices.List()
		}
		err = c.send(ctx, event)

	case "setEffectParameter":
		var params dsp.Params
		if params, err = c.sess.SetParameter(msg.Name, msg.Value); err == nil {
			err = c.send(ctx, paramUpdatedEvent{Type: "effectParameterUpdated", Name: msg.Name, Params: params})
		}

	case "getEffectParameters":
		err = c.send(ctx, paramsEvent{Type: "effectParameters", Params: c.sess.Parameters()})

	case "assignHotkey":
		if err = c.sess.AssignHotkey(ctx, msg.VoiceID, msg.Key); err == nil {
			err = c.send(ctx, hotkeyAssignedEvent{Type: "hotkeyAssigned", VoiceID: msg.VoiceID, Key: msg.Key})
		}

	case "playSoundboard":
		if err = c.sess.PlaySound(msg.ClipID, msg.Loop); err == nil {
			err = c.send(ctx, soundboardEvent{Type: "soundboardPlayed", ClipID: msg.ClipID})
		}

	case "stopSoundboard":
		if err = c.sess.StopSound(); err == nil {
			err = c.send(ctx, soundboardEvent{Type: "soundboardStopped"})
		}

	case "startMonitor":
		if err = c.sess.StartMonitor(func(pkt []byte) {
			_ = c.sendBinary(ctx, pkt)
		}); err == nil {
			err = c.send(ctx, monitorEvent{Type: "monitor", Active: true})
		}

	case "stopMonitor":
		c.sess.StopMonitor()
		err = c.send(ctx, monitorEvent{Type: "monitor", Active: false})

	default:
		c.log.Warn("unknown action ignored", "action", msg.Action)
		c.record(ctx, msg.Action, "ignored")
		return
	}

	if err != nil {
		c.record(ctx, msg.Action, "error")
		c.log.Warn("action failed", "action", msg.Action, "error", err)
		if sendErr := c.send(ctx, errorEvent{Type: "error", Error: err.Error()}); sendErr != nil {
			c.log.Warn("error event not delivered", "error", sendErr)
		}
		return
	}
	c.record(ctx, msg.Action, "ok")
}

func (c *conn) record(ctx context.Context, action, status string) {
	if c.metrics != nil {
		c.metrics.RecordProtocolMessage(ctx, action, status)
	}
}
