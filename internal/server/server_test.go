package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxmorph/voxmorph/internal/catalog"
	"github.com/voxmorph/voxmorph/internal/device"
	"github.com/voxmorph/voxmorph/internal/dsp"
	"github.com/voxmorph/voxmorph/internal/engine"
	"github.com/voxmorph/voxmorph/internal/session"
	"github.com/voxmorph/voxmorph/internal/soundboard"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	deep := dsp.DefaultParams()
	deep.PitchShift = -5
	voices, err := catalog.NewMemStore([]catalog.Voice{
		{ID: "voice-1", Name: "Narrator", Category: catalog.CategoryRealistic},
		{ID: "deep", Name: "Deep Voice", Category: catalog.CategoryCharacter, BaseParams: &deep},
	})
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}

	board := soundboard.NewBoard()
	board.Add(soundboard.NewClip("airhorn", "Airhorn", make([]float64, 4800)))

	loop := device.NewLoopback(device.WithUnpaced())
	registry := device.NewRegistry()
	registry.Register(device.Info{
		ID:             "loopback",
		Name:           "Loopback",
		InputChannels:  1,
		OutputChannels: 1,
		SampleRate:     48000,
	}, loop)

	sessions, err := session.NewManager(session.Config{
		SampleRate: 48000,
		BlockSize:  256,
		Device:     loop,
		Voices:     voices,
		Board:      board,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	srv, err := New(Config{
		Sessions:       sessions,
		Devices:        registry,
		StatusInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ctx context.Context, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func sendAction(t *testing.T, ctx context.Context, c *websocket.Conn, msg map[string]any) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := c.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// awaitEvent reads frames until one with the wanted type arrives. Interleaved
// status pushes and monitor binary frames are skipped; an unexpected error
// event fails the test.
func awaitEvent(t *testing.T, ctx context.Context, c *websocket.Conn, wantType string) map[string]any {
	t.Helper()
	for i := 0; i < 64; i++ {
		typ, data, err := c.Read(ctx)
		if err != nil {
			t.Fatalf("read while waiting for %q: %v", wantType, err)
		}
		if typ == websocket.MessageBinary {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("unmarshal %q: %v", data, err)
		}
		evt, _ := m["type"].(string)
		if evt == wantType {
			return m
		}
		if evt == "error" && wantType != "error" {
			t.Fatalf("unexpected error event while waiting for %q: %v", wantType, m["error"])
		}
	}
	t.Fatalf("no %q event within 64 frames", wantType)
	return nil
}

func TestConnected_DeliversCatalogSnapshot(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c := dial(t, ctx, testServer(t))

	m := awaitEvent(t, ctx, c, "connected")
	if m["sessionId"] == "" {
		t.Error("connected event carries no session ID")
	}
	presets, _ := m["presets"].([]any)
	if len(presets) != 12 {
		t.Errorf("connected presets = %d, want 12", len(presets))
	}
	voices, _ := m["voices"].([]any)
	if len(voices) != 2 {
		t.Errorf("connected voices = %d, want 2", len(voices))
	}
	status, _ := m["status"].(map[string]any)
	if status["state"] != "idle" {
		t.Errorf("initial state = %v, want idle", status["state"])
	}
	if _, ok := m["effectParameters"].(map[string]any); !ok {
		t.Error("connected event carries no effect parameters")
	}
}

func TestScenario_SelectLoadStartStop(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	c := dial(t, ctx, testServer(t))
	awaitEvent(t, ctx, c, "connected")

	sendAction(t, ctx, c, map[string]any{"action": "selectVoice", "voiceId": "voice-1"})
	m := awaitEvent(t, ctx, c, "voiceSelected")
	voice, _ := m["voice"].(map[string]any)
	if voice["id"] != "voice-1" {
		t.Fatalf("voiceSelected voice = %v, want voice-1", voice["id"])
	}

	sendAction(t, ctx, c, map[string]any{"action": "loadPreset", "presetId": "robot"})
	m = awaitEvent(t, ctx, c, "presetLoaded")
	if m["presetId"] != "robot" {
		t.Fatalf("presetLoaded id = %v, want robot", m["presetId"])
	}

	sendAction(t, ctx, c, map[string]any{"action": "start"})
	var status map[string]any
	deadline := time.Now().Add(5 * time.Second)
	for {
		m = awaitEvent(t, ctx, c, "status")
		status, _ = m["status"].(map[string]any)
		if processing, _ := status["processing"].(bool); processing {
			in, _ := status["input_level"].(float64)
			out, _ := status["output_level"].(float64)
			if in < 0 || in > 1 || out < 0 || out > 1 {
				t.Errorf("levels = %v/%v, want within [0, 1]", in, out)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no processing:true status after start")
		}
	}
	if status["state"] != "processing" {
		t.Errorf("state while running = %v, want processing", status["state"])
	}

	sendAction(t, ctx, c, map[string]any{"action": "stop"})
	deadline = time.Now().Add(5 * time.Second)
	for {
		m = awaitEvent(t, ctx, c, "status")
		status, _ = m["status"].(map[string]any)
		if status["state"] == "voice_selected" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no voice_selected status after stop")
		}
	}

	// The device was released: a second start succeeds.
	sendAction(t, ctx, c, map[string]any{"action": "start"})
	deadline = time.Now().Add(5 * time.Second)
	for {
		m = awaitEvent(t, ctx, c, "status")
		status, _ = m["status"].(map[string]any)
		if status["state"] == "processing" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("restart after stop never reached processing")
		}
	}
}

func TestStatusEvent_TelemetryFieldsAreTopLevel(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(statusEvent{
		Type: "status",
		Status: session.Status{
			SessionID: "s-1",
			State:     "processing",
			Telemetry: engine.Telemetry{
				Processing:       true,
				InputLevel:       0.25,
				OutputLevel:      0.5,
				LatencyMs:        5.3,
				ProcessingTimeMs: 1.1,
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	status, _ := m["status"].(map[string]any)
	if status == nil {
		t.Fatalf("no status object in %s", data)
	}
	for _, key := range []string{"processing", "input_level", "output_level", "latency_ms", "processing_time_ms"} {
		if _, ok := status[key]; !ok {
			t.Errorf("status[%q] missing, want it at the top level of status", key)
		}
	}
	if _, ok := status["telemetry"]; ok {
		t.Error("status carries a nested telemetry object, want flat fields")
	}
	if status["session_id"] != "s-1" || status["state"] != "processing" {
		t.Errorf("session_id/state = %v/%v, want s-1/processing", status["session_id"], status["state"])
	}
}

func TestStartWithoutVoice_ReportsError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c := dial(t, ctx, testServer(t))
	awaitEvent(t, ctx, c, "connected")

	sendAction(t, ctx, c, map[string]any{"action": "start"})
	m := awaitEvent(t, ctx, c, "error")
	if msg, _ := m["error"].(string); !strings.Contains(msg, "no voice selected") {
		t.Errorf("error = %q, want mention of no voice selected", msg)
	}

	// The session survives the error.
	sendAction(t, ctx, c, map[string]any{"action": "getStatus"})
	m = awaitEvent(t, ctx, c, "status")
	status, _ := m["status"].(map[string]any)
	if status["state"] != "idle" {
		t.Errorf("state after rejected start = %v, want idle", status["state"])
	}
}

func TestUnknownAction_IgnoredNotFatal(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c := dial(t, ctx, testServer(t))
	awaitEvent(t, ctx, c, "connected")

	sendAction(t, ctx, c, map[string]any{"action": "timeTravel"})
	sendAction(t, ctx, c, map[string]any{"action": "getStatus"})
	awaitEvent(t, ctx, c, "status")
}

func TestSetEffectParameter_ClampsAndEchoes(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c := dial(t, ctx, testServer(t))
	awaitEvent(t, ctx, c, "connected")

	sendAction(t, ctx, c, map[string]any{"action": "setEffectParameter", "name": "pitch_shift", "value": 99})
	m := awaitEvent(t, ctx, c, "effectParameterUpdated")
	params, _ := m["effectParameters"].(map[string]any)
	if got, _ := params["pitch_shift"].(float64); got != 12 {
		t.Errorf("clamped pitch_shift = %v, want 12", got)
	}

	sendAction(t, ctx, c, map[string]any{"action": "setEffectParameter", "name": "warp_drive", "value": 1})
	awaitEvent(t, ctx, c, "error")
}

func TestGetDevices_ListsRegistry(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c := dial(t, ctx, testServer(t))
	awaitEvent(t, ctx, c, "connected")

	sendAction(t, ctx, c, map[string]any{"action": "getDevices"})
	m := awaitEvent(t, ctx, c, "devices")
	devices, _ := m["devices"].([]any)
	if len(devices) != 1 {
		t.Fatalf("devices = %d, want 1", len(devices))
	}
	d, _ := devices[0].(map[string]any)
	if d["id"] != "loopback" {
		t.Errorf("device id = %v, want loopback", d["id"])
	}
}

func TestSoundboardActions(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c := dial(t, ctx, testServer(t))
	awaitEvent(t, ctx, c, "connected")

	sendAction(t, ctx, c, map[string]any{"action": "playSoundboard", "clipId": "airhorn", "loop": true})
	m := awaitEvent(t, ctx, c, "soundboardPlayed")
	if m["clipId"] != "airhorn" {
		t.Errorf("played clip = %v, want airhorn", m["clipId"])
	}

	sendAction(t, ctx, c, map[string]any{"action": "stopSoundboard"})
	awaitEvent(t, ctx, c, "soundboardStopped")

	sendAction(t, ctx, c, map[string]any{"action": "playSoundboard", "clipId": "vuvuzela"})
	awaitEvent(t, ctx, c, "error")
}

func TestMonitor_StreamsBinaryFrames(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	c := dial(t, ctx, testServer(t))
	awaitEvent(t, ctx, c, "connected")

	sendAction(t, ctx, c, map[string]any{"action": "selectVoice", "voiceId": "voice-1"})
	awaitEvent(t, ctx, c, "voiceSelected")
	sendAction(t, ctx, c, map[string]any{"action": "startMonitor"})
	awaitEvent(t, ctx, c, "monitor")
	sendAction(t, ctx, c, map[string]any{"action": "start"})

	deadline := time.Now().Add(5 * time.Second)
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if typ == websocket.MessageBinary {
			if len(data) == 0 {
				t.Error("empty opus frame")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no binary monitor frame while processing")
		}
	}

	sendAction(t, ctx, c, map[string]any{"action": "stopMonitor"})
	awaitEvent(t, ctx, c, "monitor")
	sendAction(t, ctx, c, map[string]any{"action": "stop"})
}

func TestDisconnect_ReleasesDevice(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	ts := testServer(t)

	c1 := dial(t, ctx, ts)
	awaitEvent(t, ctx, c1, "connected")
	sendAction(t, ctx, c1, map[string]any{"action": "selectVoice", "voiceId": "voice-1"})
	awaitEvent(t, ctx, c1, "voiceSelected")
	sendAction(t, ctx, c1, map[string]any{"action": "start"})
	awaitEvent(t, ctx, c1, "status")

	// Dropping the connection must stop the engine and free the device.
	c1.Close(websocket.StatusNormalClosure, "")

	c2 := dial(t, ctx, ts)
	awaitEvent(t, ctx, c2, "connected")
	sendAction(t, ctx, c2, map[string]any{"action": "selectVoice", "voiceId": "deep"})
	awaitEvent(t, ctx, c2, "voiceSelected")

	deadline := time.Now().Add(5 * time.Second)
	for {
		sendAction(t, ctx, c2, map[string]any{"action": "start"})
		typ, data, err := c2.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if typ == websocket.MessageBinary {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt, _ := m["type"].(string); evt == "status" {
			status, _ := m["status"].(map[string]any)
			if status["state"] == "processing" {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("device never freed after disconnect")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestHTTPEndpoints(t *testing.T) {
	t.Parallel()

	ts := testServer(t)
	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}
