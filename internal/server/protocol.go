package server

import (
	"github.com/voxmorph/voxmorph/internal/catalog"
	"github.com/voxmorph/voxmorph/internal/device"
	"github.com/voxmorph/voxmorph/internal/dsp"
	"github.com/voxmorph/voxmorph/internal/session"
)

// clientMessage is the single envelope for every client action. Fields
// beyond Action are populated per action; unknown actions are logged and
// ignored so older servers tolerate newer clients.
type clientMessage struct {
	Action string `json:"action"`

	// selectVoice, assignHotkey
	VoiceID string `json:"voiceId,omitempty"`
	// loadPreset
	PresetID string `json:"presetId,omitempty"`
	// setEffectParameter
	Name  string `json:"name,omitempty"`
	Value any    `json:"value,omitempty"`
	// playSoundboard
	ClipID string `json:"clipId,omitempty"`
	Loop   bool   `json:"loop,omitempty"`
	// assignHotkey
	Key string `json:"key,omitempty"`
	// searchVoices
	Query string `json:"query,omitempty"`
}

// Server → client events. Each event is its own struct with a fixed Type
// discriminator so the wire shape is explicit.

type connectedEvent struct {
	Type    string           `json:"type"`
	Session string           `json:"sessionId"`
	Presets []catalog.Preset `json:"presets"`
	Voices  []catalog.Voice  `json:"voices"`
	Status  session.Status   `json:"status"`
	Params  dsp.Params       `json:"effectParameters"`
}

type voicesEvent struct {
	Type   string          `json:"type"`
	Voices []catalog.Voice `json:"voices"`
}

type voiceSelectedEvent struct {
	Type  string        `json:"type"`
	Voice catalog.Voice `json:"voice"`
}

type statusEvent struct {
	Type   string         `json:"type"`
	Status session.Status `json:"status"`
}

type presetsEvent struct {
	Type    string           `json:"type"`
	Presets []catalog.Preset `json:"presets"`
}

type presetLoadedEvent struct {
	Type     string     `json:"type"`
	PresetID string     `json:"presetId"`
	Params   dsp.Params `json:"effectParameters"`
}

type devicesEvent struct {
	Type    string        `json:"type"`
	Devices []device.Info `json:"devices"`
}

type paramUpdatedEvent struct {
	Type   string     `json:"type"`
	Name   string     `json:"name"`
	Params dsp.Params `json:"effectParameters"`
}

type paramsEvent struct {
	Type   string     `json:"type"`
	Params dsp.Params `json:"effectParameters"`
}

type hotkeyAssignedEvent struct {
	Type    string `json:"type"`
	VoiceID string `json:"voiceId"`
	Key     string `json:"key"`
}

type soundboardEvent struct {
	Type   string `json:"type"`
	ClipID string `json:"clipId,omitempty"`
}

type monitorEvent struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

type errorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
