package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/voxmorph/voxmorph/internal/config"
)

const fullYAML = `
server:
  listen_addr: ":9000"
  log_level: debug
audio:
  sample_rate: 24000
  block_size: 512
  device: oto
  status_interval: 100ms
catalog:
  backend: memory
  voices:
    - id: narrator
      name: Narrator
      category: character
      description: A warm storytelling voice.
    - id: deep
      name: Deep
      category: character
      base_params:
        pitch_shift: -5
soundboard:
  volume: 0.8
  clips:
    - path: /srv/clips/airhorn.wav
    - path: /srv/clips/drum.mp3
monitor:
  bitrate: 32000
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9000")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Audio.SampleRate != 24000 {
		t.Errorf("sample_rate: got %d, want 24000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.StatusInterval != 100*time.Millisecond {
		t.Errorf("status_interval: got %s, want 100ms", cfg.Audio.StatusInterval)
	}
	if len(cfg.Catalog.Voices) != 2 {
		t.Fatalf("voices: got %d, want 2", len(cfg.Catalog.Voices))
	}
	deep := cfg.Catalog.Voices[1]
	if deep.BaseParams == nil || deep.BaseParams.PitchShift != -5 {
		t.Errorf("deep.base_params.pitch_shift not decoded: %+v", deep.BaseParams)
	}
	if len(cfg.Soundboard.Clips) != 2 {
		t.Errorf("clips: got %d, want 2", len(cfg.Soundboard.Clips))
	}
	if cfg.Monitor.Bitrate != 32000 {
		t.Errorf("monitor.bitrate: got %d, want 32000", cfg.Monitor.Bitrate)
	}
}

func TestLoadFromReader_EmptyAppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr: got %q, want %q", cfg.Server.ListenAddr, config.DefaultListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Audio.SampleRate != config.DefaultSampleRate {
		t.Errorf("sample_rate: got %d, want %d", cfg.Audio.SampleRate, config.DefaultSampleRate)
	}
	if cfg.Audio.BlockSize != config.DefaultBlockSize {
		t.Errorf("block_size: got %d, want %d", cfg.Audio.BlockSize, config.DefaultBlockSize)
	}
	if cfg.Audio.Device != config.DefaultDevice {
		t.Errorf("device: got %q, want %q", cfg.Audio.Device, config.DefaultDevice)
	}
	if cfg.Audio.StatusInterval != config.DefaultStatusInterval {
		t.Errorf("status_interval: got %s, want %s", cfg.Audio.StatusInterval, config.DefaultStatusInterval)
	}
	if cfg.Catalog.Backend != config.CatalogMemory {
		t.Errorf("catalog.backend: got %q, want %q", cfg.Catalog.Backend, config.CatalogMemory)
	}
}

func TestMonitorEnabled_DefaultsToTrue(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.MonitorEnabled() {
		t.Error("MonitorEnabled() = false for omitted monitor section, want true")
	}

	cfg, err = config.LoadFromReader(strings.NewReader(`
monitor:
  enabled: false
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MonitorEnabled() {
		t.Error("MonitorEnabled() = true for enabled: false, want false")
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
server:
  listen_address: ":9000"
`))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/config.yaml")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v, want os.ErrNotExist", err)
	}
}

func TestLoad_FromFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.BlockSize != 512 {
		t.Errorf("block_size: got %d, want 512", cfg.Audio.BlockSize)
	}
}
