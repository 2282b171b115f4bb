package config_test

import (
	"strings"
	"testing"

	"github.com/voxmorph/voxmorph/internal/config"
)

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
server:
  log_level: verbose
`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "server.log_level") {
		t.Errorf("error should mention server.log_level, got: %v", err)
	}
}

func TestValidate_BlockSizeMustBePowerOfTwo(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"power of two", 256, false},
		{"one", 1, false},
		{"not a power of two", 300, true},
		{"negative", -8, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := &config.Config{}
			cfg.ApplyDefaults()
			cfg.Audio.BlockSize = tc.size
			err := config.Validate(cfg)
			if tc.wantErr && err == nil {
				t.Errorf("block_size %d: expected error, got nil", tc.size)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("block_size %d: unexpected error: %v", tc.size, err)
			}
		})
	}
}

func TestValidate_NegativeStatusInterval(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
audio:
  status_interval: -1s
`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "audio.status_interval") {
		t.Errorf("error should mention audio.status_interval, got: %v", err)
	}
}

func TestValidate_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
catalog:
  backend: postgres
`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "catalog.postgres_dsn") {
		t.Errorf("error should mention catalog.postgres_dsn, got: %v", err)
	}
}

func TestValidate_InvalidCatalogBackend(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
catalog:
  backend: redis
`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "catalog.backend") {
		t.Errorf("error should mention catalog.backend, got: %v", err)
	}
}

func TestValidate_DuplicateVoiceIDs(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
catalog:
  voices:
    - id: narrator
      name: Narrator
      category: character
    - id: narrator
      name: Narrator Copy
      category: character
`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention the duplicate, got: %v", err)
	}
}

func TestValidate_InvalidVoiceSeed(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
catalog:
  voices:
    - id: broken
      name: Broken
      category: alien
`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "catalog.voices[0]") {
		t.Errorf("error should name the offending entry, got: %v", err)
	}
}

func TestValidate_UnsupportedClipExtension(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
soundboard:
  clips:
    - path: /srv/clips/airhorn.flac
`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "unsupported extension") {
		t.Errorf("error should mention the extension, got: %v", err)
	}
}

func TestValidate_ClipPathRequired(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
soundboard:
  clips:
    - path: ""
`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "soundboard.clips[0].path") {
		t.Errorf("error should name the offending entry, got: %v", err)
	}
}

func TestValidate_VolumeOutOfRange(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
soundboard:
  volume: 1.5
`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "soundboard.volume") {
		t.Errorf("error should mention soundboard.volume, got: %v", err)
	}
}

func TestValidate_NegativeMonitorBitrate(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
monitor:
  bitrate: -1
`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "monitor.bitrate") {
		t.Errorf("error should mention monitor.bitrate, got: %v", err)
	}
}

func TestValidate_NonOpusRateIsAllowed(t *testing.T) {
	t.Parallel()
	// 44100 only disables the monitor stream; it is not an error.
	cfg, err := config.LoadFromReader(strings.NewReader(`
audio:
  sample_rate: 44100
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("sample_rate: got %d, want 44100", cfg.Audio.SampleRate)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
server:
  log_level: loud
audio:
  block_size: 300
catalog:
  backend: postgres
`))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"server.log_level", "audio.block_size", "catalog.postgres_dsn"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %q, got: %v", want, err)
		}
	}
}
