package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// opusRates lists the sample rates the monitor stream's opus encoder
// accepts. Other rates are allowed but disable the monitor.
var opusRates = []int{8000, 12000, 16000, 24000, 48000}

// clipExtensions lists the decodable soundboard formats.
var clipExtensions = []string{".wav", ".mp3", ".ogg"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found. Soft
// issues that the server can run around are logged as warnings instead.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	} else if !slices.Contains(opusRates, cfg.Audio.SampleRate) {
		slog.Warn("sample rate is not an opus rate; the monitor stream will be unavailable",
			"sample_rate", cfg.Audio.SampleRate,
			"opus_rates", opusRates,
		)
	}
	if cfg.Audio.BlockSize <= 0 || cfg.Audio.BlockSize&(cfg.Audio.BlockSize-1) != 0 {
		errs = append(errs, fmt.Errorf("audio.block_size %d must be a positive power of two", cfg.Audio.BlockSize))
	}
	if cfg.Audio.StatusInterval < 0 {
		errs = append(errs, fmt.Errorf("audio.status_interval %s must not be negative", cfg.Audio.StatusInterval))
	}

	// Catalog
	if !cfg.Catalog.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("catalog.backend %q is invalid; valid values: memory, postgres", cfg.Catalog.Backend))
	}
	if cfg.Catalog.Backend == CatalogPostgres && cfg.Catalog.PostgresDSN == "" {
		errs = append(errs, errors.New("catalog.postgres_dsn is required when catalog.backend is postgres"))
	}
	if cfg.Catalog.Backend == CatalogMemory && cfg.Catalog.PostgresDSN != "" {
		slog.Warn("catalog.postgres_dsn is set but the backend is memory; the DSN is ignored")
	}
	if cfg.Catalog.Backend == CatalogPostgres && len(cfg.Catalog.Voices) > 0 {
		slog.Warn("catalog.voices are seeded from the database when the backend is postgres; the inline list is ignored")
	}

	voiceIDsSeen := make(map[string]int, len(cfg.Catalog.Voices))
	for i, v := range cfg.Catalog.Voices {
		prefix := fmt.Sprintf("catalog.voices[%d]", i)
		if err := v.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
		}
		if v.ID != "" {
			if prev, ok := voiceIDsSeen[v.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of catalog.voices[%d]", prefix, v.ID, prev))
			}
			voiceIDsSeen[v.ID] = i
		}
	}

	// Soundboard
	if cfg.Soundboard.Volume < 0 || cfg.Soundboard.Volume > 1 {
		errs = append(errs, fmt.Errorf("soundboard.volume %.2f is out of range [0, 1]", cfg.Soundboard.Volume))
	}
	for i, clip := range cfg.Soundboard.Clips {
		prefix := fmt.Sprintf("soundboard.clips[%d]", i)
		if clip.Path == "" {
			errs = append(errs, fmt.Errorf("%s.path is required", prefix))
			continue
		}
		ext := strings.ToLower(filepath.Ext(clip.Path))
		if !slices.Contains(clipExtensions, ext) {
			errs = append(errs, fmt.Errorf("%s.path %q has unsupported extension %q; supported: %s",
				prefix, clip.Path, ext, strings.Join(clipExtensions, ", ")))
		}
	}

	// Monitor
	if cfg.Monitor.Bitrate < 0 {
		errs = append(errs, fmt.Errorf("monitor.bitrate %d must not be negative", cfg.Monitor.Bitrate))
	}

	return errors.Join(errs...)
}
