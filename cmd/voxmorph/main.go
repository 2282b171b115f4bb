// Command voxmorph is the main entry point for the voxmorph voice changer
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxmorph/voxmorph/internal/catalog"
	pgcatalog "github.com/voxmorph/voxmorph/internal/catalog/postgres"
	"github.com/voxmorph/voxmorph/internal/config"
	"github.com/voxmorph/voxmorph/internal/device"
	"github.com/voxmorph/voxmorph/internal/device/otodev"
	"github.com/voxmorph/voxmorph/internal/health"
	"github.com/voxmorph/voxmorph/internal/observe"
	"github.com/voxmorph/voxmorph/internal/resilience"
	"github.com/voxmorph/voxmorph/internal/server"
	"github.com/voxmorph/voxmorph/internal/session"
	"github.com/voxmorph/voxmorph/internal/soundboard"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxmorph: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxmorph: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxmorph starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voxmorph",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics := observe.DefaultMetrics()

	// ── Audio devices ─────────────────────────────────────────────────────────
	devices := device.NewRegistry()
	devices.Register(device.Info{
		ID:             "loopback",
		Name:           "Loopback (testing)",
		InputChannels:  1,
		OutputChannels: 1,
		SampleRate:     cfg.Audio.SampleRate,
	}, device.NewLoopback())
	devices.Register(device.Info{
		ID:             "oto",
		Name:           "System output",
		OutputChannels: 1,
		SampleRate:     cfg.Audio.SampleRate,
	}, otodev.New(device.SilenceSource{}))

	dev, err := devices.Lookup(cfg.Audio.Device)
	if err != nil {
		slog.Error("configured audio device not found", "device", cfg.Audio.Device, "err", err)
		return 1
	}

	// ── Voice catalog ─────────────────────────────────────────────────────────
	voices, memVoices, cleanupCatalog, err := buildCatalog(ctx, cfg)
	if err != nil {
		slog.Error("failed to build voice catalog", "err", err)
		return 1
	}
	defer cleanupCatalog()

	// ── Soundboard ────────────────────────────────────────────────────────────
	board, err := buildSoundboard(cfg)
	if err != nil {
		slog.Error("failed to load soundboard", "err", err)
		return 1
	}

	// ── Session manager ───────────────────────────────────────────────────────
	sessions, err := session.NewManager(session.Config{
		SampleRate:      cfg.Audio.SampleRate,
		BlockSize:       cfg.Audio.BlockSize,
		Device:          dev,
		Voices:          voices,
		Board:           board,
		MonitorBitrate:  cfg.Monitor.Bitrate,
		MonitorDisabled: !cfg.MonitorEnabled(),
		Metrics:         metrics,
		Logger:          logger,
	})
	if err != nil {
		slog.Error("failed to create session manager", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.VoicesChanged {
			if memVoices != nil {
				if err := memVoices.Replace(new.Catalog.Voices); err != nil {
					slog.Warn("voice catalog reload failed", "err", err)
				} else {
					slog.Info("voice catalog reloaded", "voices", len(new.Catalog.Voices), "changes", len(d.VoiceChanges))
				}
			} else {
				slog.Warn("catalog.voices changed but the backend is postgres; edit the database instead")
			}
		}
		if d.ClipsChanged {
			slog.Warn("soundboard.clips changed; a restart is required to reload clips")
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Control server ────────────────────────────────────────────────────────
	srv, err := server.New(server.Config{
		Addr:           cfg.Server.ListenAddr,
		Sessions:       sessions,
		Devices:        devices,
		StatusInterval: cfg.Audio.StatusInterval,
		Checkers: []health.Checker{
			{Name: "device", Check: func(context.Context) error {
				_, err := devices.Lookup(cfg.Audio.Device)
				return err
			}},
			{Name: "catalog", Check: func(ctx context.Context) error {
				_, err := voices.List(ctx)
				return err
			}},
		},
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		slog.Error("failed to create server", "err", err)
		return 1
	}

	printStartupSummary(cfg, board)
	slog.Info("server ready — press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildCatalog constructs the configured voice store. The returned *MemStore
// is non-nil only for the memory backend, where it backs config hot reload.
func buildCatalog(ctx context.Context, cfg *config.Config) (catalog.VoiceStore, *catalog.MemStore, func(), error) {
	switch cfg.Catalog.Backend {
	case config.CatalogPostgres:
		pool, err := pgxpool.New(ctx, cfg.Catalog.PostgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := pgcatalog.New(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("migrate voices table: %w", err)
		}
		// Fail fast on a dead database instead of stacking up connection
		// timeouts per control request.
		guarded := catalog.Guard(store, resilience.CircuitBreakerConfig{
			Name: "catalog",
		})
		slog.Info("voice catalog ready", "backend", "postgres")
		return guarded, nil, pool.Close, nil

	default:
		store, err := catalog.NewMemStore(cfg.Catalog.Voices)
		if err != nil {
			return nil, nil, nil, err
		}
		slog.Info("voice catalog ready", "backend", "memory", "voices", len(cfg.Catalog.Voices))
		return store, store, func() {}, nil
	}
}

// buildSoundboard decodes the configured clips. Returns nil when no clips
// are configured so sessions report the soundboard as unavailable.
func buildSoundboard(cfg *config.Config) (*soundboard.Board, error) {
	if len(cfg.Soundboard.Clips) == 0 {
		return nil, nil
	}
	board := soundboard.NewBoard()
	if cfg.Soundboard.Volume > 0 {
		board.SetVolume(cfg.Soundboard.Volume)
	}
	for _, entry := range cfg.Soundboard.Clips {
		clip, err := soundboard.LoadFile(entry.Path, cfg.Audio.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("clip %q: %w", entry.Path, err)
		}
		board.Add(clip)
		slog.Debug("soundboard clip loaded",
			"clip", clip.ID,
			"file", filepath.Base(entry.Path),
			"duration_s", fmt.Sprintf("%.2f", clip.Duration(cfg.Audio.SampleRate)),
		)
	}
	return board, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, board *soundboard.Board) {
	clips := 0
	if board != nil {
		clips = len(board.Clips())
	}
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         voxmorph — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Listen addr", cfg.Server.ListenAddr)
	printRow("Device", cfg.Audio.Device)
	printRow("Sample rate", fmt.Sprintf("%d Hz", cfg.Audio.SampleRate))
	printRow("Block size", fmt.Sprintf("%d samples", cfg.Audio.BlockSize))
	printRow("Catalog", string(cfg.Catalog.Backend))
	printRow("Soundboard", fmt.Sprintf("%d clips", clips))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-13s  : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the text logger with a settable level so the config
// watcher can change verbosity at runtime.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
