package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Versifine/mecharig/internal/client"
	"github.com/Versifine/mecharig/internal/config"
	"github.com/Versifine/mecharig/internal/debug"
	"github.com/Versifine/mecharig/internal/event"
	"github.com/Versifine/mecharig/internal/logger"
	"github.com/Versifine/mecharig/internal/report"
	"github.com/Versifine/mecharig/internal/server"
	"github.com/Versifine/mecharig/internal/world"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the config file")
	mode := flag.String("mode", "", "run as server or client, overriding the config")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *mode)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	}); err != nil {
		slog.Error("Failed to init logger", "error", err)
		os.Exit(1)
	}
	defer logger.Close()

	if err := report.Init(report.Config{
		DSN:         cfg.Reporting.DSN,
		Environment: cfg.Reporting.Environment,
		SampleRate:  cfg.Reporting.SampleRate,
		Release:     "mecharig@" + version,
	}); err != nil {
		slog.Warn("Error reporting unavailable", "error", err)
	}
	defer report.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Mode {
	case config.ModeClient:
		err = runClient(ctx, cfg)
	default:
		err = runServer(ctx, cfg, *configPath)
	}
	if err != nil {
		slog.Error("Stopped with error", "mode", cfg.Mode, "error", err)
		report.Flush()
		logger.Close()
		os.Exit(1)
	}
}

func loadConfig(path, mode string) (*config.Config, error) {
	cfg, err := config.LoadAll(path)
	if err != nil {
		return nil, err
	}
	if mode != "" {
		cfg.Mode = mode
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newWorld builds the character world described by cfg.
func newWorld(cfg *config.Config, bus *event.Bus) (*world.World, error) {
	profile, err := cfg.Profile.Resolve()
	if err != nil {
		return nil, err
	}
	lib, err := cfg.Clips.Library()
	if err != nil {
		return nil, err
	}
	clips, err := cfg.Clips.StateClips()
	if err != nil {
		return nil, err
	}
	return world.New(world.Options{
		Profile:  profile,
		Library:  lib,
		Clips:    clips,
		Camera:   cfg.Camera.Tuning(),
		Movement: cfg.Movement.Tuning(),
		Workers:  cfg.Workers,
		Bus:      bus,
	})
}

// subscribeEvents logs transitions and reports corrupted state.
func subscribeEvents(bus *event.Bus) {
	bus.Subscribe(event.EventTransition, func(raw any) {
		evt, ok := raw.(event.TransitionEvent)
		if !ok {
			return
		}
		slog.Debug("Motion transition", "character", evt.Character, "from", evt.From, "event", evt.Event, "to", evt.To, "clip", evt.Clip, "looping", evt.Looping)
	})
	bus.Subscribe(event.EventStateCorrupted, func(raw any) {
		evt, ok := raw.(event.StateCorruptedEvent)
		if !ok {
			return
		}
		report.Message(fmt.Sprintf("corrupted motion state %d reset to idle", evt.Raw), map[string]string{
			"character": evt.Character.String(),
		})
	})
}

func runServer(ctx context.Context, cfg *config.Config, configPath string) error {
	bus := event.NewBus()
	subscribeEvents(bus)
	w, err := newWorld(cfg, bus)
	if err != nil {
		return err
	}

	stats := debug.StartStats(cfg.Debug.StatsAddr)
	defer stats.Stop()

	if cfg.Debug.WatchConfig {
		watcher, err := config.NewWatcher(configPath)
		if err != nil {
			slog.Warn("Config reload disabled", "error", err)
		} else {
			defer watcher.Close()
			go applyReloads(ctx, watcher, w)
		}
	}

	srv := server.NewServer(server.Options{
		ListenAddr: cfg.Listen.Addr(),
		Interval:   cfg.Tick.Interval(),
		World:      w,
	})
	return srv.Start(ctx)
}

// applyReloads swaps tuning and log level from changed config files. Other
// sections need a restart.
func applyReloads(ctx context.Context, watcher *config.Watcher, w *world.World) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-watcher.Updates:
			if !ok {
				return
			}
			if err := w.SetTuning(cfg.Movement.Tuning(), cfg.Camera.Tuning()); err != nil {
				slog.Warn("Rejected reloaded tuning", "error", err)
				continue
			}
			logger.SetLevel(cfg.Logging.Level)
			slog.Info("Config reloaded", "camera", cfg.Camera, "movement", cfg.Movement, "level", cfg.Logging.Level)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Config reload failed", "error", err)
		}
	}
}

func runClient(ctx context.Context, cfg *config.Config) error {
	c := client.New(client.Options{
		ServerAddr: cfg.Server.Addr(),
		MovePulse:  cfg.Debug.ConsolePulse,
		In:         os.Stdin,
		Out:        os.Stdout,
	})
	return c.Start(ctx)
}
