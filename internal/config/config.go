package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/Versifine/mecharig/internal/anim"
	"github.com/Versifine/mecharig/internal/camera"
	"github.com/Versifine/mecharig/internal/movement"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	ModeServer = "server"
	ModeClient = "client"

	// EnvPrefix is prepended to every environment override, e.g.
	// MECHARIG_CAMERA_SENSITIVITY.
	EnvPrefix = "MECHARIG_"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Mode      string          `yaml:"mode" env:"MODE"`
	Listen    ListenConfig    `yaml:"listen" envPrefix:"LISTEN_"`
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOG_"`
	Tick      TickConfig      `yaml:"tick" envPrefix:"TICK_"`
	Workers   int             `yaml:"workers" env:"WORKERS"`
	Profile   ProfileConfig   `yaml:"profile" envPrefix:"PROFILE_"`
	Clips     ClipsConfig     `yaml:"clips" envPrefix:"CLIPS_"`
	Camera    CameraConfig    `yaml:"camera" envPrefix:"CAMERA_"`
	Movement  MovementConfig  `yaml:"movement" envPrefix:"MOVEMENT_"`
	Reporting ReportingConfig `yaml:"reporting" envPrefix:"SENTRY_"`
	Debug     DebugConfig     `yaml:"debug" envPrefix:"DEBUG_"`
}

// ListenConfig is where the server accepts players.
type ListenConfig struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`
}

// ServerConfig is where the client connects.
type ServerConfig struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	File   string `yaml:"file" env:"FILE"`
}

type TickConfig struct {
	RateHz int `yaml:"rate_hz" env:"RATE_HZ"`
}

type ProfileConfig struct {
	Name      string `yaml:"name" env:"NAME"`
	IdleLoops bool   `yaml:"idle_loops" env:"IDLE_LOOPS"`
}

// ClipsConfig maps clip ids to files under Base and motion states to clip
// ids.
type ClipsConfig struct {
	Base   string            `yaml:"base" env:"BASE"`
	Files  map[string]string `yaml:"files"`
	States map[string]string `yaml:"states"`
}

type CameraConfig struct {
	Sensitivity   float32 `yaml:"sensitivity" env:"SENSITIVITY"`
	PitchMargin   float32 `yaml:"pitch_margin" env:"PITCH_MARGIN"`
	HeightOffset  float32 `yaml:"height_offset" env:"HEIGHT_OFFSET"`
	LateralOffset float32 `yaml:"lateral_offset" env:"LATERAL_OFFSET"`
	FarDistance   float32 `yaml:"far_distance" env:"FAR_DISTANCE"`
	NearDistance  float32 `yaml:"near_distance" env:"NEAR_DISTANCE"`
}

type MovementConfig struct {
	Speed            float32 `yaml:"speed" env:"SPEED"`
	YawSensitivity   float32 `yaml:"yaw_sensitivity" env:"YAW_SENSITIVITY"`
	RenormalizeEvery int     `yaml:"renormalize_every" env:"RENORMALIZE_EVERY"`
}

// ReportingConfig configures Sentry. An empty DSN disables reporting.
type ReportingConfig struct {
	DSN         string  `yaml:"dsn" env:"DSN"`
	Environment string  `yaml:"environment" env:"ENVIRONMENT"`
	SampleRate  float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

type DebugConfig struct {
	// StatsAddr serves runtime charts when set, e.g. "localhost:18066".
	StatsAddr string `yaml:"stats_addr" env:"STATS_ADDR"`
	// ConsolePulse is how long one movement key press stays held in the
	// client console.
	ConsolePulse time.Duration `yaml:"console_pulse" env:"CONSOLE_PULSE"`
	// WatchConfig reloads tuning sections when the config file changes.
	WatchConfig bool `yaml:"watch_config" env:"WATCH_CONFIG"`
}

// Default returns a config that runs as is.
func Default() *Config {
	ct := camera.DefaultTuning()
	mt := movement.DefaultTuning()
	return &Config{
		Mode:    ModeServer,
		Listen:  ListenConfig{Host: "0.0.0.0", Port: 19133},
		Server:  ServerConfig{Host: "127.0.0.1", Port: 19133},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Tick:    TickConfig{RateHz: 30},
		Workers: 4,
		Profile: ProfileConfig{Name: anim.ProfileCanonical},
		Clips: ClipsConfig{
			Base: "assets/mecha.glb/animations",
			Files: map[string]string{
				"idle_2":  "idle_2.anim",
				"walk_5":  "walk_5.anim",
				"dash_0":  "dash_0.anim",
				"punch_4": "punch_4.anim",
			},
			States: map[string]string{
				"idle":     "idle_2",
				"walking":  "walk_5",
				"dashing":  "dash_0",
				"punching": "punch_4",
				"jumping":  "dash_0",
			},
		},
		Camera: CameraConfig{
			Sensitivity:   ct.Sensitivity,
			PitchMargin:   ct.PitchMargin,
			HeightOffset:  ct.HeightOffset,
			LateralOffset: ct.LateralOffset,
			FarDistance:   ct.FarDistance,
			NearDistance:  ct.NearDistance,
		},
		Movement: MovementConfig{
			Speed:            mt.Speed,
			YawSensitivity:   mt.YawSensitivity,
			RenormalizeEvery: mt.RenormalizeEvery,
		},
		Reporting: ReportingConfig{Environment: "development", SampleRate: 1},
		Debug:     DebugConfig{ConsolePulse: 180 * time.Millisecond, WatchConfig: true},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value. Map sections given in the file replace the default maps.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	// yaml merges into non-nil maps; clip tables come from the file whole.
	if file.Clips.Files != nil {
		cfg.Clips.Files = file.Clips.Files
	}
	if file.Clips.States != nil {
		cfg.Clips.States = file.Clips.States
	}
	return cfg, nil
}

// ApplyEnv overrides fields from MECHARIG_* environment variables.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadAll is Load, ApplyEnv and Validate in one call.
func LoadAll(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Mode {
	case ModeServer, ModeClient:
	default:
		errs = append(errs, fmt.Errorf("mode %q is not %q or %q", c.Mode, ModeServer, ModeClient))
	}
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Errorf("listen.port %d out of range", c.Listen.Port))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Logging.Format {
	case "", "console", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is unknown", c.Logging.Format))
	}
	if c.Tick.RateHz <= 0 || c.Tick.RateHz > 1000 {
		errs = append(errs, fmt.Errorf("tick.rate_hz %d out of range", c.Tick.RateHz))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers %d must be at least 1", c.Workers))
	}
	if c.Reporting.SampleRate < 0 || c.Reporting.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("reporting.sample_rate %v out of [0, 1]", c.Reporting.SampleRate))
	}
	if c.Debug.ConsolePulse < 0 {
		errs = append(errs, fmt.Errorf("debug.console_pulse %s is negative", c.Debug.ConsolePulse))
	}
	if err := c.Camera.Tuning().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Movement.Tuning().Validate(); err != nil {
		errs = append(errs, err)
	}

	profile, err := c.Profile.Resolve()
	if err != nil {
		errs = append(errs, err)
	} else if lib, err := c.Clips.Library(); err != nil {
		errs = append(errs, err)
	} else if byState, err := c.Clips.StateClips(); err != nil {
		errs = append(errs, err)
	} else if _, err := anim.ResolveClips(lib, profile, byState); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (c ListenConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c TickConfig) Interval() time.Duration {
	if c.RateHz <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(c.RateHz)
}

func (p ProfileConfig) Resolve() (anim.Profile, error) {
	return anim.ProfileByName(p.Name, p.IdleLoops)
}

func (c ClipsConfig) Library() (*anim.Library, error) {
	return anim.NewLibrary(c.Base, c.Files)
}

// StateClips parses the state names of the states section.
func (c ClipsConfig) StateClips() (map[anim.MotionState]string, error) {
	names := make([]string, 0, len(c.States))
	for name := range c.States {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[anim.MotionState]string, len(c.States))
	for _, name := range names {
		s, err := anim.ParseMotionState(name)
		if err != nil {
			return nil, fmt.Errorf("clips.states: %w", err)
		}
		out[s] = c.States[name]
	}
	return out, nil
}

func (c CameraConfig) Tuning() camera.Tuning {
	return camera.Tuning{
		Sensitivity:   c.Sensitivity,
		PitchMargin:   c.PitchMargin,
		HeightOffset:  c.HeightOffset,
		LateralOffset: c.LateralOffset,
		FarDistance:   c.FarDistance,
		NearDistance:  c.NearDistance,
	}
}

func (c MovementConfig) Tuning() movement.Tuning {
	return movement.Tuning{
		Speed:            c.Speed,
		YawSensitivity:   c.YawSensitivity,
		RenormalizeEvery: c.RenormalizeEvery,
	}
}
