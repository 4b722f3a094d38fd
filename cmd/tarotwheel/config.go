package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tarotwheel/wheel"
)

// Config is the top-level YAML configuration for the tarotwheel daemon.
//
// Precedence, lowest first: DefaultConfig, config file, environment
// (TAROTWHEEL_*), flags. Validate is called once after all layers are applied
// so the rest of the code can assume a well-formed config.
type Config struct {
	// Wheel geometry
	Wheel WheelConfig `yaml:"wheel"`

	// Release animation feel
	Motion MotionConfig `yaml:"motion"`

	// Card labels
	Deck DeckConfig `yaml:"deck"`

	// Frame loop
	Daemon DaemonConfig `yaml:"daemon"`

	// Physical pointer devices
	Input InputConfig `yaml:"input"`

	// IPC configuration (scripted pointer events)
	IPC IPCConfig `yaml:"ipc"`

	// State WebSocket
	StateWS StateWSConfig `yaml:"state_ws"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type WheelConfig struct {
	SlotCount     int     `yaml:"slot_count"`
	ViewportWidth float64 `yaml:"viewport_width"`
	CardWidth     float64 `yaml:"card_width"`
	CardHeight    float64 `yaml:"card_height"`
	Visibility    float64 `yaml:"visibility"`
}

// MotionConfig is the YAML form of wheel.Tuning. Durations are in
// milliseconds; zero values take the library defaults.
type MotionConfig struct {
	DecayTauSec           float64 `yaml:"decay_tau_sec"`
	StopVelocity          float64 `yaml:"stop_velocity"`
	MaxDecayMS            int     `yaml:"max_decay_ms"`
	SpringFrequency       float64 `yaml:"spring_frequency"`
	SpringDamping         float64 `yaml:"spring_damping"`
	SnapTolerance         float64 `yaml:"snap_tolerance"`
	SnapVelocityTolerance float64 `yaml:"snap_velocity_tolerance"`
	MaxSnapMS             int     `yaml:"max_snap_ms"`
}

// DeckConfig names the cards. Use either an inline list of keys or a JSON
// deck file, not both. When neither is set slots are labelled card-<i>.
type DeckConfig struct {
	Cards []string `yaml:"cards,omitempty"`
	File  string   `yaml:"file,omitempty"`
}

type DaemonConfig struct {
	UpdateHz int `yaml:"update_hz"`
}

type InputConfig struct {
	Devices          []string `yaml:"devices,omitempty"`
	PixelsPerCount   float64  `yaml:"pixels_per_count"`
	VelocityWindowMS int      `yaml:"velocity_window_ms"`
	IdleReleaseMS    int      `yaml:"idle_release_ms"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type StateWSConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Addr            string `yaml:"addr"`
	Path            string `yaml:"path"`
	FrameCoalesceMS int    `yaml:"frame_coalesce_ms"`
	SendBuf         int    `yaml:"send_buf,omitempty"`
	BroadcastBuf    int    `yaml:"broadcast_buf,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	tu := wheel.DefaultTuning()
	return Config{
		Wheel: WheelConfig{
			SlotCount:     defaultSlotCount,
			ViewportWidth: defaultViewportWidth,
			CardWidth:     defaultCardWidth,
			CardHeight:    defaultCardHeight,
			Visibility:    defaultVisibility,
		},
		Motion: MotionConfig{
			DecayTauSec:           tu.DecayTau,
			StopVelocity:          tu.StopVelocity,
			MaxDecayMS:            int(tu.MaxDecay / time.Millisecond),
			SpringFrequency:       tu.SpringFrequency,
			SpringDamping:         tu.SpringDamping,
			SnapTolerance:         tu.SnapTolerance,
			SnapVelocityTolerance: tu.SnapVelocityTolerance,
			MaxSnapMS:             int(tu.MaxSnap / time.Millisecond),
		},
		Daemon: DaemonConfig{
			UpdateHz: defaultUpdateHz,
		},
		Input: InputConfig{
			PixelsPerCount:   defaultPixelsPerCount,
			VelocityWindowMS: defaultVelocityWindowMS,
			IdleReleaseMS:    defaultIdleReleaseMS,
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocketPath,
		},
		StateWS: StateWSConfig{
			Enabled:         true,
			Addr:            defaultStateWSAddr,
			Path:            defaultStateWSPath,
			FrameCoalesceMS: defaultFrameCoalesceMS,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// EnvOverrides are read from TAROTWHEEL_* variables. Unset variables leave
// their field nil and are not applied.
type EnvOverrides struct {
	SlotCount     *int     `env:"SLOT_COUNT"`
	ViewportWidth *float64 `env:"VIEWPORT_WIDTH"`
	UpdateHz      *int     `env:"UPDATE_HZ"`

	InputDevices   []string `env:"INPUT_DEVICES" envSeparator:","`
	PixelsPerCount *float64 `env:"PIXELS_PER_COUNT"`

	DeckFile *string `env:"DECK_FILE"`

	IPCSocketPath *string `env:"IPC_SOCKET"`
	StateWSAddr   *string `env:"STATE_WS_ADDR"`

	LogLevel  *string `env:"LOG_LEVEL"`
	LogFormat *string `env:"LOG_FORMAT"`
}

const envPrefix = "TAROTWHEEL_"

// LoadEnvOverrides reads overrides from the process environment. When
// dotenvPath is non-empty that file is loaded first; variables already set in
// the environment win over the file.
func LoadEnvOverrides(dotenvPath string) (EnvOverrides, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(ExpandPath(dotenvPath)); err != nil {
			return EnvOverrides{}, fmt.Errorf("load env file: %w", err)
		}
	}
	var o EnvOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: envPrefix}); err != nil {
		return EnvOverrides{}, fmt.Errorf("parse env: %w", err)
	}
	return o, nil
}

// Apply merges the environment overrides into cfg.
func (o EnvOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.SlotCount != nil {
		cfg.Wheel.SlotCount = *o.SlotCount
	}
	if o.ViewportWidth != nil {
		cfg.Wheel.ViewportWidth = *o.ViewportWidth
	}
	if o.UpdateHz != nil {
		cfg.Daemon.UpdateHz = *o.UpdateHz
	}
	if len(o.InputDevices) > 0 {
		cfg.Input.Devices = o.InputDevices
	}
	if o.PixelsPerCount != nil {
		cfg.Input.PixelsPerCount = *o.PixelsPerCount
	}
	if o.DeckFile != nil {
		cfg.Deck.File = *o.DeckFile
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.StateWSAddr != nil {
		cfg.StateWS.Addr = *o.StateWSAddr
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.LogFormat != nil {
		cfg.Logging.Format = *o.LogFormat
	}
}

// FlagOverrides applies overrides from flags on top of file and environment.
// Each override is only applied if its pointer is non-nil, even when it holds
// a zero value. main.go decides which flags exist and which were set.
type FlagOverrides struct {
	SlotCount     *int
	ViewportWidth *float64
	UpdateHz      *int

	InputDevice *string

	DeckFile *string

	IPCSocketPath *string
	StateWSAddr   *string

	LogLevel *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is ignored.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.SlotCount != nil {
		cfg.Wheel.SlotCount = *o.SlotCount
	}
	if o.ViewportWidth != nil {
		cfg.Wheel.ViewportWidth = *o.ViewportWidth
	}
	if o.UpdateHz != nil {
		cfg.Daemon.UpdateHz = *o.UpdateHz
	}
	if o.InputDevice != nil {
		if *o.InputDevice == "" {
			cfg.Input.Devices = nil
		} else {
			cfg.Input.Devices = []string{*o.InputDevice}
		}
	}
	if o.DeckFile != nil {
		cfg.Deck.File = *o.DeckFile
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.StateWSAddr != nil {
		cfg.StateWS.Addr = *o.StateWSAddr
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Geometry is checked by the same code that derives it.
	if _, err := wheel.NewConfig(c.ToLayout()); err != nil {
		return fmt.Errorf("wheel: %w", err)
	}

	if err := c.ToTuning().Validate(); err != nil {
		return fmt.Errorf("motion: %w", err)
	}

	// Deck
	if len(c.Deck.Cards) > 0 && c.Deck.File != "" {
		return errors.New("deck.cards and deck.file are mutually exclusive")
	}
	if n := len(c.Deck.Cards); n > 0 && n != c.Wheel.SlotCount {
		return fmt.Errorf("deck.cards has %d entries, wheel.slot_count is %d", n, c.Wheel.SlotCount)
	}
	for i, k := range c.Deck.Cards {
		if k == "" {
			return fmt.Errorf("deck.cards[%d] is empty", i)
		}
	}

	// Daemon
	if c.Daemon.UpdateHz <= 0 || c.Daemon.UpdateHz > 1000 {
		return errors.New("daemon.update_hz must be between 1 and 1000")
	}

	// Input
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}
	if !(c.Input.PixelsPerCount > 0) {
		return errors.New("input.pixels_per_count must be > 0")
	}
	if c.Input.VelocityWindowMS <= 0 {
		return errors.New("input.velocity_window_ms must be > 0")
	}
	if c.Input.IdleReleaseMS <= 0 {
		return errors.New("input.idle_release_ms must be > 0")
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// State WS
	if c.StateWS.Enabled {
		if c.StateWS.Addr == "" {
			return errors.New("state_ws.addr must not be empty when state_ws.enabled is true")
		}
		if c.StateWS.Path == "" || c.StateWS.Path[0] != '/' {
			return errors.New("state_ws.path must start with /")
		}
		if c.StateWS.FrameCoalesceMS < 0 {
			return errors.New("state_ws.frame_coalesce_ms must be >= 0")
		}
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if f := c.Logging.Format; f != "" && f != "text" && f != "json" {
		return fmt.Errorf("logging.format must be %q or %q", "text", "json")
	}

	return nil
}

// ToLayout converts the wheel section into library layout inputs.
func (c *Config) ToLayout() wheel.Layout {
	return wheel.Layout{
		SlotCount:     c.Wheel.SlotCount,
		ViewportWidth: c.Wheel.ViewportWidth,
		CardWidth:     c.Wheel.CardWidth,
		CardHeight:    c.Wheel.CardHeight,
		Visibility:    c.Wheel.Visibility,
	}
}

// ToTuning converts the motion section into library tuning with defaults
// filled in. MaxDt follows the frame loop: up to ~2 ticks worth of time is
// integrated in one step.
func (c *Config) ToTuning() wheel.Tuning {
	tu := wheel.Tuning{
		DecayTau:              c.Motion.DecayTauSec,
		StopVelocity:          c.Motion.StopVelocity,
		MaxDecay:              time.Duration(c.Motion.MaxDecayMS) * time.Millisecond,
		SpringFrequency:       c.Motion.SpringFrequency,
		SpringDamping:         c.Motion.SpringDamping,
		SnapTolerance:         c.Motion.SnapTolerance,
		SnapVelocityTolerance: c.Motion.SnapVelocityTolerance,
		MaxSnap:               time.Duration(c.Motion.MaxSnapMS) * time.Millisecond,
	}
	if c.Daemon.UpdateHz > 0 {
		tu.MaxDt = 2.0 / float64(c.Daemon.UpdateHz)
	}
	return tu.WithDefaults()
}

// LoadDeck resolves the deck section into card labels for every slot.
func (c *Config) LoadDeck() (Deck, error) {
	switch {
	case c.Deck.File != "":
		d, err := loadDeckFile(c.Deck.File)
		if err != nil {
			return Deck{}, err
		}
		if d.Len() != c.Wheel.SlotCount {
			return Deck{}, fmt.Errorf("deck file %s has %d cards, wheel.slot_count is %d", c.Deck.File, d.Len(), c.Wheel.SlotCount)
		}
		return d, nil
	case len(c.Deck.Cards) > 0:
		return deckFromKeys(c.Deck.Cards), nil
	default:
		return defaultDeck(c.Wheel.SlotCount), nil
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
