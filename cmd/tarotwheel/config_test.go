package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tarotwheel/wheel"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Wheel.SlotCount != 40 || cfg.Wheel.CardWidth != 100 || cfg.Wheel.CardHeight != 167 || cfg.Wheel.Visibility != 0.7 {
		t.Fatalf("unexpected wheel defaults: %+v", cfg.Wheel)
	}
}

func TestLoadConfigFile_PartialFileKeepsDefaults(t *testing.T) {
	p := writeFile(t, "tarotwheel.yaml", `
wheel:
  slot_count: 22
motion:
  decay_tau_sec: 0.3
deck:
  file: /tmp/major.json
logging:
  level: debug
`)
	cfg, err := LoadConfigFile(p)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Wheel.SlotCount != 22 {
		t.Fatalf("expected slot_count=22, got %d", cfg.Wheel.SlotCount)
	}
	if cfg.Wheel.ViewportWidth != defaultViewportWidth {
		t.Fatalf("expected default viewport width, got %v", cfg.Wheel.ViewportWidth)
	}
	if cfg.Motion.DecayTauSec != 0.3 {
		t.Fatalf("expected decay_tau_sec=0.3, got %v", cfg.Motion.DecayTauSec)
	}
	if cfg.Motion.SpringFrequency != wheel.DefaultSpringFrequency {
		t.Fatalf("expected default spring frequency, got %v", cfg.Motion.SpringFrequency)
	}
	if cfg.Deck.File != "/tmp/major.json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected deck/logging: %+v %+v", cfg.Deck, cfg.Logging)
	}
	if cfg.IPC.SocketPath != defaultIPCSocketPath {
		t.Fatalf("expected default socket path, got %q", cfg.IPC.SocketPath)
	}
}

func TestLoadConfigFile_RejectsUnknownFields(t *testing.T) {
	p := writeFile(t, "bad.yaml", "wheel:\n  slot_cuont: 12\n")
	if _, err := LoadConfigFile(p); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}

func TestLoadConfigFile_RejectsTrailingDocument(t *testing.T) {
	p := writeFile(t, "two.yaml", "wheel:\n  slot_count: 12\n---\nwheel:\n  slot_count: 13\n")
	_, err := LoadConfigFile(p)
	if err == nil || !strings.Contains(err.Error(), "trailing document") {
		t.Fatalf("expected trailing document error, got %v", err)
	}
}

func TestLoadConfigFile_MissingFile(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected a not-exist error, got %v", err)
	}
	if _, err := LoadConfigFile(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr error  // checked with errors.Is when set
		wantSub string // checked with strings.Contains when set
	}{
		{"zero slots", func(c *Config) { c.Wheel.SlotCount = 0 }, wheel.ErrInvalidSlotCount, ""},
		{"zero viewport", func(c *Config) { c.Wheel.ViewportWidth = 0 }, wheel.ErrInvalidViewport, ""},
		{"visibility above one", func(c *Config) { c.Wheel.Visibility = 1.5 }, wheel.ErrInvalidVisibility, ""},
		{"underdamped spring", func(c *Config) { c.Motion.SpringDamping = 0.5 }, wheel.ErrInvalidTuning, ""},
		{"deck too short", func(c *Config) { c.Deck.Cards = []string{"a", "b"} }, nil, "deck.cards has 2 entries"},
		{"deck cards and file", func(c *Config) {
			c.Wheel.SlotCount = 1
			c.Deck.Cards = []string{"a"}
			c.Deck.File = "deck.json"
		}, nil, "mutually exclusive"},
		{"update hz too high", func(c *Config) { c.Daemon.UpdateHz = 5000 }, nil, "daemon.update_hz"},
		{"empty device", func(c *Config) { c.Input.Devices = []string{""} }, nil, "input.devices[0]"},
		{"no pixels per count", func(c *Config) { c.Input.PixelsPerCount = 0 }, nil, "pixels_per_count"},
		{"empty socket", func(c *Config) { c.IPC.SocketPath = "" }, nil, "ipc.socket_path"},
		{"relative ws path", func(c *Config) { c.StateWS.Path = "ws" }, nil, "state_ws.path"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, nil, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, nil, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if tc.wantSub != "" && !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("expected error containing %q, got %v", tc.wantSub, err)
			}
		})
	}

	// State WS settings are ignored while it is disabled.
	cfg := DefaultConfig()
	cfg.StateWS.Enabled = false
	cfg.StateWS.Addr = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled state ws should not need an address: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TAROTWHEEL_SLOT_COUNT", "12")
	t.Setenv("TAROTWHEEL_INPUT_DEVICES", "/dev/input/event3,/dev/input/event4")
	t.Setenv("TAROTWHEEL_IPC_SOCKET", "/run/tarotwheel.sock")

	o, err := LoadEnvOverrides("")
	if err != nil {
		t.Fatalf("LoadEnvOverrides: %v", err)
	}
	if o.ViewportWidth != nil {
		t.Fatalf("expected unset variable to stay nil, got %v", *o.ViewportWidth)
	}

	cfg := DefaultConfig()
	o.Apply(&cfg)

	if cfg.Wheel.SlotCount != 12 {
		t.Fatalf("expected slot_count=12, got %d", cfg.Wheel.SlotCount)
	}
	if cfg.Wheel.ViewportWidth != defaultViewportWidth {
		t.Fatalf("expected viewport untouched, got %v", cfg.Wheel.ViewportWidth)
	}
	if len(cfg.Input.Devices) != 2 || cfg.Input.Devices[1] != "/dev/input/event4" {
		t.Fatalf("unexpected devices: %v", cfg.Input.Devices)
	}
	if cfg.IPC.SocketPath != "/run/tarotwheel.sock" {
		t.Fatalf("unexpected socket path: %q", cfg.IPC.SocketPath)
	}
}

func TestEnvOverrides_BadValue(t *testing.T) {
	t.Setenv("TAROTWHEEL_UPDATE_HZ", "fast")
	if _, err := LoadEnvOverrides(""); err == nil {
		t.Fatalf("expected parse error for non-numeric update hz")
	}
}

func TestEnvOverrides_DotenvFile(t *testing.T) {
	// The process environment wins over the file.
	t.Setenv("TAROTWHEEL_LOG_LEVEL", "warn")
	t.Cleanup(func() { os.Unsetenv("TAROTWHEEL_LOG_FORMAT") })

	p := writeFile(t, "tarotwheel.env", "TAROTWHEEL_LOG_LEVEL=debug\nTAROTWHEEL_LOG_FORMAT=json\n")
	o, err := LoadEnvOverrides(p)
	if err != nil {
		t.Fatalf("LoadEnvOverrides: %v", err)
	}

	cfg := DefaultConfig()
	o.Apply(&cfg)
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected environment to win, got level %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected format from env file, got %q", cfg.Logging.Format)
	}

	if _, err := LoadEnvOverrides(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatalf("expected error for missing env file")
	}
}

func TestFlagOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Input.Devices = []string{"/dev/input/event1", "/dev/input/event2"}

	n := 24
	empty := ""
	level := "debug"
	FlagOverrides{SlotCount: &n, InputDevice: &empty, LogLevel: &level}.Apply(&cfg)

	if cfg.Wheel.SlotCount != 24 {
		t.Fatalf("expected slot_count=24, got %d", cfg.Wheel.SlotCount)
	}
	if len(cfg.Input.Devices) != 0 {
		t.Fatalf("expected an empty -input-device to disable input, got %v", cfg.Input.Devices)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected log level override, got %q", cfg.Logging.Level)
	}
	if cfg.IPC.SocketPath != defaultIPCSocketPath {
		t.Fatalf("expected nil override to be ignored, got %q", cfg.IPC.SocketPath)
	}

	dev := "/dev/input/event9"
	FlagOverrides{InputDevice: &dev}.Apply(&cfg)
	if len(cfg.Input.Devices) != 1 || cfg.Input.Devices[0] != dev {
		t.Fatalf("expected single device override, got %v", cfg.Input.Devices)
	}
}

func TestConfig_ToTuning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Motion = MotionConfig{DecayTauSec: 0.25}
	cfg.Daemon.UpdateHz = 50

	tu := cfg.ToTuning()
	if tu.DecayTau != 0.25 {
		t.Fatalf("expected decay tau 0.25, got %v", tu.DecayTau)
	}
	if tu.MaxSnap != wheel.DefaultMaxSnap || tu.SpringDamping != wheel.DefaultSpringDamping {
		t.Fatalf("expected zero fields to take defaults, got %+v", tu)
	}
	if tu.MaxDt != 0.04 {
		t.Fatalf("expected MaxDt of two ticks (0.04), got %v", tu.MaxDt)
	}
}

func TestConfig_LoadDeck(t *testing.T) {
	cfg := DefaultConfig()
	d, err := cfg.LoadDeck()
	if err != nil {
		t.Fatalf("LoadDeck: %v", err)
	}
	if d.Len() != 40 || d.Key(0) != "card-0" || d.Key(39) != "card-39" {
		t.Fatalf("unexpected default deck: len=%d first=%q last=%q", d.Len(), d.Key(0), d.Key(39))
	}
	if d.Key(40) != "" || d.Key(-1) != "" {
		t.Fatalf("expected out-of-range keys to be empty")
	}

	cfg.Wheel.SlotCount = 3
	cfg.Deck.Cards = []string{"fool", "magician", "priestess"}
	d, err = cfg.LoadDeck()
	if err != nil {
		t.Fatalf("LoadDeck inline: %v", err)
	}
	if d.Key(1) != "magician" {
		t.Fatalf("expected inline keys, got %q", d.Key(1))
	}

	cfg.Deck.Cards = nil
	cfg.Deck.File = writeFile(t, "deck.json", `[
		{"id": "the_fool", "name": "The Fool"},
		{"id": "the_magician", "name": "The Magician"},
		{"id": "the_high_priestess", "name": "The High Priestess"}
	]`)
	d, err = cfg.LoadDeck()
	if err != nil {
		t.Fatalf("LoadDeck file: %v", err)
	}
	if d.Key(2) != "the_high_priestess" || d.Cards[0].Name != "The Fool" {
		t.Fatalf("unexpected deck from file: %+v", d.Cards)
	}

	cfg.Wheel.SlotCount = 4
	if _, err := cfg.LoadDeck(); err == nil || !strings.Contains(err.Error(), "has 3 cards") {
		t.Fatalf("expected size mismatch error, got %v", err)
	}
}

func TestLoadDeckFile_Errors(t *testing.T) {
	if _, err := loadDeckFile(writeFile(t, "bad.json", `{"id": "x"}`)); err == nil {
		t.Fatalf("expected error for non-array deck")
	}
	if _, err := loadDeckFile(writeFile(t, "noid.json", `[{"name": "Nameless"}]`)); err == nil {
		t.Fatalf("expected error for card without id")
	}
}
