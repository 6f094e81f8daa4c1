package core

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration wraps time.Duration so it can be written as "10s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type WindowConfig struct {
	Name   string `toml:"name"`
	PosX   uint32 `toml:"pos_x"`
	PosY   uint32 `toml:"pos_y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type RendererConfig struct {
	// Either "deferred", "forward" or "compute".
	Kind           string `toml:"kind"`
	FramesInFlight uint32 `toml:"frames_in_flight"`
	VSync          bool   `toml:"vsync"`
	Validation     bool   `toml:"validation"`
	GUI            bool   `toml:"gui"`
	// Upper bound for a single fence wait. Exceeding it is treated as a lost device.
	FenceTimeout Duration `toml:"fence_timeout"`
	// Waits for the presentation queue to drain after every present.
	WaitIdleAfterPresent bool `toml:"wait_idle_after_present"`
	// Side of the grid scanned by the compute renderer, at most 256.
	ScanLength uint32 `toml:"scan_length"`
	VerifyScan bool   `toml:"verify_scan"`
}

type ShaderConfig struct {
	Dir            string   `toml:"dir"`
	CompileCommand []string `toml:"compile_command"`
	Watch          bool     `toml:"watch"`
}

type SceneConfig struct {
	Instances uint32  `toml:"instances"`
	Spacing   float32 `toml:"spacing"`
	Texture   string  `toml:"texture"`
}

type LightConfig struct {
	Direction    [3]float32 `toml:"direction"`
	Position     [3]float32 `toml:"position"`
	BaseColor    [3]float32 `toml:"base_color"`
	AnimateColor bool       `toml:"animate_color"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type Config struct {
	Window   WindowConfig   `toml:"window"`
	Renderer RendererConfig `toml:"renderer"`
	Shaders  ShaderConfig   `toml:"shaders"`
	Scene    SceneConfig    `toml:"scene"`
	Light    LightConfig    `toml:"light"`
	Log      LogConfig      `toml:"log"`
}

func DefaultConfig() *Config {
	return &Config{
		Window: WindowConfig{
			Name:   "GBuffer",
			PosX:   100,
			PosY:   100,
			Width:  1024,
			Height: 1024,
		},
		Renderer: RendererConfig{
			Kind:                 "deferred",
			FramesInFlight:       2,
			FenceTimeout:         Duration{10 * time.Second},
			WaitIdleAfterPresent: true,
			ScanLength:           16,
		},
		Shaders: ShaderConfig{
			Dir:            "assets/shaders",
			CompileCommand: []string{"mage", "build:shaders"},
			Watch:          true,
		},
		Scene: SceneConfig{
			Instances: 3,
			Spacing:   2.5,
		},
		Light: LightConfig{
			Direction:    [3]float32{0.1, -1.0, -0.2},
			Position:     [3]float32{0.0, 1.0, 1.0},
			BaseColor:    [3]float32{0.9, 0.92, 1.0},
			AnimateColor: true,
		},
		Log: LogConfig{
			Level: "debug",
		},
	}
}

// LoadConfig reads a TOML file on top of the defaults. A missing file is
// not an error: the defaults are returned and a warning is logged.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			LogWarn("config file '%s' not found, using defaults", path)
			return cfg, nil
		}
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config '%s': %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return fmt.Errorf("window size must be non-zero, got %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Renderer.FramesInFlight < 1 {
		return fmt.Errorf("frames_in_flight must be at least 1")
	}
	if c.Renderer.FenceTimeout.Duration <= 0 {
		return fmt.Errorf("fence_timeout must be positive")
	}
	switch c.Renderer.Kind {
	case "deferred", "forward":
	case "compute":
		if c.Renderer.ScanLength < 1 || c.Renderer.ScanLength > 256 {
			return fmt.Errorf("scan_length must be in [1, 256], got %d", c.Renderer.ScanLength)
		}
	default:
		return fmt.Errorf("unknown renderer kind '%s'", c.Renderer.Kind)
	}
	return nil
}
