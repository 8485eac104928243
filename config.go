package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

const appName = "microbitcolor"

// LinkConfig selects and tunes the connection to the micro:bit.
type LinkConfig struct {
	Mode        string // "ble" or "relay"
	NamePrefix  string
	ScanTimeout time.Duration
	RelayAddr   string
}

// CameraConfig selects the frame source.
type CameraConfig struct {
	Source      string // "auto", "pipewire", "ffmpeg" or "screen"
	FrontDevice string
	BackDevice  string
	Facing      string // "user" or "environment"
	Mirror      bool
	FPS         int
}

// Device returns the V4L2 device for the current facing mode.
func (c CameraConfig) Device() string {
	if c.Facing == facingEnvironment {
		return c.BackDevice
	}
	return c.FrontDevice
}

// Config holds all runtime configuration.
type Config struct {
	Link        LinkConfig
	Camera      CameraConfig
	SnapshotDir string
	Verbose     bool
	Headless    bool
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("link.mode", "ble")
	v.SetDefault("link.name_prefix", "BBC micro:bit")
	v.SetDefault("link.scan_timeout", 5*time.Second)
	v.SetDefault("link.relay_addr", "")

	v.SetDefault("camera.source", "auto")
	v.SetDefault("camera.front_device", "/dev/video0")
	v.SetDefault("camera.back_device", "/dev/video1")
	v.SetDefault("camera.facing", facingUser)
	v.SetDefault("camera.mirror", false)
	v.SetDefault("camera.fps", 30)

	v.SetDefault("snapshot.dir", xdg.UserDirs.Pictures)
	v.SetDefault("verbose", false)
	v.SetDefault("headless", false)

	v.SetEnvPrefix(appName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(filepath.Join(xdg.ConfigHome, appName))
	v.AddConfigPath("/etc/" + appName)
	return v
}

// readConfig loads the optional config file. A missing file is not an error.
func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	return nil
}

func loadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		Link: LinkConfig{
			Mode:        v.GetString("link.mode"),
			NamePrefix:  v.GetString("link.name_prefix"),
			ScanTimeout: v.GetDuration("link.scan_timeout"),
			RelayAddr:   v.GetString("link.relay_addr"),
		},
		Camera: CameraConfig{
			Source:      v.GetString("camera.source"),
			FrontDevice: v.GetString("camera.front_device"),
			BackDevice:  v.GetString("camera.back_device"),
			Facing:      v.GetString("camera.facing"),
			Mirror:      v.GetBool("camera.mirror"),
			FPS:         v.GetInt("camera.fps"),
		},
		SnapshotDir: v.GetString("snapshot.dir"),
		Verbose:     v.GetBool("verbose"),
		Headless:    v.GetBool("headless"),
	}

	switch cfg.Link.Mode {
	case "ble", "relay":
	default:
		return Config{}, fmt.Errorf("link.mode: unknown mode %q", cfg.Link.Mode)
	}
	switch cfg.Camera.Source {
	case "auto", "pipewire", "ffmpeg", "screen":
	default:
		return Config{}, fmt.Errorf("camera.source: unknown source %q", cfg.Camera.Source)
	}
	if cfg.Camera.Facing != facingUser && cfg.Camera.Facing != facingEnvironment {
		return Config{}, fmt.Errorf("camera.facing: must be %q or %q", facingUser, facingEnvironment)
	}
	if cfg.Camera.FPS <= 0 {
		return Config{}, fmt.Errorf("camera.fps: must be positive, got %d", cfg.Camera.FPS)
	}
	if cfg.Link.ScanTimeout <= 0 {
		return Config{}, fmt.Errorf("link.scan_timeout: must be positive")
	}
	return cfg, nil
}
