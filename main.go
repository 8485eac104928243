package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCommand(newViper()).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Send the color under the camera to a BBC micro:bit",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return readConfig(v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	pf := cmd.PersistentFlags()
	pf.String("link", "ble", "link to the micro:bit: ble or relay")
	pf.String("name-prefix", "BBC micro:bit", "advertised name prefix to connect to")
	pf.Duration("scan-timeout", 0, "how long to scan for devices (default 5s)")
	pf.String("relay", "", "relay host:port, skips mDNS discovery")
	pf.BoolP("verbose", "v", false, "log debug output")

	f := cmd.Flags()
	f.String("source", "auto", "frame source: auto, pipewire, ffmpeg or screen")
	f.String("front-device", "/dev/video0", "V4L2 device for the front camera")
	f.String("back-device", "/dev/video1", "V4L2 device for the back camera")
	f.String("facing", facingUser, "starting camera: user or environment")
	f.Bool("mirror", false, "mirror the preview horizontally")
	f.Int("fps", 30, "frames sampled per second")
	f.String("snapshot-dir", "", "directory for snapshots (default XDG pictures)")
	f.Bool("headless", false, "run without the TUI and start detection immediately")

	bind := map[string]string{
		"link.mode":           "link",
		"link.name_prefix":    "name-prefix",
		"link.scan_timeout":   "scan-timeout",
		"link.relay_addr":     "relay",
		"verbose":             "verbose",
		"camera.source":       "source",
		"camera.front_device": "front-device",
		"camera.back_device":  "back-device",
		"camera.facing":       "facing",
		"camera.mirror":       "mirror",
		"camera.fps":          "fps",
		"snapshot.dir":        "snapshot-dir",
		"headless":            "headless",
	}
	for key, name := range bind {
		flag := pf.Lookup(name)
		if flag == nil {
			flag = f.Lookup(name)
		}
		// viper prefers a flag only when it was set, so flag defaults never
		// shadow the config file.
		_ = v.BindPFlag(key, flag)
	}

	cmd.AddCommand(newScanCommand(v))
	cmd.AddCommand(newPairCommand())
	cmd.AddCommand(newForgetCommand())
	return cmd
}

func run(cmd *cobra.Command, cfg Config) error {
	closer, err := setupLogging(cfg.Verbose, cfg.Headless)
	if err != nil {
		return err
	}
	defer closer.Close()

	connector, err := NewConnector(cfg.Link)
	if err != nil {
		return err
	}

	if cfg.Headless {
		return runHeadless(cmd.Context(), cfg, connector)
	}

	p := tea.NewProgram(newModel(cfg, connector))
	result, err := p.Run()
	if err != nil {
		return err
	}
	result.(model).shutdown()
	return nil
}
