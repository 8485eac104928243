package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	log "github.com/sirupsen/logrus"
)

// setupLogging configures the global logger. The TUI owns the terminal, so
// unless headless the log goes to a file under the XDG state directory.
// The returned closer releases that file.
func setupLogging(verbose, headless bool) (io.Closer, error) {
	log.SetLevel(log.InfoLevel)
	if verbose {
		log.SetLevel(log.DebugLevel)
	}

	if headless {
		log.SetOutput(os.Stderr)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		return io.NopCloser(nil), nil
	}

	path, err := xdg.StateFile(filepath.Join(appName, appName+".log"))
	if err != nil {
		return nil, fmt.Errorf("resolving log path: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	log.SetOutput(f)
	log.SetFormatter(&log.TextFormatter{DisableColors: true, FullTimestamp: true})
	return f, nil
}
