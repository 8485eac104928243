package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// runHeadless connects to the first micro:bit found, starts detection and
// sends a color every frame until interrupted.
func runHeadless(ctx context.Context, cfg Config, connector Connector) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, method, err := OpenFrameSource(cfg.Camera)
	if err != nil {
		return fmt.Errorf("opening frame source: %w", err)
	}
	defer source.Close()
	log.WithField("method", method).Info("frame source ready")

	peers, err := connector.Scan(ctx)
	if err != nil {
		log.WithError(err).Error("Bluetooth connection failed")
		return err
	}

	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	link, err := connector.Connect(connCtx, peers[0], logReceived)
	cancel()
	if err != nil {
		log.WithError(err).Error("Bluetooth connection failed")
		return err
	}
	log.WithField("link", link.Name()).Info("connected")

	tx := NewTransmitter()
	tx.SetLink(link)
	detector := NewDetector(tx)
	if err := detector.Start(); err != nil {
		link.Close()
		return err
	}

	ticker := time.NewTicker(time.Second / time.Duration(cfg.Camera.FPS))
	defer ticker.Stop()

	return headlessLoop(ctx, ticker.C, source, detector, tx)
}

// headlessLoop runs detection once per tick until ctx ends, then stops
// detection and closes the link after the stop command is written.
func headlessLoop(ctx context.Context, ticks <-chan time.Time, source FrameSource, detector *Detector, tx *Transmitter) error {
	var last string
	for {
		select {
		case <-ticks:
			frame, err := source.Frame()
			if err != nil {
				log.WithError(err).Debug("no frame")
				continue
			}
			if r, ok := detector.Tick(frame); ok && r.Payload.Wire != last {
				last = r.Payload.Wire
				log.WithField("color", r.Payload.Display).Debug("sampled")
			}

		case <-ctx.Done():
			log.Info("shutting down")
			// Let the last color land so the stop command is not dropped.
			tx.Wait()
			detector.Stop()
			tx.Wait()
			if l := tx.ClearLink(); l != nil {
				return l.Close()
			}
			return nil
		}
	}
}
