package main

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/kbinani/screenshot"
	log "github.com/sirupsen/logrus"
)

// screenSource samples display 0 instead of a camera. Captures run on their
// own goroutine so Frame never waits for the display.
type screenSource struct {
	bounds   image.Rectangle
	interval time.Duration
	capture  func(image.Rectangle) (*image.RGBA, error)

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	frame *image.RGBA
	err   error
}

func newScreenSource(fps int) (FrameSource, string, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return nil, "", fmt.Errorf("no active displays found")
	}
	if fps <= 0 {
		fps = 1
	}
	s := startScreenSource(screenshot.GetDisplayBounds(0), time.Second/time.Duration(fps), screenshot.CaptureRect)
	return s, "Screen", nil
}

func startScreenSource(bounds image.Rectangle, interval time.Duration, capture func(image.Rectangle) (*image.RGBA, error)) *screenSource {
	s := &screenSource{
		bounds:   bounds,
		interval: interval,
		capture:  capture,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *screenSource) run() {
	defer close(s.stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		img, err := s.capture(s.bounds)
		if err != nil {
			log.WithError(err).Debug("capturing screen")
		}

		s.mu.Lock()
		if err == nil {
			s.frame = img
		}
		s.err = err
		s.mu.Unlock()

		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
	}
}

// Frame returns the most recent capture.
func (s *screenSource) Frame() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame != nil {
		return s.frame, nil
	}
	if s.err != nil {
		return nil, fmt.Errorf("capturing screen: %w", s.err)
	}
	return nil, errNoFrame
}

// Close stops capturing and waits for the capture goroutine.
func (s *screenSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	<-s.stopped
	return nil
}
