package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	captureWidth  = 400
	captureHeight = 300
	frameSize     = captureWidth * captureHeight * 4 // RGBA

	firstFrameTimeout = 5 * time.Second

	facingUser        = "user"
	facingEnvironment = "environment"
)

// errNoFrame is returned by a source that has not produced a frame yet.
var errNoFrame = errors.New("no frame captured yet")

// FrameSource supplies the most recent camera frame.
type FrameSource interface {
	// Frame returns the latest frame without blocking. Callers must not
	// modify it.
	Frame() (*image.RGBA, error)
	Close() error
}

// OpenFrameSource opens the configured source. With "auto" it tries
// PipeWire → FFmpeg → screen and returns the first that works.
func OpenFrameSource(cfg CameraConfig) (FrameSource, string, error) {
	switch cfg.Source {
	case "pipewire":
		return newPipeWireSource(cfg)
	case "ffmpeg":
		return newFFmpegSource(cfg)
	case "screen":
		return newScreenSource(cfg.FPS)
	}

	s, method, err := newPipeWireSource(cfg)
	if err == nil {
		return s, method, nil
	}
	log.WithError(err).Debug("pipewire camera unavailable")

	s, method, err = newFFmpegSource(cfg)
	if err == nil {
		return s, method, nil
	}
	log.WithError(err).Debug("ffmpeg camera unavailable")

	return newScreenSource(cfg.FPS)
}

// ToggleFacing returns the other facing mode.
func ToggleFacing(facing string) string {
	if facing == facingUser {
		return facingEnvironment
	}
	return facingUser
}

// pipeSource reads raw RGBA frames from a child process's stdout and keeps
// the most recent one.
type pipeSource struct {
	cancel context.CancelFunc
	cmd    *exec.Cmd
	done   chan struct{}
	ready  chan struct{} // closed when first frame is available

	mu    sync.Mutex
	frame *image.RGBA

	cleanup func() // releases resources handed to the child
}

// startPipeSource starts cmd and waits for its first frame.
func startPipeSource(cancel context.CancelFunc, cmd *exec.Cmd, name string, cleanup func()) (*pipeSource, error) {
	if cleanup == nil {
		cleanup = func() {}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		cleanup()
		return nil, fmt.Errorf("%s stdout pipe: %w", name, err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		cleanup()
		return nil, fmt.Errorf("starting %s: %w", name, err)
	}

	s := &pipeSource{
		cancel:  cancel,
		cmd:     cmd,
		done:    make(chan struct{}),
		ready:   make(chan struct{}),
		cleanup: cleanup,
	}

	go s.readFrames(stdout)

	// Wait for the first frame so Frame is immediately usable.
	select {
	case <-s.ready:
	case <-s.done:
		s.cancel()
		_ = s.cmd.Wait()
		cleanup()
		return nil, fmt.Errorf("%s: exited before first frame", name)
	case <-time.After(firstFrameTimeout):
		s.cancel()
		<-s.done
		_ = s.cmd.Wait()
		cleanup()
		return nil, fmt.Errorf("%s: timed out waiting for first frame", name)
	}

	return s, nil
}

func (s *pipeSource) readFrames(r io.Reader) {
	defer close(s.done)
	first := true
	for {
		img := image.NewRGBA(image.Rect(0, 0, captureWidth, captureHeight))
		if _, err := io.ReadFull(r, img.Pix); err != nil {
			return
		}
		s.mu.Lock()
		s.frame = img
		s.mu.Unlock()
		if first {
			close(s.ready)
			first = false
		}
	}
}

func (s *pipeSource) Frame() (*image.RGBA, error) {
	s.mu.Lock()
	f := s.frame
	s.mu.Unlock()
	if f == nil {
		return nil, errNoFrame
	}
	return f, nil
}

func (s *pipeSource) Close() error {
	s.cancel()
	<-s.done
	err := s.cmd.Wait()
	s.cleanup()
	return err
}

// hasExecutable reports whether the named program is on PATH.
func hasExecutable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
