package main

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScreenSourceFrameDoesNotWaitForCapture(t *testing.T) {
	release := make(chan struct{})
	bounds := image.Rect(0, 0, 8, 6)
	s := startScreenSource(bounds, time.Millisecond, func(r image.Rectangle) (*image.RGBA, error) {
		<-release
		return solidFrame(r.Dx(), r.Dy(), RGB{1, 2, 3}), nil
	})

	start := time.Now()
	_, err := s.Frame()
	assert.ErrorIs(t, err, errNoFrame)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool {
		f, err := s.Frame()
		return err == nil && f.Bounds() == bounds
	}, time.Second, time.Millisecond)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestScreenSourceReportsCaptureError(t *testing.T) {
	errCapture := errors.New("no display")
	s := startScreenSource(image.Rect(0, 0, 8, 6), time.Millisecond, func(image.Rectangle) (*image.RGBA, error) {
		return nil, errCapture
	})
	defer s.Close()

	require.Eventually(t, func() bool {
		_, err := s.Frame()
		return errors.Is(err, errCapture)
	}, time.Second, time.Millisecond)
}
