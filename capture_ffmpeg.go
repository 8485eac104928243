package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

type ffmpegSource struct {
	*pipeSource
}

func newFFmpegSource(cfg CameraConfig) (FrameSource, string, error) {
	if !hasExecutable("ffmpeg") {
		return nil, "", fmt.Errorf("ffmpeg not found")
	}

	device := cfg.Device()
	if _, err := os.Stat(device); err != nil {
		return nil, "", fmt.Errorf("camera device: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-nostdin",
		"-loglevel", "error",
		"-f", "v4l2",
		"-framerate", strconv.Itoa(cfg.FPS),
		"-i", device,
		"-vf", ffmpegScaleFilter(),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)

	s, err := startPipeSource(cancel, cmd, "ffmpeg", nil)
	if err != nil {
		return nil, "", err
	}
	return ffmpegSource{s}, "FFmpeg " + device, nil
}

// ffmpegScaleFilter scales to cover the capture size and crops the overflow,
// keeping the center of the image where it is.
func ffmpegScaleFilter() string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d",
		captureWidth, captureHeight, captureWidth, captureHeight)
}
