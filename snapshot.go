package main

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/fogleman/gg"
)

const swatchSize = 50

// SaveSnapshot writes frame to a PNG in dir with the sample region outlined.
// When reading is non-nil its color is drawn as a swatch in the bottom-right
// corner. It returns the written path.
func SaveSnapshot(dir string, frame *image.RGBA, mirror bool, reading *Reading) (string, error) {
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()
	dc := gg.NewContext(w, h)

	if mirror {
		dc.Push()
		dc.Translate(float64(w), 0)
		dc.Scale(-1, 1)
		dc.DrawImage(frame, 0, 0)
		dc.Pop()
	} else {
		dc.DrawImage(frame, 0, 0)
	}

	region := CenterRegion(image.Rect(0, 0, w, h), RegionSize)
	dc.SetRGB(1, 0, 0)
	dc.SetLineWidth(2)
	dc.DrawRectangle(float64(region.Min.X), float64(region.Min.Y), RegionSize, RegionSize)
	dc.Stroke()

	if reading != nil {
		c := reading.Color
		dc.SetRGB255(int(c.R), int(c.G), int(c.B))
		dc.DrawRectangle(float64(w-swatchSize-10), float64(h-swatchSize-10), swatchSize, swatchSize)
		dc.Fill()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating snapshot dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.png", appName, time.Now().Format("20060102-150405.000")))
	if err := dc.SavePNG(path); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	return path, nil
}
