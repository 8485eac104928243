package main

import (
	"errors"
	"fmt"
	"image"

	"github.com/lucasb-eyer/go-colorful"
)

// RegionSize is the side length, in pixels, of the sampled square.
const RegionSize = 50

// ErrRegionOutOfRange is returned when the frame is smaller than the sample region.
var ErrRegionOutOfRange = errors.New("sample region exceeds frame")

// RGB holds an 8-bit color value.
type RGB struct {
	R, G, B uint8
}

func (c RGB) String() string {
	return fmt.Sprintf("RGB{%d, %d, %d}", c.R, c.G, c.B)
}

// Hex returns the color as #rrggbb.
func (c RGB) Hex() string {
	return colorful.Color{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
	}.Hex()
}

// CenterRegion returns the size×size square centered on bounds.
// Coordinates use integer division on both axes.
func CenterRegion(bounds image.Rectangle, size int) image.Rectangle {
	x0 := bounds.Min.X + bounds.Dx()/2 - size/2
	y0 := bounds.Min.Y + bounds.Dy()/2 - size/2
	return image.Rect(x0, y0, x0+size, y0+size)
}

// SampleCenter averages R, G and B over the size×size square at the center
// of frame. Alpha is ignored. Each mean is rounded half up.
func SampleCenter(frame *image.RGBA, size int) (RGB, error) {
	if frame == nil || size <= 0 {
		return RGB{}, ErrRegionOutOfRange
	}
	region := CenterRegion(frame.Rect, size)
	if !region.In(frame.Rect) {
		return RGB{}, fmt.Errorf("%w: %dx%d frame, %d region", ErrRegionOutOfRange,
			frame.Rect.Dx(), frame.Rect.Dy(), size)
	}

	var rSum, gSum, bSum uint64
	for y := region.Min.Y; y < region.Max.Y; y++ {
		off := frame.PixOffset(region.Min.X, y)
		for x := 0; x < size; x++ {
			rSum += uint64(frame.Pix[off])
			gSum += uint64(frame.Pix[off+1])
			bSum += uint64(frame.Pix[off+2])
			off += 4
		}
	}

	n := uint64(size * size)
	return RGB{
		R: roundDiv(rSum, n),
		G: roundDiv(gSum, n),
		B: roundDiv(bSum, n),
	}, nil
}

func roundDiv(sum, n uint64) uint8 {
	return uint8((sum + n/2) / n)
}
