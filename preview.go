package main

import (
	"image"
	"image/color"
	"strings"

	"github.com/charmbracelet/lipgloss"
	xdraw "golang.org/x/image/draw"
)

const (
	previewCols = 40
	previewRows = 15 // each cell row holds two pixel rows
)

var outlineColor = color.RGBA{R: 255, A: 255}

// previewImage scales frame down to cols×(rows*2) pixels, outlines the
// sample region in red and mirrors it horizontally when mirror is set.
func previewImage(frame *image.RGBA, cols, rows int, mirror bool) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, cols, rows*2))
	b := frame.Bounds()
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, b, xdraw.Src, nil)

	region := CenterRegion(b, RegionSize)
	x0 := (region.Min.X - b.Min.X) * cols / b.Dx()
	x1 := (region.Max.X - b.Min.X) * cols / b.Dx()
	y0 := (region.Min.Y - b.Min.Y) * rows * 2 / b.Dy()
	y1 := (region.Max.Y - b.Min.Y) * rows * 2 / b.Dy()
	drawOutline(dst, image.Rect(x0, y0, x1, y1).Intersect(dst.Bounds()))

	if mirror {
		mirrorRGBA(dst)
	}
	return dst
}

func drawOutline(img *image.RGBA, r image.Rectangle) {
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		img.SetRGBA(x, r.Min.Y, outlineColor)
		img.SetRGBA(x, r.Max.Y-1, outlineColor)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.SetRGBA(r.Min.X, y, outlineColor)
		img.SetRGBA(r.Max.X-1, y, outlineColor)
	}
}

func mirrorRGBA(img *image.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for l, r := b.Min.X, b.Max.X-1; l < r; l, r = l+1, r-1 {
			lc, rc := img.RGBAAt(l, y), img.RGBAAt(r, y)
			img.SetRGBA(l, y, rc)
			img.SetRGBA(r, y, lc)
		}
	}
}

// renderCells draws img with upper half blocks: the foreground is the top
// pixel of each cell and the background the bottom one.
func renderCells(img *image.RGBA) string {
	b := img.Bounds()
	var sb strings.Builder
	for y := b.Min.Y; y+1 < b.Max.Y; y += 2 {
		for x := b.Min.X; x < b.Max.X; x++ {
			top, bottom := img.RGBAAt(x, y), img.RGBAAt(x, y+1)
			sb.WriteString(lipgloss.NewStyle().
				Foreground(lipgloss.Color(hexOf(top))).
				Background(lipgloss.Color(hexOf(bottom))).
				Render("▀"))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// renderPreview returns the terminal preview of frame.
func renderPreview(frame *image.RGBA, mirror bool) string {
	return renderCells(previewImage(frame, previewCols, previewRows, mirror))
}

// renderSwatch returns a small block filled with c.
func renderSwatch(c RGB) string {
	block := lipgloss.NewStyle().Background(lipgloss.Color(c.Hex())).Render("      ")
	return block + "\n" + block + "\n" + block
}

func hexOf(c color.RGBA) string {
	return RGB{c.R, c.G, c.B}.Hex()
}
