package slam

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Annotation is drawn on top of an upscaled map
type Annotation struct {
	Cell  image.Point // robot cell in map coordinates
	Yaw   float64     // radians; image rows grow with world Y
	Lines []string    // status text, top-left
}

var (
	robotColor   = color.RGBA{220, 40, 40, 255}
	outlineColor = color.RGBA{40, 40, 40, 255}
	textColor    = color.RGBA{0, 0, 160, 255}
)

// RenderAnnotated upscales a greyscale map by an integer factor with
// nearest-neighbour sampling, so cells stay crisp, and draws the robot marker
// and status lines over it
func RenderAnnotated(m *image.Gray, scale int, a Annotation) *image.RGBA {
	if scale < 1 {
		scale = 1
	}
	b := m.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), m, b, xdraw.Src, nil)

	cx := (a.Cell.X-b.Min.X)*scale + scale/2
	cy := (a.Cell.Y-b.Min.Y)*scale + scale/2
	drawRobot(dst, cx, cy, max(4, 3*scale), a.Yaw)

	y := 15
	for _, line := range a.Lines {
		drawText(dst, 10, y, line, textColor)
		y += 15
	}
	return dst
}

// drawRobot draws a filled circle with a heading tick
func drawRobot(img *image.RGBA, cx, cy, radius int, yaw float64) {
	bounds := img.Bounds()
	setPixel := func(x, y int, c color.RGBA) {
		if image.Pt(x, y).In(bounds) {
			img.SetRGBA(x, y, c)
		}
	}

	outer := radius + 1
	for dy := -outer; dy <= outer; dy++ {
		for dx := -outer; dx <= outer; dx++ {
			d2 := dx*dx + dy*dy
			switch {
			case d2 <= radius*radius:
				setPixel(cx+dx, cy+dy, robotColor)
			case d2 <= outer*outer:
				setPixel(cx+dx, cy+dy, outlineColor)
			}
		}
	}

	length := float64(radius) * 1.8
	for t := 0.0; t <= 1.0; t += 0.5 / length {
		px := float64(cx) + t*length*math.Cos(yaw)
		py := float64(cy) + t*length*math.Sin(yaw)
		setPixel(int(math.Round(px)), int(math.Round(py)), outlineColor)
	}
}

// drawText renders text onto an image at the specified baseline position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// EncodePNG writes img as PNG
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

// SavePNG writes img to path as PNG
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := EncodePNG(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
