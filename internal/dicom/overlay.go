package dicom

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// drawLabel burns text into the top-left corner of a 16-bit frame so the slice
// position and echo are visible in any viewer. Text pixels get maxValue with a
// one-pixel zero outline.
func drawLabel(pixels []uint16, width, height int, text string, maxValue uint16) {
	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, text).Ceil()
	textHeight := face.Height
	if textWidth == 0 {
		return
	}

	glyphs := image.NewAlpha(image.Rect(0, 0, textWidth, textHeight))
	drawer := &font.Drawer{
		Dst:  glyphs,
		Src:  image.NewUniform(color.Alpha{A: 255}),
		Face: face,
		Dot:  fixed.Point26_6{Y: fixed.I(face.Ascent)},
	}
	drawer.DrawString(text)

	// Scale the label to at most 40% of the frame width, never below 1x.
	scale := float64(width) * 0.4 / float64(textWidth)
	if scale < 1 {
		scale = 1
	}
	scaledW := int(float64(textWidth) * scale)
	scaledH := int(float64(textHeight) * scale)
	scaled := image.NewAlpha(image.Rect(0, 0, scaledW, scaledH))
	draw.BiLinear.Scale(scaled, scaled.Bounds(), glyphs, glyphs.Bounds(), draw.Src, nil)

	const margin = 2
	inside := func(x, y int) bool { return x >= 0 && x < width && y >= 0 && y < height }

	// Outline first so the glyphs stay on top.
	for sy := 0; sy < scaledH; sy++ {
		for sx := 0; sx < scaledW; sx++ {
			if scaled.AlphaAt(sx, sy).A < 128 {
				continue
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					x, y := margin+sx+dx, margin+sy+dy
					if inside(x, y) {
						pixels[y*width+x] = 0
					}
				}
			}
		}
	}
	for sy := 0; sy < scaledH; sy++ {
		for sx := 0; sx < scaledW; sx++ {
			x, y := margin+sx, margin+sy
			if scaled.AlphaAt(sx, sy).A >= 128 && inside(x, y) {
				pixels[y*width+x] = maxValue
			}
		}
	}
}
