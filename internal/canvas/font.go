// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package canvas

import (
	"image"
	"os"

	"github.com/fogleman/gg"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	"github.com/MePride/pin/panel"
)

// FontRenderer draws Text elements with real glyphs instead of the
// placeholder-rectangle renderer, via golang/freetype's TrueType parser
// and fogleman/gg's 2-D context. It satisfies the same Text element API
// as the placeholder path: callers never know which one ran.
type FontRenderer struct {
	face font.Face
}

// LoadFontRenderer parses a TrueType font file at the given point size.
// A nil *FontRenderer with a non-nil error means the caller should fall
// back to placeholder rendering, which is always safe to do.
func LoadFontRenderer(path string, points float64) (*FontRenderer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := freetype.ParseFont(data)
	if err != nil {
		return nil, err
	}
	face := truetype.NewFace(f, &truetype.Options{Size: points})
	return &FontRenderer{face: face}, nil
}

// Render draws el (which must be a Text element) onto h using real
// glyphs, quantizing each inked pixel to the nearest panel color and
// leaving transparent pixels untouched so earlier z-ordered content
// shows through, the same compositing behavior the placeholder renderer
// gives for free by only touching character cells.
func (fr *FontRenderer) Render(h *panel.Handle, el Element) {
	b := el.Bounds
	if b.W == 0 || b.H == 0 {
		return
	}
	dc := gg.NewContext(int(b.W), int(b.H))
	dc.SetFontFace(fr.face)
	dc.SetColor(RGBA(el.Text.Color))

	ax := 0.0
	x := 0.0
	switch el.Text.Align {
	case AlignCenter:
		ax = 0.5
		x = float64(b.W) / 2
	case AlignRight:
		ax = 1
		x = float64(b.W)
	}
	dc.DrawStringAnchored(el.Text.Text, x, float64(b.H)/2, ax, 0.5)

	img := dc.Image()
	ib := img.Bounds()
	for row := ib.Min.Y; row < ib.Max.Y; row++ {
		for col := ib.Min.X; col < ib.Max.X; col++ {
			if !hasInk(img, col, row) {
				continue
			}
			h.SetPixel(int(b.X)+col, int(b.Y)+row, nearest(img.At(col, row)))
		}
	}
}

func hasInk(img image.Image, x, y int) bool {
	_, _, _, a := img.At(x, y).RGBA()
	return a > 0x4000
}
