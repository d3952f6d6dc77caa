// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package canvas

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"sort"

	"golang.org/x/image/bmp"

	"github.com/MePride/pin/panel"
)

// ImageLookup resolves an image_id to its stored bytes for Image element
// rendering. The canvas engine supplies this bound to its own image
// store; render itself never touches persistence directly.
type ImageLookup func(imageID string) (*ImageEntry, bool)

// Render rasterizes c onto h: fills the background, then draws elements
// in ascending z_index order (stable for ties), skipping invisible ones.
// Rendering into h is the engine's only borrow of the panel framebuffer;
// it does not retain a second copy of the pixels. font is optional; when
// nil, Text elements fall back to the placeholder cell renderer.
func Render(h *panel.Handle, c *Canvas, lookup ImageLookup, font *FontRenderer) {
	h.Clear(c.BackgroundColor)

	ordered := make([]Element, len(c.Elements))
	copy(ordered, c.Elements)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ZIndex < ordered[j].ZIndex
	})

	for _, el := range ordered {
		if !el.Visible {
			continue
		}
		switch el.Kind {
		case KindText:
			if font != nil {
				font.Render(h, el)
			} else {
				renderText(h, el)
			}
		case KindImage:
			renderImage(h, el, lookup)
		case KindRect:
			renderRect(h, el)
		case KindLine:
			renderLine(h, el)
		case KindCircle:
			renderCircle(h, el)
		}
	}
}

func renderRect(h *panel.Handle, el Element) {
	b := el.Bounds
	if el.Shape.Filled {
		h.DrawRect(int(b.X), int(b.Y), int(b.W), int(b.H), el.Shape.FillColor, true)
	}
	h.DrawRect(int(b.X), int(b.Y), int(b.W), int(b.H), el.Shape.BorderColor, false)
}

func renderLine(h *panel.Handle, el Element) {
	b := el.Bounds
	h.DrawLine(int(b.X), int(b.Y), int(b.X)+int(b.W), int(b.Y)+int(b.H), el.Shape.BorderColor)
}

func renderCircle(h *panel.Handle, el Element) {
	b := el.Bounds
	cx := int(b.X) + int(b.W)/2
	cy := int(b.Y) + int(b.H)/2
	radius := int(b.W)
	if int(b.H) < radius {
		radius = int(b.H)
	}
	radius /= 2
	if el.Shape.Filled {
		h.DrawCircle(cx, cy, radius, el.Shape.FillColor, true)
	}
	h.DrawCircle(cx, cy, radius, el.Shape.BorderColor, false)
}

// renderText draws a placeholder cell per character: font_size/2 wide,
// font_size tall, honoring horizontal alignment inside bounds. Real glyph
// rendering can replace this without changing Element's shape — nothing
// downstream depends on how a Text element becomes pixels.
func renderText(h *panel.Handle, el Element) {
	t := el.Text
	if t.FontSize <= 0 || t.Text == "" {
		return
	}
	cellW := t.FontSize / 2
	cellH := t.FontSize
	totalW := cellW * len(t.Text)

	startX := int(el.Bounds.X)
	switch t.Align {
	case AlignCenter:
		startX += (int(el.Bounds.W) - totalW) / 2
	case AlignRight:
		startX += int(el.Bounds.W) - totalW
	}

	for i := range t.Text {
		x := startX + i*cellW
		w := cellW
		if t.Bold {
			w++
		}
		h.DrawRect(x, int(el.Bounds.Y), w, cellH, t.Color, true)
	}
}

// renderImage draws a decoded, quantized bitmap for el's image_id, or an
// outlined placeholder with diagonals when the image is absent or its
// format cannot be decoded.
func renderImage(h *panel.Handle, el Element, lookup ImageLookup) {
	b := el.Bounds
	entry, ok := lookup(el.Image.ImageID)
	if ok {
		if img, decodeErr := decodeImage(entry); decodeErr == nil {
			drawQuantized(h, img, int(b.X), int(b.Y), int(b.W), int(b.H))
			return
		}
	}
	drawImagePlaceholder(h, el)
}

func decodeImage(entry *ImageEntry) (image.Image, error) {
	r := bytes.NewReader(entry.Data)
	switch entry.Format {
	case FormatPng:
		return png.Decode(r)
	case FormatJpg:
		return jpeg.Decode(r)
	case FormatBmp:
		return bmp.Decode(r)
	default:
		return bmp.Decode(r)
	}
}

// drawQuantized nearest-quantizes every destination pixel from the
// nearest source pixel (nearest-neighbor scaling) into the panel's
// 7-color palette. maintain_aspect/opacity are advisory only in this
// placeholder-grade decode path, as documented for the renderer.
func drawQuantized(h *panel.Handle, img image.Image, x, y, w, hgt int) {
	if w <= 0 || hgt <= 0 {
		return
	}
	sb := img.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	if sw == 0 || sh == 0 {
		return
	}
	for row := 0; row < hgt; row++ {
		sy := sb.Min.Y + row*sh/hgt
		for col := 0; col < w; col++ {
			sx := sb.Min.X + col*sw/w
			h.SetPixel(x+col, y+row, nearest(img.At(sx, sy)))
		}
	}
}

func drawImagePlaceholder(h *panel.Handle, el Element) {
	b := el.Bounds
	x, y, w, hgt := int(b.X), int(b.Y), int(b.W), int(b.H)
	h.DrawRect(x, y, w, hgt, panel.Black, false)
	h.DrawLine(x, y, x+w-1, y+hgt-1, panel.Black)
	h.DrawLine(x+w-1, y, x, y+hgt-1, panel.Black)
}
