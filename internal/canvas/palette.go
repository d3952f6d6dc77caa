// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package canvas

import (
	"image/color"

	"github.com/MePride/pin/panel"
)

// swatch is the approximate display RGB of each panel color on the
// physical seven-color panel. Values are the AC073TC1/UC8159 "sc7"
// calibration swatch (the seven-color palette for the 600x448 panel
// variant), reordered to match panel.Color's own 0x0-0x6 encoding.
var swatch = map[panel.Color]color.RGBA{
	panel.Black:  {R: 0, G: 0, B: 0, A: 255},
	panel.White:  {R: 217, G: 242, B: 255, A: 255},
	panel.Red:    {R: 245, G: 80, B: 34, A: 255},
	panel.Yellow: {R: 255, G: 255, B: 68, A: 255},
	panel.Blue:   {R: 27, G: 46, B: 198, A: 255},
	panel.Green:  {R: 3, G: 124, B: 76, A: 255},
	panel.Orange: {R: 239, G: 121, B: 44, A: 255},
}

// RGBA returns the approximate display color for c, used when decoding
// source images into the panel's fixed 7-color space.
func RGBA(c panel.Color) color.RGBA {
	return swatch[c]
}

// nearest returns the panel color whose swatch entry is closest to c in
// squared Euclidean RGB distance — a direct, un-dithered quantizer.
func nearest(c color.Color) panel.Color {
	r, g, b, _ := c.RGBA()
	best := panel.Black
	bestDist := uint64(1) << 62
	for pc := panel.Black; pc <= panel.Orange; pc++ {
		sw := swatch[pc]
		sr, sg, sb := uint32(sw.R)*0x101, uint32(sw.G)*0x101, uint32(sw.B)*0x101
		dr := int64(r) - int64(sr)
		dg := int64(g) - int64(sg)
		db := int64(b) - int64(sb)
		dist := uint64(dr*dr + dg*dg + db*db)
		if dist < bestDist {
			bestDist = dist
			best = pc
		}
	}
	return best
}
