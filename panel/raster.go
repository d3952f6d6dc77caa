// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package panel

// DrawLine draws a straight line from (x0,y0) to (x1,y1) using Bresenham's
// algorithm, implemented directly against the nibble framebuffer rather
// than a 1-bit image buffer.
func (h *Handle) DrawLine(x0, y0, x1, y1 int, c Color) {
	dx := abs(x1 - x0)
	sx := 1
	if x0 >= x1 {
		sx = -1
	}
	dy := -abs(y1 - y0)
	sy := 1
	if y0 >= y1 {
		sy = -1
	}
	err := dx + dy

	for {
		h.SetPixel(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// DrawRect draws a rectangle of width w and height h at (x,y). When
// filled is true the interior is filled row by row; otherwise only the
// outline is drawn.
func (h *Handle) DrawRect(x, y, w, hgt int, c Color, filled bool) {
	if w <= 0 || hgt <= 0 {
		return
	}
	if filled {
		for row := y; row < y+hgt; row++ {
			for col := x; col < x+w; col++ {
				h.SetPixel(col, row, c)
			}
		}
		return
	}
	h.DrawLine(x, y, x+w-1, y, c)
	h.DrawLine(x, y+hgt-1, x+w-1, y+hgt-1, c)
	h.DrawLine(x, y, x, y+hgt-1, c)
	h.DrawLine(x+w-1, y, x+w-1, y+hgt-1, c)
}

// DrawCircle draws a circle centered at (cx,cy) with the given radius
// using the midpoint circle algorithm. The filled variant plots two
// horizontal spans per octave instead of individual points, rather
// than mixing per-pixel and per-span plotting rules in the same pass.
func (h *Handle) DrawCircle(cx, cy, radius int, c Color, filled bool) {
	if radius < 0 {
		return
	}
	x := radius
	y := 0
	err := 0

	plot := func(x, y int) {
		if filled {
			h.DrawLine(cx-x, cy+y, cx+x, cy+y, c)
			h.DrawLine(cx-x, cy-y, cx+x, cy-y, c)
			h.DrawLine(cx-y, cy+x, cx+y, cy+x, c)
			h.DrawLine(cx-y, cy-x, cx+y, cy-x, c)
		} else {
			h.SetPixel(cx+x, cy+y, c)
			h.SetPixel(cx-x, cy+y, c)
			h.SetPixel(cx+x, cy-y, c)
			h.SetPixel(cx-x, cy-y, c)
			h.SetPixel(cx+y, cy+x, c)
			h.SetPixel(cx-y, cy+x, c)
			h.SetPixel(cx+y, cy-x, c)
			h.SetPixel(cx-y, cy-x, c)
		}
	}

	for x >= y {
		plot(x, y)
		y++
		if err <= 0 {
			err += 2*y + 1
		}
		if err > 0 {
			x--
			err -= 2*x + 1
		}
	}
}

// DrawBitmap copies a w×h nibble-packed source bitmap (same two-pixels-
// per-byte, high-nibble-first layout as the framebuffer) to (x,y),
// clipping per pixel against the panel bounds.
func (h *Handle) DrawBitmap(x, y, w, hgt int, src []byte) {
	need := (w*hgt + 1) / 2
	if len(src) < need {
		return
	}
	for row := 0; row < hgt; row++ {
		for col := 0; col < w; col++ {
			idx := row*w + col
			var nib byte
			if idx%2 == 0 {
				nib = src[idx/2] >> 4
			} else {
				nib = src[idx/2] & 0x0F
			}
			h.SetPixel(x+col, y+row, Color(nib))
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
