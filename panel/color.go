// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package panel drives the seven-color e-paper controller: it owns the
// bit-packed framebuffer, the rasterization primitives, and the
// reset/power/refresh/sleep protocol against the panel bus.
package panel

import "fmt"

// Color is one of the seven colors a Pin panel pixel can take. The
// underlying value is the 4-bit code sent to the controller, so the
// iota order here is load-bearing: it encodes the controller's
// {Black, White, Red, Yellow, Blue, Green, Orange} = 0x0-0x6 codes.
type Color uint8

// Panel colors, in controller encoding order.
const (
	Black Color = iota
	White
	Red
	Yellow
	Blue
	Green
	Orange
)

// numColors is the number of valid Color values.
const numColors = Orange + 1

func (c Color) String() string {
	switch c {
	case Black:
		return "black"
	case White:
		return "white"
	case Red:
		return "red"
	case Yellow:
		return "yellow"
	case Blue:
		return "blue"
	case Green:
		return "green"
	case Orange:
		return "orange"
	default:
		return fmt.Sprintf("Color(%d)", uint8(c))
	}
}

// Valid reports whether c is one of the seven defined panel colors.
func (c Color) Valid() bool {
	return c < numColors
}

// RGB returns an approximate sRGB value for c, for rendering a
// framebuffer somewhere other than the physical panel (a terminal
// preview, a debug PNG dump) where the controller's own color
// reproduction isn't available to sample.
func (c Color) RGB() (r, g, b uint8) {
	switch c {
	case Black:
		return 0x00, 0x00, 0x00
	case White:
		return 0xFF, 0xFF, 0xFF
	case Red:
		return 0xE0, 0x30, 0x30
	case Yellow:
		return 0xE8, 0xD0, 0x30
	case Blue:
		return 0x30, 0x50, 0xC0
	case Green:
		return 0x30, 0xA0, 0x50
	case Orange:
		return 0xE0, 0x80, 0x30
	default:
		return 0x00, 0x00, 0x00
	}
}
