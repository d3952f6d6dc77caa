// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package panel

// Clear sets every pixel to color, both nibbles of every byte.
func (h *Handle) Clear(c Color) {
	v := byte(c)<<4 | byte(c)
	for i := range h.fb {
		h.fb[i] = v
	}
}

// inBounds reports whether (x, y) addresses a pixel on the panel.
func inBounds(x, y int) bool {
	return x >= 0 && x < Width && y >= 0 && y < Height
}

// SetPixel writes color at (x, y). Out-of-bounds coordinates are silently
// dropped, keeping the rasterizer primitives branch-free.
func (h *Handle) SetPixel(x, y int, c Color) {
	if !inBounds(x, y) {
		return
	}
	idx := y*Width + x
	byteIdx := idx / 2
	if idx%2 == 0 {
		h.fb[byteIdx] = (h.fb[byteIdx] & 0x0F) | (byte(c) << 4)
	} else {
		h.fb[byteIdx] = (h.fb[byteIdx] & 0xF0) | byte(c)
	}
}

// GetPixel returns the color at (x, y), or Black with ok=false if the
// coordinates are out of bounds.
func (h *Handle) GetPixel(x, y int) (c Color, ok bool) {
	if !inBounds(x, y) {
		return Black, false
	}
	idx := y*Width + x
	byteIdx := idx / 2
	if idx%2 == 0 {
		return Color(h.fb[byteIdx] >> 4), true
	}
	return Color(h.fb[byteIdx] & 0x0F), true
}

// Framebuffer returns the live, nibble-packed framebuffer bytes. The
// panel driver exclusively owns this slice; callers must not retain it
// past the scope of the display-mutex-protected call that obtained it.
func (h *Handle) Framebuffer() []byte {
	return h.fb
}

// LoadFramebuffer overwrites the live framebuffer with buf, which must be
// exactly FramebufferSize bytes and already nibble-packed in the same
// row-major, high-nibble-first layout. It reports false and leaves the
// framebuffer untouched when buf has any other length.
func (h *Handle) LoadFramebuffer(buf []byte) bool {
	if len(buf) != FramebufferSize {
		return false
	}
	copy(h.fb, buf)
	return true
}
