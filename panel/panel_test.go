// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package panel

import (
	"testing"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// fakePin is a minimal gpio.PinIO double. It never actually toggles edges
// (WaitForEdge always reports readiness immediately), which is enough for
// exercising the framebuffer and rasterizer logic without real hardware.
type fakePin struct {
	name  string
	level gpio.Level
}

func (p *fakePin) String() string                        { return p.name }
func (p *fakePin) Halt() error                           { return nil }
func (p *fakePin) Name() string                          { return p.name }
func (p *fakePin) Number() int                           { return -1 }
func (p *fakePin) Function() string                      { return "" }
func (p *fakePin) Out(l gpio.Level) error                { p.level = l; return nil }
func (p *fakePin) PWM(gpio.Duty, physic.Frequency) error { return nil }
func (p *fakePin) In(gpio.Pull, gpio.Edge) error         { return nil }
func (p *fakePin) Read() gpio.Level                      { return p.level }
func (p *fakePin) WaitForEdge(time.Duration) bool        { return true }
func (p *fakePin) Pull() gpio.Pull                       { return gpio.PullNoChange }
func (p *fakePin) DefaultPull() gpio.Pull                { return gpio.PullNoChange }

// fakeConn is a no-op conn.Conn double that records nothing and never
// fails; the busy-wait and nibble-packing logic under test does not
// depend on what actually crosses the bus.
type fakeConn struct{}

func (fakeConn) String() string       { return "fakeConn" }
func (fakeConn) Tx(w, r []byte) error { return nil }
func (fakeConn) Duplex() conn.Duplex  { return conn.Full }
func (fakeConn) MaxTxSize() int       { return 4096 }

func newHandle() *Handle {
	return &Handle{
		c:         &fakeConn{},
		maxTxSize: 4096,
		dc:        &fakePin{name: "dc"},
		reset:     &fakePin{name: "reset"},
		busy:      &fakePin{name: "busy"},
		fb:        make([]byte, FramebufferSize),
	}
}

func TestSetGetPixelNibblePacking(t *testing.T) {
	h := newHandle()

	h.SetPixel(0, 0, Red)
	h.SetPixel(1, 0, Blue)

	if got, want := h.fb[0], byte(0x24); got != want {
		t.Errorf("fb[0] = 0x%02x, want 0x%02x", got, want)
	}
	if c, ok := h.GetPixel(0, 0); !ok || c != Red {
		t.Errorf("GetPixel(0,0) = %v, %v, want Red, true", c, ok)
	}
	if c, ok := h.GetPixel(1, 0); !ok || c != Blue {
		t.Errorf("GetPixel(1,0) = %v, %v, want Blue, true", c, ok)
	}
}

func TestPixelOutOfBoundsIsNoOp(t *testing.T) {
	h := newHandle()
	before := append([]byte(nil), h.fb...)

	h.SetPixel(-1, 0, Red)
	h.SetPixel(Width, 0, Red)
	h.SetPixel(0, -1, Red)
	h.SetPixel(0, Height, Red)

	for i := range before {
		if h.fb[i] != before[i] {
			t.Fatalf("fb mutated by out-of-bounds SetPixel at byte %d", i)
			break
		}
	}

	if _, ok := h.GetPixel(-1, 0); ok {
		t.Errorf("GetPixel(-1,0) ok = true, want false")
	}
	if _, ok := h.GetPixel(Width, 0); ok {
		t.Errorf("GetPixel(Width,0) ok = true, want false")
	}
}

func TestClearFillsBothNibbles(t *testing.T) {
	h := newHandle()
	h.Clear(Green)
	want := byte(Green)<<4 | byte(Green)
	for i, b := range h.fb {
		if b != want {
			t.Fatalf("fb[%d] = 0x%02x, want 0x%02x", i, b, want)
		}
	}
}

func TestDrawRectFilledVsOutline(t *testing.T) {
	h := newHandle()
	h.Clear(White)
	h.DrawRect(10, 10, 5, 5, Red, true)
	for y := 10; y < 15; y++ {
		for x := 10; x < 15; x++ {
			if c, _ := h.GetPixel(x, y); c != Red {
				t.Fatalf("filled rect missing pixel at (%d,%d): got %v", x, y, c)
			}
		}
	}

	h2 := newHandle()
	h2.Clear(White)
	h2.DrawRect(10, 10, 5, 5, Red, false)
	if c, _ := h2.GetPixel(12, 12); c != White {
		t.Errorf("outline rect interior (12,12) = %v, want White", c)
	}
	if c, _ := h2.GetPixel(10, 10); c != Red {
		t.Errorf("outline rect corner (10,10) = %v, want Red", c)
	}
}

func TestDrawCircleFilledCoversCenter(t *testing.T) {
	h := newHandle()
	h.Clear(White)
	h.DrawCircle(50, 50, 10, Blue, true)
	if c, _ := h.GetPixel(50, 50); c != Blue {
		t.Errorf("filled circle center = %v, want Blue", c)
	}
	if c, _ := h.GetPixel(50, 65); c != White {
		t.Errorf("filled circle outside radius = %v, want White", c)
	}
}

func TestDrawBitmapClips(t *testing.T) {
	h := newHandle()
	h.Clear(White)
	// 2x2 bitmap, all Orange: two pixels per byte, so two bytes.
	src := []byte{byte(Orange)<<4 | byte(Orange), byte(Orange)<<4 | byte(Orange)}
	h.DrawBitmap(Width-1, Height-1, 2, 2, src)
	if c, _ := h.GetPixel(Width-1, Height-1); c != Orange {
		t.Errorf("clipped bitmap in-bounds pixel = %v, want Orange", c)
	}
}
