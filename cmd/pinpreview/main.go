// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command pinpreview renders a canvas export (or a running device's
// live framebuffer) as ANSI-256 block art in a terminal, for iterating
// on a layout without a physical panel on the desk.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"io"
	"net/http"
	"os"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/MePride/pin/internal/canvas"
	"github.com/MePride/pin/panel"
)

func main() {
	canvasFile := flag.String("canvas", "", "path to a canvas JSON export to render")
	deviceAddr := flag.String("device", "", "host:port of a running pind to pull the live framebuffer from")
	flag.Parse()

	w := colorable.NewColorableStdout()
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		fmt.Fprintln(os.Stderr, "warning: stdout is not a terminal, ANSI output may not render")
	}

	var fb []byte
	var err error
	switch {
	case *canvasFile != "":
		fb, err = renderCanvasFile(*canvasFile)
	case *deviceAddr != "":
		fb, err = fetchFramebuffer(*deviceAddr)
	default:
		fmt.Fprintln(os.Stderr, "usage: pinpreview -canvas path/to/canvas.json | -device host:port")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "pinpreview:", err)
		os.Exit(1)
	}

	if err := renderFramebuffer(w, fb); err != nil {
		fmt.Fprintln(os.Stderr, "pinpreview:", err)
		os.Exit(1)
	}
}

func renderCanvasFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading canvas file: %w", err)
	}
	c, err := canvas.ImportJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parsing canvas json: %w", err)
	}
	h := panel.NewSimulated()
	h.Clear(c.BackgroundColor)
	lookup := func(string) (*canvas.ImageEntry, bool) { return nil, false }
	canvas.Render(h, c, lookup, nil)
	return h.Framebuffer(), nil
}

func fetchFramebuffer(addr string) ([]byte, error) {
	resp, err := http.Get("http://" + addr + "/api/display/framebuffer")
	if err != nil {
		return nil, fmt.Errorf("fetching framebuffer: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching framebuffer: status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// renderFramebuffer prints fb (nibble-packed, panel.Width x panel.Height)
// as one ANSI-256 block per pixel and one terminal line per pixel row,
// the same block-per-pixel approach screen1d uses for its single-row LED
// strip preview, extended to a full 2D framebuffer.
func renderFramebuffer(w io.Writer, fb []byte) error {
	if len(fb) != panel.FramebufferSize {
		return fmt.Errorf("framebuffer is %d bytes, want %d", len(fb), panel.FramebufferSize)
	}
	h := &previewHandle{fb: fb}
	palette := ansi256.Default

	for y := 0; y < panel.Height; y++ {
		for x := 0; x < panel.Width; x++ {
			c, _ := h.GetPixel(x, y)
			r, g, b := c.RGB()
			fmt.Fprint(w, palette.Block(color.NRGBA{R: r, G: g, B: b, A: 255}))
		}
		fmt.Fprint(w, "\033[0m\n")
	}
	return nil
}

// previewHandle reads a raw nibble-packed framebuffer byte slice using
// the same bit layout panel.Handle.GetPixel assumes, without needing a
// live Handle (and its hardware-bound fields) to decode it.
type previewHandle struct {
	fb []byte
}

func (p *previewHandle) GetPixel(x, y int) (panel.Color, bool) {
	if x < 0 || x >= panel.Width || y < 0 || y >= panel.Height {
		return panel.Black, false
	}
	idx := y*panel.Width + x
	byteIdx := idx / 2
	if idx%2 == 0 {
		return panel.Color(p.fb[byteIdx] >> 4), true
	}
	return panel.Color(p.fb[byteIdx] & 0x0F), true
}
