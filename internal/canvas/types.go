// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package canvas implements the persisted scene model — canvases of
// z-ordered elements — and its deterministic rasterization onto a panel
// framebuffer.
package canvas

import "github.com/MePride/pin/panel"

// Limits mirrored from the data model: a canvas holds at most this many
// elements, and several string fields are bounded to keep persisted
// blobs small.
const (
	MaxElements   = 50
	MaxCanvasID   = 31
	MaxCanvasName = 63
	MaxElementID  = 31
	MaxTextLen    = 511
	MaxImageIDLen = 31
	MaxImageBytes = 64 * 1024
)

// Kind discriminates an Element's payload, carried as the numeric `type`
// tag in the JSON wire schema (0:Text 1:Image 2:Rect 3:Line 4:Circle).
type Kind int

const (
	KindText Kind = iota
	KindImage
	KindRect
	KindLine
	KindCircle
)

func (k Kind) valid() bool { return k >= KindText && k <= KindCircle }

// Align is the horizontal text alignment within an element's bounds.
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

// ImageFormat is the encoding of an Image element's referenced bytes.
type ImageFormat int

const (
	FormatBmp ImageFormat = iota
	FormatPng
	FormatJpg
)

// Bounds is an element's placement rectangle. X/Y may be negative or
// extend past the panel; clipping happens only at draw time, never at
// store time.
type Bounds struct {
	X int16
	Y int16
	W uint16
	H uint16
}

// TextProps holds the Text element payload.
type TextProps struct {
	Text     string
	FontSize int // one of 12, 16, 24, 32
	Color    panel.Color
	Align    Align
	Bold     bool
	Italic   bool
}

// ImageProps holds the Image element payload.
type ImageProps struct {
	ImageID        string
	Format         ImageFormat
	MaintainAspect bool
	Opacity        uint8
}

// ShapeProps holds the Rect/Line/Circle element payload. Filled only
// applies to Rect and Circle; Line always draws a single stroke.
type ShapeProps struct {
	FillColor   panel.Color
	BorderColor panel.Color
	BorderWidth uint8
	Filled      bool
}

// Element is one drawable entity in a Canvas. Exactly one of Text/Image/
// Shape is meaningful, selected by Kind — a tagged variant rather than
// the C union the source protocol models this as, matched exhaustively
// at render time.
type Element struct {
	ID      string
	Kind    Kind
	Bounds  Bounds
	ZIndex  uint8
	Visible bool

	Text  TextProps
	Image ImageProps
	Shape ShapeProps
}

// Canvas is a named, persisted scene of elements.
type Canvas struct {
	ID              string
	Name            string
	BackgroundColor panel.Color
	CreatedTime     int64
	ModifiedTime    int64
	Elements        []Element
}

// ImageEntry is a stored image's bytes plus metadata, keyed by image id
// in the image store.
type ImageEntry struct {
	Data       []byte
	Format     ImageFormat
	Size       int
	StoredTime int64
}
