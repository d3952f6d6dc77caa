// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package canvas

import (
	"encoding/json"

	"github.com/MePride/pin/internal/ferr"
	"github.com/MePride/pin/panel"
)

// wireCanvas is the canonical JSON shape for a Canvas. Fields are all
// named explicitly rather than reusing Canvas/Element directly so the
// wire schema can evolve independently of the in-memory layout; unknown
// incoming fields are ignored by encoding/json by default.
type wireCanvas struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	BackgroundColor int           `json:"background_color"`
	CreatedTime     int64         `json:"created_time"`
	ModifiedTime    int64         `json:"modified_time"`
	Elements        []wireElement `json:"elements"`
}

type wireElement struct {
	ID      string          `json:"id"`
	Type    int             `json:"type"`
	X       int16           `json:"x"`
	Y       int16           `json:"y"`
	Width   uint16          `json:"width"`
	Height  uint16          `json:"height"`
	ZIndex  uint8           `json:"z_index"`
	Visible bool            `json:"visible"`
	Props   json.RawMessage `json:"props"`
}

// Per-kind props objects. Every documented field for a kind is always
// serialized, zero-valued or not, so a canvas has exactly one canonical
// byte representation and export -> import -> export round-trips
// byte-identically.
type wireTextProps struct {
	Text     string `json:"text"`
	FontSize int    `json:"font_size"`
	Color    int    `json:"color"`
	Align    int    `json:"align"`
	Bold     bool   `json:"bold"`
	Italic   bool   `json:"italic"`
}

type wireImageProps struct {
	ImageID        string `json:"image_id"`
	Format         int    `json:"format"`
	MaintainAspect bool   `json:"maintain_aspect_ratio"`
	Opacity        int    `json:"opacity"`
}

type wireShapeProps struct {
	FillColor   int  `json:"fill_color"`
	BorderColor int  `json:"border_color"`
	BorderWidth int  `json:"border_width"`
	Filled      bool `json:"filled"`
}

// wireProps is the union decode target for an incoming props object.
// Fields that don't apply to the element's kind (or are absent from an
// older export) decode to their zero values; unknown fields are ignored.
type wireProps struct {
	Text           string `json:"text"`
	FontSize       int    `json:"font_size"`
	Color          int    `json:"color"`
	Align          int    `json:"align"`
	Bold           bool   `json:"bold"`
	Italic         bool   `json:"italic"`
	ImageID        string `json:"image_id"`
	Format         int    `json:"format"`
	MaintainAspect bool   `json:"maintain_aspect_ratio"`
	Opacity        int    `json:"opacity"`
	FillColor      int    `json:"fill_color"`
	BorderColor    int    `json:"border_color"`
	BorderWidth    int    `json:"border_width"`
	Filled         bool   `json:"filled"`
}

// ExportJSON renders c into its canonical wire representation.
func ExportJSON(c *Canvas) ([]byte, error) {
	w := wireCanvas{
		ID:              c.ID,
		Name:            c.Name,
		BackgroundColor: int(c.BackgroundColor),
		CreatedTime:     c.CreatedTime,
		ModifiedTime:    c.ModifiedTime,
		Elements:        make([]wireElement, len(c.Elements)),
	}
	for i, el := range c.Elements {
		we, err := toWireElement(el)
		if err != nil {
			return nil, err
		}
		w.Elements[i] = we
	}
	return json.Marshal(w)
}

// ImportJSON parses the canonical wire representation into a Canvas.
// Fields absent from the payload decode to their zero value and unknown
// fields are silently ignored, so exports from older or newer firmware
// still import cleanly.
func ImportJSON(data []byte) (*Canvas, error) {
	var w wireCanvas
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, ferr.Wrap(ferr.InvalidArgument, err, "decoding canvas json")
	}
	if !panel.Color(w.BackgroundColor).Valid() {
		return nil, ferr.New(ferr.InvalidArgument, "background_color %d out of range", w.BackgroundColor)
	}
	c := &Canvas{
		ID:              w.ID,
		Name:            w.Name,
		BackgroundColor: panel.Color(w.BackgroundColor),
		CreatedTime:     w.CreatedTime,
		ModifiedTime:    w.ModifiedTime,
		Elements:        make([]Element, len(w.Elements)),
	}
	for i, we := range w.Elements {
		el, err := fromWireElement(we)
		if err != nil {
			return nil, err
		}
		c.Elements[i] = el
	}
	return c, nil
}

// ExportElementJSON renders a single element into its canonical wire
// representation, the shape used inside a canvas's "elements" array and
// also accepted standalone by the add/update-element HTTP routes.
func ExportElementJSON(el Element) ([]byte, error) {
	we, err := toWireElement(el)
	if err != nil {
		return nil, err
	}
	return json.Marshal(we)
}

// ImportElementJSON decodes a single element from its canonical wire
// representation.
func ImportElementJSON(data []byte) (Element, error) {
	var w wireElement
	if err := json.Unmarshal(data, &w); err != nil {
		return Element{}, ferr.Wrap(ferr.InvalidArgument, err, "decoding element json")
	}
	return fromWireElement(w)
}

func toWireElement(el Element) (wireElement, error) {
	w := wireElement{
		ID:      el.ID,
		Type:    int(el.Kind),
		X:       el.Bounds.X,
		Y:       el.Bounds.Y,
		Width:   el.Bounds.W,
		Height:  el.Bounds.H,
		ZIndex:  el.ZIndex,
		Visible: el.Visible,
	}
	var props any
	switch el.Kind {
	case KindText:
		props = wireTextProps{
			Text:     el.Text.Text,
			FontSize: el.Text.FontSize,
			Color:    int(el.Text.Color),
			Align:    int(el.Text.Align),
			Bold:     el.Text.Bold,
			Italic:   el.Text.Italic,
		}
	case KindImage:
		props = wireImageProps{
			ImageID:        el.Image.ImageID,
			Format:         int(el.Image.Format),
			MaintainAspect: el.Image.MaintainAspect,
			Opacity:        int(el.Image.Opacity),
		}
	case KindRect, KindLine, KindCircle:
		props = wireShapeProps{
			FillColor:   int(el.Shape.FillColor),
			BorderColor: int(el.Shape.BorderColor),
			BorderWidth: int(el.Shape.BorderWidth),
			Filled:      el.Shape.Filled,
		}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return wireElement{}, ferr.Wrap(ferr.Internal, err, "encoding element %q props", el.ID)
	}
	w.Props = raw
	return w, nil
}

func fromWireElement(w wireElement) (Element, error) {
	k := Kind(w.Type)
	if !k.valid() {
		return Element{}, ferr.New(ferr.InvalidArgument, "element %q: type %d out of range", w.ID, w.Type)
	}
	el := Element{
		ID:      w.ID,
		Kind:    k,
		Bounds:  Bounds{X: w.X, Y: w.Y, W: w.Width, H: w.Height},
		ZIndex:  w.ZIndex,
		Visible: w.Visible,
	}
	var p wireProps
	if len(w.Props) != 0 {
		if err := json.Unmarshal(w.Props, &p); err != nil {
			return Element{}, ferr.Wrap(ferr.InvalidArgument, err, "decoding element %q props", w.ID)
		}
	}
	switch k {
	case KindText:
		el.Text = TextProps{
			Text:     p.Text,
			FontSize: p.FontSize,
			Color:    panel.Color(p.Color),
			Align:    Align(p.Align),
			Bold:     p.Bold,
			Italic:   p.Italic,
		}
	case KindImage:
		el.Image = ImageProps{
			ImageID:        p.ImageID,
			Format:         ImageFormat(p.Format),
			MaintainAspect: p.MaintainAspect,
			Opacity:        uint8(p.Opacity),
		}
	case KindRect, KindLine, KindCircle:
		el.Shape = ShapeProps{
			FillColor:   panel.Color(p.FillColor),
			BorderColor: panel.Color(p.BorderColor),
			BorderWidth: uint8(p.BorderWidth),
			Filled:      p.Filled,
		}
	}
	return el, nil
}
