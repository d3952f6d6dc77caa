// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package canvas

import (
	"bytes"
	"testing"

	"github.com/MePride/pin/internal/store"
	"github.com/MePride/pin/panel"
)

func fixedClock(ts int64) func() int64 {
	return func() int64 { return ts }
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(store.NewMemory(), fixedClock(1000))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return e
}

func TestZOrderLaterDrawsOverEarlier(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Create("home", "Home", panel.White); err != nil {
		t.Fatalf("Create: %v", err)
	}

	back := Element{
		ID: "back", Kind: KindRect, Visible: true, ZIndex: 0,
		Bounds: Bounds{X: 0, Y: 0, W: 20, H: 20},
		Shape:  ShapeProps{FillColor: panel.Red, BorderColor: panel.Red, Filled: true},
	}
	front := Element{
		ID: "front", Kind: KindRect, Visible: true, ZIndex: 1,
		Bounds: Bounds{X: 5, Y: 5, W: 5, H: 5},
		Shape:  ShapeProps{FillColor: panel.Blue, BorderColor: panel.Blue, Filled: true},
	}
	if _, err := e.AddElement("home", back); err != nil {
		t.Fatalf("AddElement(back): %v", err)
	}
	if _, err := e.AddElement("home", front); err != nil {
		t.Fatalf("AddElement(front): %v", err)
	}

	h := panel.NewSimulated()
	if err := e.Render(h, "home"); err != nil {
		t.Fatalf("Render: %v", err)
	}

	if c, _ := h.GetPixel(7, 5); c != panel.Blue {
		t.Errorf("(7,5) = %v, want Blue (higher z_index wins)", c)
	}
	if c, _ := h.GetPixel(2, 5); c != panel.Red {
		t.Errorf("(2,5) = %v, want Red (outside front element)", c)
	}
}

func TestAddElementRejectsOverLimitAndDuplicateIDs(t *testing.T) {
	e := newTestEngine(t)
	e.Create("c", "C", panel.White)

	for i := 0; i < MaxElements; i++ {
		el := Element{ID: elemID(i), Kind: KindLine, Visible: true, Bounds: Bounds{W: 1, H: 1}}
		if _, err := e.AddElement("c", el); err != nil {
			t.Fatalf("AddElement(%d): %v", i, err)
		}
	}
	overflow := Element{ID: "overflow", Kind: KindLine, Visible: true, Bounds: Bounds{W: 1, H: 1}}
	if _, err := e.AddElement("c", overflow); err == nil {
		t.Errorf("AddElement past MaxElements: want error, got nil")
	}

	e2 := newTestEngine(t)
	e2.Create("c2", "C2", panel.White)
	dup := Element{ID: "x", Kind: KindLine, Visible: true, Bounds: Bounds{W: 1, H: 1}}
	if _, err := e2.AddElement("c2", dup); err != nil {
		t.Fatalf("first AddElement: %v", err)
	}
	if _, err := e2.AddElement("c2", dup); err == nil {
		t.Errorf("duplicate element id: want error, got nil")
	}
}

func TestExportImportJSONRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	e.Create("rt", "Round Trip", panel.Yellow)
	el := Element{
		ID: "label", Kind: KindText, Visible: true, ZIndex: 3,
		Bounds: Bounds{X: 1, Y: 2, W: 100, H: 20},
		Text:   TextProps{Text: "hello", FontSize: 16, Color: panel.Black, Align: AlignCenter, Bold: true},
	}
	if _, err := e.AddElement("rt", el); err != nil {
		t.Fatalf("AddElement: %v", err)
	}

	blob, err := e.ExportJSON("rt")
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	if !bytes.Contains(blob, []byte(`"color":0`)) || !bytes.Contains(blob, []byte(`"italic":false`)) {
		t.Fatalf("export omitted zero-valued canonical fields: %s", blob)
	}

	got, err := ImportJSON(blob)
	if err != nil {
		t.Fatalf("ImportJSON: %v", err)
	}

	// Re-exporting the freshly imported canvas must reproduce the
	// original bytes exactly: the wire form is canonical, with every
	// documented field for each element kind always present.
	blob2, err := ExportJSON(got)
	if err != nil {
		t.Fatalf("re-ExportJSON: %v", err)
	}
	if !bytes.Equal(blob, blob2) {
		t.Fatalf("re-exported JSON differs from original:\n first: %s\nsecond: %s", blob, blob2)
	}

	if got.ID != "rt" || got.Name != "Round Trip" || got.BackgroundColor != panel.Yellow {
		t.Fatalf("round-tripped canvas header mismatch: %+v", got)
	}
	if len(got.Elements) != 1 {
		t.Fatalf("round-tripped element count = %d, want 1", len(got.Elements))
	}
	re := got.Elements[0]
	if re.ID != "label" || re.Kind != KindText || re.ZIndex != 3 {
		t.Fatalf("round-tripped element mismatch: %+v", re)
	}
	if re.Text.Text != "hello" || re.Text.FontSize != 16 || re.Text.Color != panel.Black ||
		re.Text.Align != AlignCenter || !re.Text.Bold {
		t.Fatalf("round-tripped text props mismatch: %+v", re.Text)
	}
}

func TestImportJSONIgnoresUnknownFields(t *testing.T) {
	raw := []byte(`{
		"id": "legacy",
		"name": "Legacy",
		"background_color": 1,
		"created_time": 10,
		"modified_time": 10,
		"future_field": "ignored",
		"elements": [
			{"id": "a", "type": 2, "x": 0, "y": 0, "width": 4, "height": 4,
			 "z_index": 0, "visible": true,
			 "props": {"fill_color": 2, "border_color": 2, "filled": true, "unknown_prop": 99}}
		]
	}`)
	c, err := ImportJSON(raw)
	if err != nil {
		t.Fatalf("ImportJSON: %v", err)
	}
	if c.ID != "legacy" || len(c.Elements) != 1 {
		t.Fatalf("unexpected decode: %+v", c)
	}
}

func TestStoreImageRejectsOversize(t *testing.T) {
	e := newTestEngine(t)
	big := make([]byte, MaxImageBytes+1)
	if err := e.StoreImage("too-big", FormatPng, big); err == nil {
		t.Errorf("StoreImage over limit: want error, got nil")
	}
	ok := make([]byte, MaxImageBytes)
	if err := e.StoreImage("ok", FormatPng, ok); err != nil {
		t.Errorf("StoreImage at limit: %v", err)
	}
}

func elemID(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return string(letters[i%len(letters)]) + string(rune('0'+i/len(letters)))
}
