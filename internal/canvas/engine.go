// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package canvas

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/MePride/pin/internal/ferr"
	"github.com/MePride/pin/internal/store"
	"github.com/MePride/pin/panel"
)

// Engine owns the canvas and image stores and drives rendering onto a
// panel. All mutating operations persist to kv immediately; Engine
// itself holds only an in-process cache rebuilt from kv at Open.
type Engine struct {
	mu   sync.Mutex
	kv   store.KV
	now  func() int64
	font *FontRenderer

	canvases map[string]*Canvas
	images   map[string]*ImageEntry
}

// Open loads every persisted canvas and image from kv into memory. now
// supplies created_time/modified_time stamps; production callers pass
// time.Now().Unix, tests pass a fixed clock.
func Open(kv store.KV, now func() int64) (*Engine, error) {
	e := &Engine{
		kv:       kv,
		now:      now,
		canvases: make(map[string]*Canvas),
		images:   make(map[string]*ImageEntry),
	}
	ids, err := kv.Keys(store.NamespaceCanvas)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		blob, err := kv.GetBlob(store.NamespaceCanvas, id)
		if err != nil {
			return nil, err
		}
		c, err := ImportJSON(blob)
		if err != nil {
			return nil, ferr.Wrap(ferr.Internal, err, "loading persisted canvas %q", id)
		}
		e.canvases[id] = c
	}
	imgIDs, err := kv.Keys(store.NamespaceImages)
	if err != nil {
		return nil, err
	}
	for _, id := range imgIDs {
		blob, err := kv.GetBlob(store.NamespaceImages, id)
		if err != nil {
			return nil, err
		}
		var entry ImageEntry
		if err := json.Unmarshal(blob, &entry); err != nil {
			return nil, ferr.Wrap(ferr.Internal, err, "loading persisted image %q", id)
		}
		e.images[id] = &entry
	}
	return e, nil
}

// SetFontRenderer installs a real-glyph text renderer for subsequent
// Render/Display calls. Passing nil reverts to the placeholder renderer.
func (e *Engine) SetFontRenderer(f *FontRenderer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.font = f
}

// Create registers a new, empty canvas. It fails if id already exists or
// exceeds the id/name length limits.
func (e *Engine) Create(id, name string, background panel.Color) (*Canvas, error) {
	if len(id) == 0 || len(id) > MaxCanvasID {
		return nil, ferr.New(ferr.InvalidArgument, "canvas id %q: length out of range", id)
	}
	if len(name) > MaxCanvasName {
		return nil, ferr.New(ferr.InvalidArgument, "canvas name %q: too long", name)
	}
	if !background.Valid() {
		return nil, ferr.New(ferr.InvalidArgument, "background color %d invalid", background)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.canvases[id]; exists {
		return nil, ferr.New(ferr.AlreadyExists, "canvas %q already exists", id)
	}
	ts := e.now()
	c := &Canvas{ID: id, Name: name, BackgroundColor: background, CreatedTime: ts, ModifiedTime: ts}
	e.canvases[id] = c
	if err := e.persistLocked(c); err != nil {
		delete(e.canvases, id)
		return nil, err
	}
	return cloneCanvas(c), nil
}

// Delete removes a canvas and its persisted blob.
func (e *Engine) Delete(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.canvases[id]; !ok {
		return ferr.New(ferr.NotFound, "canvas %q", id)
	}
	delete(e.canvases, id)
	if err := e.kv.Erase(store.NamespaceCanvas, id); err != nil {
		return ferr.Wrap(ferr.StorageFail, err, "erasing canvas %q", id)
	}
	if err := e.kv.Commit(store.NamespaceCanvas); err != nil {
		return ferr.Wrap(ferr.StorageFail, err, "committing canvas erase")
	}
	return nil
}

// Get returns a copy of the named canvas.
func (e *Engine) Get(id string) (*Canvas, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.canvases[id]
	if !ok {
		return nil, ferr.New(ferr.NotFound, "canvas %q", id)
	}
	return cloneCanvas(c), nil
}

// List returns every known canvas id in sorted order.
func (e *Engine) List() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.canvases))
	for id := range e.canvases {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Update replaces a canvas's name/background wholesale, leaving its
// elements untouched. Element mutation goes through AddElement/
// UpdateElement/RemoveElement, which operate at finer grain.
func (e *Engine) Update(id, name string, background panel.Color) (*Canvas, error) {
	if len(name) > MaxCanvasName {
		return nil, ferr.New(ferr.InvalidArgument, "canvas name %q: too long", name)
	}
	if !background.Valid() {
		return nil, ferr.New(ferr.InvalidArgument, "background color %d invalid", background)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.canvases[id]
	if !ok {
		return nil, ferr.New(ferr.NotFound, "canvas %q", id)
	}
	c.Name = name
	c.BackgroundColor = background
	c.ModifiedTime = e.now()
	if err := e.persistLocked(c); err != nil {
		return nil, err
	}
	return cloneCanvas(c), nil
}

// AddElement appends el to canvas id, rejecting it once the canvas
// already holds MaxElements or the element id collides with one already
// present.
func (e *Engine) AddElement(id string, el Element) (*Canvas, error) {
	if err := validateElement(el); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.canvases[id]
	if !ok {
		return nil, ferr.New(ferr.NotFound, "canvas %q", id)
	}
	if len(c.Elements) >= MaxElements {
		return nil, ferr.New(ferr.ResourceExhausted, "canvas %q already holds %d elements", id, MaxElements)
	}
	for _, existing := range c.Elements {
		if existing.ID == el.ID {
			return nil, ferr.New(ferr.AlreadyExists, "element %q already exists in canvas %q", el.ID, id)
		}
	}
	c.Elements = append(c.Elements, el)
	c.ModifiedTime = e.now()
	if err := e.persistLocked(c); err != nil {
		return nil, err
	}
	return cloneCanvas(c), nil
}

// UpdateElement replaces the element matching el.ID in canvas id.
func (e *Engine) UpdateElement(id string, el Element) (*Canvas, error) {
	if err := validateElement(el); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.canvases[id]
	if !ok {
		return nil, ferr.New(ferr.NotFound, "canvas %q", id)
	}
	for i, existing := range c.Elements {
		if existing.ID == el.ID {
			c.Elements[i] = el
			c.ModifiedTime = e.now()
			if err := e.persistLocked(c); err != nil {
				return nil, err
			}
			return cloneCanvas(c), nil
		}
	}
	return nil, ferr.New(ferr.NotFound, "element %q in canvas %q", el.ID, id)
}

// RemoveElement deletes the element with the given id from canvas id.
func (e *Engine) RemoveElement(id, elementID string) (*Canvas, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.canvases[id]
	if !ok {
		return nil, ferr.New(ferr.NotFound, "canvas %q", id)
	}
	for i, existing := range c.Elements {
		if existing.ID == elementID {
			c.Elements = append(c.Elements[:i], c.Elements[i+1:]...)
			c.ModifiedTime = e.now()
			if err := e.persistLocked(c); err != nil {
				return nil, err
			}
			return cloneCanvas(c), nil
		}
	}
	return nil, ferr.New(ferr.NotFound, "element %q in canvas %q", elementID, id)
}

// StoreImage saves raw image bytes under imageID, enforcing the
// per-image size ceiling.
func (e *Engine) StoreImage(imageID string, format ImageFormat, data []byte) error {
	if len(imageID) == 0 || len(imageID) > MaxImageIDLen {
		return ferr.New(ferr.InvalidArgument, "image id %q: length out of range", imageID)
	}
	if len(data) > MaxImageBytes {
		return ferr.New(ferr.InvalidArgument, "image %q: %d bytes exceeds %d limit", imageID, len(data), MaxImageBytes)
	}
	entry := &ImageEntry{Data: append([]byte(nil), data...), Format: format, Size: len(data), StoredTime: e.now()}
	blob, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.kv.SetBlob(store.NamespaceImages, imageID, blob); err != nil {
		return ferr.Wrap(ferr.StorageFail, err, "persisting image %q", imageID)
	}
	if err := e.kv.Commit(store.NamespaceImages); err != nil {
		return ferr.Wrap(ferr.StorageFail, err, "committing image %q", imageID)
	}
	e.images[imageID] = entry
	return nil
}

// DeleteImage removes a stored image.
func (e *Engine) DeleteImage(imageID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.images[imageID]; !ok {
		return ferr.New(ferr.NotFound, "image %q", imageID)
	}
	delete(e.images, imageID)
	if err := e.kv.Erase(store.NamespaceImages, imageID); err != nil {
		return ferr.Wrap(ferr.StorageFail, err, "erasing image %q", imageID)
	}
	if err := e.kv.Commit(store.NamespaceImages); err != nil {
		return ferr.Wrap(ferr.StorageFail, err, "committing image erase")
	}
	return nil
}

// Render rasterizes canvas id onto h without transferring it to the
// physical panel; callers that also want it on-screen use Display.
func (e *Engine) Render(h *panel.Handle, id string) error {
	e.mu.Lock()
	c, ok := e.canvases[id]
	if ok {
		c = cloneCanvas(c)
	}
	lookup := e.imageLookupLocked()
	font := e.font
	e.mu.Unlock()
	if !ok {
		return ferr.New(ferr.NotFound, "canvas %q", id)
	}
	Render(h, c, lookup, font)
	return nil
}

// ExportJSON returns the canonical wire representation of canvas id.
func (e *Engine) ExportJSON(id string) ([]byte, error) {
	e.mu.Lock()
	c, ok := e.canvases[id]
	e.mu.Unlock()
	if !ok {
		return nil, ferr.New(ferr.NotFound, "canvas %q", id)
	}
	return ExportJSON(c)
}

// ImportJSON decodes data as a canvas and installs it, overwriting any
// existing canvas with the same id.
func (e *Engine) ImportJSON(data []byte) (*Canvas, error) {
	c, err := ImportJSON(data)
	if err != nil {
		return nil, err
	}
	if len(c.Elements) > MaxElements {
		return nil, ferr.New(ferr.InvalidArgument, "canvas %q: %d elements exceeds %d limit", c.ID, len(c.Elements), MaxElements)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.canvases[c.ID] = c
	if err := e.persistLocked(c); err != nil {
		return nil, err
	}
	return cloneCanvas(c), nil
}

func (e *Engine) imageLookupLocked() ImageLookup {
	snapshot := make(map[string]*ImageEntry, len(e.images))
	for k, v := range e.images {
		snapshot[k] = v
	}
	return func(id string) (*ImageEntry, bool) {
		entry, ok := snapshot[id]
		return entry, ok
	}
}

func (e *Engine) persistLocked(c *Canvas) error {
	blob, err := ExportJSON(c)
	if err != nil {
		return err
	}
	if err := e.kv.SetBlob(store.NamespaceCanvas, c.ID, blob); err != nil {
		return ferr.Wrap(ferr.StorageFail, err, "persisting canvas %q", c.ID)
	}
	if err := e.kv.Commit(store.NamespaceCanvas); err != nil {
		return ferr.Wrap(ferr.StorageFail, err, "committing canvas %q", c.ID)
	}
	return nil
}

func validateElement(el Element) error {
	if len(el.ID) == 0 || len(el.ID) > MaxElementID {
		return ferr.New(ferr.InvalidArgument, "element id %q: length out of range", el.ID)
	}
	if !el.Kind.valid() {
		return ferr.New(ferr.InvalidArgument, "element %q: kind %d invalid", el.ID, el.Kind)
	}
	if el.Kind == KindText && len(el.Text.Text) > MaxTextLen {
		return ferr.New(ferr.InvalidArgument, "element %q: text too long", el.ID)
	}
	return nil
}

func cloneCanvas(c *Canvas) *Canvas {
	cp := *c
	cp.Elements = append([]Element(nil), c.Elements...)
	return &cp
}
