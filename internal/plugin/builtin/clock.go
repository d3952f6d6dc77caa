// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package builtin holds the plugins the runtime registers before any
// user-supplied plugin: a clock widget and a weather widget, both built
// entirely against the same Context a third-party plugin would use.
package builtin

import (
	"github.com/MePride/pin/internal/plugin"
)

// Clock is a minimal built-in plugin that pushes the current time into
// its widget's display signal on every scheduling tick.
type Clock struct {
	layout string
}

// NewClock returns a Clock plugin formatting the time with layout (a Go
// reference-time layout string, e.g. "15:04:05").
func NewClock(layout string) *Clock {
	if layout == "" {
		layout = "15:04:05"
	}
	return &Clock{layout: layout}
}

func (c *Clock) Init(ctx *plugin.Context) error {
	ctx.SetFontSize(32)
	return nil
}

func (c *Clock) Update(ctx *plugin.Context) error {
	ctx.UpdateContent(ctx.FormatTime(c.layout))
	return nil
}
