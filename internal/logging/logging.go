// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package logging configures the structured logger every subsystem
// writes through. It exists so log call sites share one timestamp
// format and level policy instead of each reaching for the standard
// library's log package independently.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns a zerolog.Logger writing to w at the given minimum level,
// tagged with a "component" field so multiplexed subsystem logs can be
// filtered back apart.
func New(w io.Writer, level zerolog.Level, component string) zerolog.Logger {
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// Default returns the process-wide logger: structured JSON lines on
// stderr at Info level. Subsystems wanting a distinct component tag should
// call New against the same underlying writer instead of this directly.
func Default(component string) zerolog.Logger {
	return New(os.Stderr, zerolog.InfoLevel, component)
}
