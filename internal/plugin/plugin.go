// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package plugin runs user-extensible display widgets as independent
// cooperative workers against a shared, quota-enforced host API.
package plugin

import (
	"time"
)

// MaxPlugins is the size of the registry's fixed table.
const MaxPlugins = 8

// MaxErrors is the consecutive-error threshold that moves a running
// plugin to the Error state.
const MaxErrors = 5

// SuspensionCooldown is how long a quota-suspended plugin waits before
// its worker re-checks whether it may resume.
const SuspensionCooldown = 60 * time.Second

// State is a position in the plugin lifecycle state machine.
type State int

const (
	Unloaded State = iota
	Loaded
	Initialized
	Running
	Suspended
	Error
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loaded:
		return "loaded"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Metadata is a plugin's static identity, supplied once at registration.
type Metadata struct {
	Name               string // unique key, <=31 chars
	Version            string
	Author             string
	Description        string
	Homepage           string
	MinFirmwareVersion string
}

// Config is a plugin's tunable resource and scheduling policy. Register
// clamps and defaults these; zero values mean "use the default."
type Config struct {
	MemoryLimit    int           // bytes; default 64KiB, max 256KiB
	UpdateInterval time.Duration // default 60s, minimum enforced 1s
	APIRateLimit   int           // calls/minute; default 100
	AutoStart      bool
	Persistent     bool
}

const (
	defaultMemoryLimit    = 64 * 1024
	maxMemoryLimit        = 256 * 1024
	defaultUpdateInterval = 60 * time.Second
	minUpdateInterval     = 1 * time.Second
	defaultAPIRateLimit   = 100
)

func (c Config) normalized() Config {
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = defaultMemoryLimit
	}
	if c.MemoryLimit > maxMemoryLimit {
		c.MemoryLimit = maxMemoryLimit
	}
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = defaultUpdateInterval
	}
	if c.UpdateInterval < minUpdateInterval {
		c.UpdateInterval = minUpdateInterval
	}
	if c.APIRateLimit <= 0 {
		c.APIRateLimit = defaultAPIRateLimit
	}
	return c
}

// Stats is a plugin's live runtime counters, read by the status API and
// used internally to drive quota and lifecycle decisions.
type Stats struct {
	MemoryUsed          int
	MemoryPeak          int
	APICallsCount       int
	APICallsWindowStart time.Time
	UpdateCount         uint64
	ErrorCount          int
}

// Plugin is the mandatory capability every registered plugin implements.
// Init is the only callback the runtime requires; the rest are optional
// capabilities detected by type assertion against the narrower
// interfaces below, the same way io.Closer-style optional interfaces
// work in the standard library — a plugin with nothing to do at Start
// simply doesn't implement Starter.
type Plugin interface {
	Init(ctx *Context) error
}

// Starter runs once when a plugin transitions Initialized -> Running.
type Starter interface {
	Start(ctx *Context) error
}

// Updater is invoked once per scheduling tick while Running.
type Updater interface {
	Update(ctx *Context) error
}

// Renderer draws the plugin's widget region onto its assigned canvas
// element(s) via ctx's Display API; called after a successful Update.
type Renderer interface {
	Render(ctx *Context) error
}

// ConfigChanger is notified when the plugin's persisted config keys
// change out from under it (e.g. via the settings HTTP API).
type ConfigChanger interface {
	ConfigChanged(ctx *Context, key, value string) error
}

// Stopper runs when a plugin transitions Running -> Loaded (disabled).
type Stopper interface {
	Stop(ctx *Context) error
}

// Cleaner runs on the path to Unloaded, releasing any resources Init
// acquired outside the tracked allocator.
type Cleaner interface {
	Cleanup(ctx *Context) error
}

// WidgetRegion is the rectangular area of the panel a plugin is allowed
// to draw into, advisory to Display API calls.
type WidgetRegion struct {
	X, Y          int
	Width, Height int
}

// instance is the runtime's private bookkeeping record for one
// registered plugin: everything Metadata/Config/Plugin doesn't carry.
type instance struct {
	meta   Metadata
	config Config
	impl   Plugin
	ctx    *Context

	state          State
	suspendedUntil time.Time

	cancel func()
	done   chan struct{}
}
