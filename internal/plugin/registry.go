// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package plugin

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/MePride/pin/internal/ferr"
	"github.com/MePride/pin/internal/store"
)

// commandQueueCapacity bounds the supervisor's enable/disable/config
// change inbox, matching the bounded-queue ordering guarantee.
const commandQueueCapacity = 10

// Registry is the fixed-size table of registered plugins plus the
// supervisor that starts and stops their per-plugin workers. A single
// Registry is shared by every plugin's Context for the in-process event
// bus and the persisted KV store.
type Registry struct {
	mu      sync.Mutex
	kv      store.KV
	allow   []string
	bus     *EventBus
	log     zerolog.Logger
	plugins map[string]*instance
	cmds    chan command
}

type cmdKind int

const (
	cmdEnable cmdKind = iota
	cmdDisable
	cmdConfigChanged
)

type command struct {
	kind     cmdKind
	name     string
	key, val string
}

// New returns an empty Registry. allow is the compiled-in HTTP
// domain allow-list every plugin's Context enforces.
func New(kv store.KV, allow []string, log zerolog.Logger) *Registry {
	r := &Registry{
		kv:      kv,
		allow:   allow,
		bus:     newEventBus(),
		log:     log,
		plugins: make(map[string]*instance),
		cmds:    make(chan command, commandQueueCapacity),
	}
	go r.supervise()
	return r
}

// Register validates meta/config, assigns the plugin a Context, and
// calls its Init. On success the plugin is Initialized and, if
// cfg.AutoStart is set, enabled immediately.
func (r *Registry) Register(meta Metadata, cfg Config, impl Plugin, region WidgetRegion) error {
	if meta.Name == "" {
		return ferr.New(ferr.InvalidArgument, "plugin name must not be empty")
	}
	if meta.Version == "" {
		return ferr.New(ferr.InvalidArgument, "plugin %q: version must not be empty", meta.Name)
	}
	if impl == nil {
		return ferr.New(ferr.InvalidArgument, "plugin %q: implementation is nil", meta.Name)
	}
	cfg = cfg.normalized()

	r.mu.Lock()
	if len(r.plugins) >= MaxPlugins {
		r.mu.Unlock()
		return ferr.New(ferr.ResourceExhausted, "registry already holds %d plugins", MaxPlugins)
	}
	if _, exists := r.plugins[meta.Name]; exists {
		r.mu.Unlock()
		return ferr.New(ferr.AlreadyExists, "plugin %q already registered", meta.Name)
	}
	stats := &Stats{}
	logf := func(level, tag, format string, args ...any) {
		ev := r.log.Info()
		switch level {
		case "debug":
			ev = r.log.Debug()
		case "warn":
			ev = r.log.Warn()
		case "error":
			ev = r.log.Error()
		}
		ev.Str("plugin", meta.Name).Str("tag", tag).Msgf(format, args...)
	}
	ctx := newContext(meta.Name, cfg, region, r.kv, r.allow, r.bus, stats, logf)
	inst := &instance{meta: meta, config: cfg, impl: impl, ctx: ctx, state: Loaded}
	r.plugins[meta.Name] = inst
	r.mu.Unlock()

	if err := impl.Init(ctx); err != nil {
		r.mu.Lock()
		delete(r.plugins, meta.Name)
		r.mu.Unlock()
		return ferr.Wrap(ferr.InvalidState, err, "plugin %q init failed", meta.Name)
	}

	r.mu.Lock()
	inst.state = Initialized
	r.mu.Unlock()

	if cfg.AutoStart {
		r.Enable(meta.Name, true)
	}
	return nil
}

// Enable requests the supervisor start (enabled=true) or stop
// (enabled=false) a plugin's worker. It is asynchronous: the request is
// queued and processed by the supervisor goroutine.
func (r *Registry) Enable(name string, enabled bool) error {
	k := cmdDisable
	if enabled {
		k = cmdEnable
	}
	select {
	case r.cmds <- command{kind: k, name: name}:
		return nil
	default:
		return ferr.New(ferr.Busy, "plugin command queue full")
	}
}

// NotifyConfigChanged queues a config_changed callback for name.
func (r *Registry) NotifyConfigChanged(name, key, value string) error {
	select {
	case r.cmds <- command{kind: cmdConfigChanged, name: name, key: key, val: value}:
		return nil
	default:
		return ferr.New(ferr.Busy, "plugin command queue full")
	}
}

func (r *Registry) supervise() {
	for cmd := range r.cmds {
		r.mu.Lock()
		inst, ok := r.plugins[cmd.name]
		r.mu.Unlock()
		if !ok {
			continue
		}
		switch cmd.kind {
		case cmdEnable:
			r.start(inst)
		case cmdDisable:
			r.stop(inst)
		case cmdConfigChanged:
			if cc, ok := inst.impl.(ConfigChanger); ok {
				cc.ConfigChanged(inst.ctx, cmd.key, cmd.val)
			}
		}
	}
}

func (r *Registry) start(inst *instance) {
	r.mu.Lock()
	if inst.state != Initialized && inst.state != Loaded {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	if starter, ok := inst.impl.(Starter); ok {
		if err := starter.Start(inst.ctx); err != nil {
			r.mu.Lock()
			inst.state = Error
			r.mu.Unlock()
			return
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.mu.Lock()
	inst.state = Running
	inst.cancel = cancel
	inst.done = done
	r.mu.Unlock()

	go r.runWorker(ctx, inst, done)
}

func (r *Registry) stop(inst *instance) {
	r.mu.Lock()
	cancel := inst.cancel
	done := inst.done
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if stopper, ok := inst.impl.(Stopper); ok {
		stopper.Stop(inst.ctx)
	}
	r.mu.Lock()
	if inst.state != Error {
		inst.state = Loaded
	}
	inst.cancel = nil
	inst.done = nil
	r.mu.Unlock()
}

// Summary is a read-only snapshot of a plugin's identity and runtime
// state, safe to serialize for the status API.
type Summary struct {
	Metadata
	Config
	State State
	Stats Stats
}

// List returns a snapshot of every registered plugin.
func (r *Registry) List() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Summary, 0, len(r.plugins))
	for _, inst := range r.plugins {
		out = append(out, Summary{Metadata: inst.meta, Config: inst.config, State: inst.state, Stats: inst.statsSnapshot()})
	}
	return out
}

// Get returns a snapshot of a single plugin by name.
func (r *Registry) Get(name string) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.plugins[name]
	if !ok {
		return Summary{}, ferr.New(ferr.NotFound, "plugin %q", name)
	}
	return Summary{Metadata: inst.meta, Config: inst.config, State: inst.state, Stats: inst.statsSnapshot()}, nil
}

// Unregister runs cleanup and removes a plugin from the registry,
// stopping its worker first if it was running.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	inst, ok := r.plugins[name]
	r.mu.Unlock()
	if !ok {
		return ferr.New(ferr.NotFound, "plugin %q", name)
	}
	if inst.state == Running || inst.state == Suspended {
		r.stop(inst)
	}
	if cleaner, ok := inst.impl.(Cleaner); ok {
		cleaner.Cleanup(inst.ctx)
	}
	inst.ctx.invalidate()
	r.mu.Lock()
	delete(r.plugins, name)
	r.mu.Unlock()
	return nil
}

func (inst *instance) statsSnapshot() Stats {
	inst.ctx.mu.Lock()
	defer inst.ctx.mu.Unlock()
	return *inst.ctx.stats
}
