// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package plugin

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/MePride/pin/internal/ferr"
	"github.com/MePride/pin/internal/store"
)

func newTestRegistry() *Registry {
	return New(store.NewMemory(), []string{"example.com"}, zerolog.Nop())
}

type stubPlugin struct {
	update func(ctx *Context) error
}

func (p *stubPlugin) Init(ctx *Context) error { return nil }
func (p *stubPlugin) Update(ctx *Context) error {
	if p.update == nil {
		return nil
	}
	return p.update(ctx)
}

func TestContextAllocEnforcesMemoryLimit(t *testing.T) {
	ctx := newContext("t", Config{MemoryLimit: 1024, APIRateLimit: 100}.normalized(), WidgetRegion{}, store.NewMemory(), nil, newEventBus(), &Stats{}, func(string, string, string, ...any) {})

	if err := ctx.Alloc(2048); err == nil {
		t.Fatalf("Alloc(2048) over a 1024 limit: want error, got nil")
	}
	if ctx.stats.MemoryUsed != 0 {
		t.Fatalf("MemoryUsed after rejected alloc = %d, want 0", ctx.stats.MemoryUsed)
	}

	if err := ctx.Alloc(512); err != nil {
		t.Fatalf("Alloc(512): %v", err)
	}
	if ctx.stats.MemoryUsed != 512 {
		t.Fatalf("MemoryUsed = %d, want 512", ctx.stats.MemoryUsed)
	}
	ctx.Free(512)
	if ctx.stats.MemoryUsed != 0 {
		t.Fatalf("MemoryUsed after Free = %d, want 0", ctx.stats.MemoryUsed)
	}
}

// registerForTick registers a stub plugin without auto-starting its
// worker goroutine, returning the internal instance so the test can
// drive scheduling rounds directly via tick, avoiding any dependence on
// real wall-clock ticker intervals.
func registerForTick(t *testing.T, r *Registry, name string, cfg Config, p *stubPlugin) *instance {
	t.Helper()
	if err := r.Register(Metadata{Name: name, Version: "1.0"}, cfg, p, WidgetRegion{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.mu.Lock()
	inst := r.plugins[name]
	r.mu.Unlock()
	inst.state = Running
	return inst
}

func TestRateLimitViolationSuspendsThenRecovers(t *testing.T) {
	r := newTestRegistry()
	p := &stubPlugin{update: func(ctx *Context) error {
		return ferr.New(ferr.RateLimited, "too chatty")
	}}
	inst := registerForTick(t, r, "chatty", Config{UpdateInterval: time.Second}, p)

	if ok := r.tick(inst); !ok {
		t.Fatalf("tick: worker should keep running after a single rate-limit violation")
	}
	if inst.state != Suspended {
		t.Fatalf("state after rate-limit violation = %v, want Suspended", inst.state)
	}

	inst.suspendedUntil = time.Now().Add(-time.Second)
	p.update = func(ctx *Context) error { return nil }
	if ok := r.tick(inst); !ok {
		t.Fatalf("tick: worker should keep running after recovering")
	}
	if inst.state != Running {
		t.Fatalf("state after cooldown elapsed = %v, want Running", inst.state)
	}
}

// A rejected allocation is an ordinary per-tick error, not a
// suspension: the plugin stays Running and the very next tick can
// succeed once it frees memory.
func TestOutOfMemoryRetriesOnNextTickWithoutSuspension(t *testing.T) {
	r := newTestRegistry()
	p := &stubPlugin{update: func(ctx *Context) error {
		return ctx.Alloc(2048)
	}}
	inst := registerForTick(t, r, "hog", Config{MemoryLimit: 1024, UpdateInterval: time.Second}, p)

	if ok := r.tick(inst); !ok {
		t.Fatalf("tick: worker should keep running after a rejected allocation")
	}
	if inst.state != Running {
		t.Fatalf("state after OutOfMemory = %v, want Running (no suspension)", inst.state)
	}
	if inst.ctx.stats.MemoryUsed != 0 {
		t.Fatalf("MemoryUsed after rejected alloc = %d, want 0", inst.ctx.stats.MemoryUsed)
	}

	p.update = func(ctx *Context) error { return ctx.Alloc(512) }
	if ok := r.tick(inst); !ok {
		t.Fatalf("tick: worker should keep running on the recovery tick")
	}
	if inst.ctx.stats.ErrorCount != 0 {
		t.Fatalf("ErrorCount after successful tick = %d, want 0", inst.ctx.stats.ErrorCount)
	}
	if inst.ctx.stats.MemoryUsed != 512 {
		t.Fatalf("MemoryUsed after in-budget alloc = %d, want 512", inst.ctx.stats.MemoryUsed)
	}
}

func TestFiveConsecutiveErrorsEntersErrorState(t *testing.T) {
	r := newTestRegistry()
	p := &stubPlugin{update: func(ctx *Context) error {
		return ferr.New(ferr.InvalidState, "boom")
	}}
	inst := registerForTick(t, r, "flaky", Config{UpdateInterval: time.Second}, p)

	for i := 0; i < MaxErrors-1; i++ {
		if ok := r.tick(inst); !ok {
			t.Fatalf("tick %d: worker exited before reaching MaxErrors", i)
		}
		if inst.state == Error {
			t.Fatalf("tick %d: state reached Error too early", i)
		}
	}

	if ok := r.tick(inst); ok {
		t.Fatalf("tick at MaxErrors: want worker to stop, got ok=true")
	}
	if inst.state != Error {
		t.Fatalf("state after %d consecutive errors = %v, want Error", MaxErrors, inst.state)
	}
}

func TestUnregisterInvalidatesHeldContext(t *testing.T) {
	r := newTestRegistry()
	p := &stubPlugin{}
	if err := r.Register(Metadata{Name: "weather", Version: "1.0"}, Config{}, p, WidgetRegion{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.mu.Lock()
	ctx := r.plugins["weather"].ctx
	r.mu.Unlock()

	if ctx.Token().String() == "00000000-0000-0000-0000-000000000000" {
		t.Fatalf("Token() returned the zero UUID, want a generated one")
	}

	if err := r.Unregister("weather"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if _, err := ctx.ConfigGet("anything"); err == nil {
		t.Fatalf("ConfigGet on a context held past Unregister: want error, got nil")
	}
}

func TestRegisterRejectsDuplicateAndOverCapacity(t *testing.T) {
	r := newTestRegistry()
	p := &stubPlugin{}
	if err := r.Register(Metadata{Name: "a", Version: "1"}, Config{}, p, WidgetRegion{}); err != nil {
		t.Fatalf("Register a: %v", err)
	}
	if err := r.Register(Metadata{Name: "a", Version: "1"}, Config{}, p, WidgetRegion{}); err == nil {
		t.Fatalf("duplicate Register: want error, got nil")
	}

	for i := 1; i < MaxPlugins; i++ {
		name := string(rune('b' + i))
		if err := r.Register(Metadata{Name: name, Version: "1"}, Config{}, &stubPlugin{}, WidgetRegion{}); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}
	if err := r.Register(Metadata{Name: "overflow", Version: "1"}, Config{}, &stubPlugin{}, WidgetRegion{}); err == nil {
		t.Fatalf("Register past MaxPlugins: want error, got nil")
	}
}
