// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package display is the façade every other subsystem goes through to
// touch the panel: one mutex, per-operation deadlines, and the
// refresh-mode policy that decides when a partial refresh gets
// upgraded to a full one. Nothing outside this package calls a
// *panel.Handle method directly.
package display

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MePride/pin/internal/ferr"
	"github.com/MePride/pin/panel"
)

const (
	quickOpDeadline   = 100 * time.Millisecond
	drawOpDeadline    = time.Second
	sleepWakeDeadline = 5 * time.Second
	refreshDeadline   = 30 * time.Second

	defaultPartialRefreshLimit = 10
	defaultFullRefreshInterval = 1800 * time.Second
	defaultSleepAfterInactive  = 600 * time.Second
)

// Policy tunes the refresh-mode upgrade and auto-sleep thresholds.
type Policy struct {
	PartialRefreshLimit int
	FullRefreshInterval time.Duration
	SleepAfterInactive  time.Duration
}

func (p Policy) normalized() Policy {
	if p.PartialRefreshLimit <= 0 {
		p.PartialRefreshLimit = defaultPartialRefreshLimit
	}
	if p.FullRefreshInterval <= 0 {
		p.FullRefreshInterval = defaultFullRefreshInterval
	}
	if p.SleepAfterInactive <= 0 {
		p.SleepAfterInactive = defaultSleepAfterInactive
	}
	return p
}

// Stats is a snapshot of refresh activity, exposed to callers alongside
// the Prometheus metrics this package also registers.
type Stats struct {
	FullRefreshCount    uint64
	PartialRefreshCount uint64
	TimeoutCount        uint64
	LastRefreshTime     time.Time
	PartialStreak       int
	IsSleeping          bool
}

// Facade serializes every panel operation behind a single mutex and
// applies the refresh-mode upgrade policy.
type Facade struct {
	mu     sync.Mutex
	handle *panel.Handle
	policy Policy

	partialStreak  int
	fullCount      uint64
	partialCount   uint64
	timeoutCount   uint64
	lastFullTime   time.Time
	lastActionTime time.Time

	fullCounter    prometheus.Counter
	partialCounter prometheus.Counter
	timeoutCounter prometheus.Counter
}

// New wraps h behind a Facade using the given policy (zero value gets
// the documented defaults) and registers its counters with reg. reg may
// be nil, in which case metrics are tracked but not exported.
func New(h *panel.Handle, policy Policy, reg prometheus.Registerer) *Facade {
	now := time.Now()
	f := &Facade{
		handle:         h,
		policy:         policy.normalized(),
		lastFullTime:   now,
		lastActionTime: now,
		fullCounter:    prometheus.NewCounter(prometheus.CounterOpts{Name: "pin_display_full_refresh_total", Help: "Full panel refreshes performed."}),
		partialCounter: prometheus.NewCounter(prometheus.CounterOpts{Name: "pin_display_partial_refresh_total", Help: "Partial panel refreshes performed."}),
		timeoutCounter: prometheus.NewCounter(prometheus.CounterOpts{Name: "pin_display_timeout_total", Help: "Panel operations that exceeded their deadline."}),
	}
	if reg != nil {
		reg.MustRegister(f.fullCounter, f.partialCounter, f.timeoutCounter)
	}
	return f
}

// withDeadline runs fn holding the façade's mutex, failing with
// ferr.Timeout if fn does not return within deadline. fn runs to
// completion on its own goroutine even after a timeout is reported,
// since the underlying panel operation cannot be safely aborted
// mid-transfer; a timed-out caller should treat the panel state as
// unknown and consider reinitializing, per the driver's own failure
// semantics.
func (f *Facade) withDeadline(deadline time.Duration, fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-time.After(deadline):
		f.timeoutCount++
		f.timeoutCounter.Inc()
		return ferr.New(ferr.Timeout, "panel operation exceeded its %s deadline", deadline)
	}
}

// Clear sets the whole framebuffer to c without refreshing the panel.
func (f *Facade) Clear(c panel.Color) error {
	return f.withDeadline(quickOpDeadline, func() error {
		f.handle.Clear(c)
		return nil
	})
}

// Draw runs fn (typically a canvas render) against the underlying
// handle under the façade's mutex, without triggering a refresh.
func (f *Facade) Draw(fn func(h *panel.Handle)) error {
	return f.withDeadline(drawOpDeadline, func() error {
		fn(f.handle)
		return nil
	})
}

// Refresh performs a refresh, upgrading requestedMode to Full per the
// façade's policy if the partial-refresh streak or full-refresh
// interval has been exceeded.
func (f *Facade) Refresh(requestedMode panel.RefreshMode) error {
	mode := f.resolveMode(requestedMode)
	err := f.withDeadline(refreshDeadline, func() error {
		return f.handle.Refresh(mode)
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastActionTime = time.Now()
	if err != nil {
		return err
	}
	if mode == panel.Full {
		f.fullCount++
		f.fullCounter.Inc()
		f.lastFullTime = f.lastActionTime
		f.partialStreak = 0
	} else {
		f.partialCount++
		f.partialCounter.Inc()
		f.partialStreak++
	}
	return nil
}

func (f *Facade) resolveMode(requested panel.RefreshMode) panel.RefreshMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	if requested == panel.Full {
		return panel.Full
	}
	if f.partialStreak >= f.policy.PartialRefreshLimit {
		return panel.Full
	}
	if time.Since(f.lastFullTime) >= f.policy.FullRefreshInterval {
		return panel.Full
	}
	return panel.Partial
}

// Sleep puts the panel into deep sleep.
func (f *Facade) Sleep() error {
	err := f.withDeadline(sleepWakeDeadline, f.handle.Sleep)
	f.mu.Lock()
	f.lastActionTime = time.Now()
	f.mu.Unlock()
	return err
}

// Wake brings the panel back from deep sleep.
func (f *Facade) Wake() error {
	err := f.withDeadline(sleepWakeDeadline, f.handle.Wake)
	f.mu.Lock()
	f.lastActionTime = time.Now()
	f.mu.Unlock()
	return err
}

// ShouldEnterSleep reports whether sleep_after_inactive has elapsed
// since the last panel action, as a hint to the caller's supervisor
// loop rather than something this façade enforces on its own.
func (f *Facade) ShouldEnterSleep() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return time.Since(f.lastActionTime) >= f.policy.SleepAfterInactive
}

// Stats returns a snapshot of refresh activity.
func (f *Facade) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{
		FullRefreshCount:    f.fullCount,
		PartialRefreshCount: f.partialCount,
		TimeoutCount:        f.timeoutCount,
		LastRefreshTime:     f.handle.LastRefreshTime(),
		PartialStreak:       f.partialStreak,
		IsSleeping:          f.handle.IsSleeping(),
	}
}
