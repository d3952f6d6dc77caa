// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package plugin

import (
	"context"
	"time"

	"github.com/MePride/pin/internal/ferr"
)

// runWorker is the cooperative loop for one enabled plugin: it ticks on
// config.UpdateInterval, honors out-of-band ScheduleUpdate requests, and
// exits for good once the plugin reaches Error. Suspension (a rate-limit
// violation) pauses ticks for SuspensionCooldown without exiting.
func (r *Registry) runWorker(ctx context.Context, inst *instance, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(inst.config.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case delay := <-inst.ctx.scheduleCh:
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		if !r.tick(inst) {
			return
		}
	}
}

// tick runs one scheduling round for inst and reports whether the
// worker should keep running afterward.
func (r *Registry) tick(inst *instance) bool {
	r.mu.Lock()
	if inst.state == Suspended {
		if time.Now().Before(inst.suspendedUntil) {
			r.mu.Unlock()
			return true
		}
		inst.state = Running
	}
	r.mu.Unlock()

	updater, ok := inst.impl.(Updater)
	if !ok {
		return true
	}

	err := updater.Update(inst.ctx)

	inst.ctx.mu.Lock()
	if err == nil {
		inst.ctx.stats.ErrorCount = 0
		inst.ctx.stats.UpdateCount++
	} else {
		inst.ctx.stats.ErrorCount++
	}
	errCount := inst.ctx.stats.ErrorCount
	inst.ctx.mu.Unlock()

	if err != nil {
		// Only a rate-limit violation suspends the worker. A failed
		// allocation is reported to the plugin as OutOfMemory and counts
		// against its error budget like any other failure, so a plugin
		// that frees memory can succeed on its very next tick.
		if kind, ok := ferr.KindOf(err); ok && kind == ferr.RateLimited {
			r.mu.Lock()
			inst.state = Suspended
			inst.suspendedUntil = time.Now().Add(SuspensionCooldown)
			r.mu.Unlock()
		}
		if errCount >= MaxErrors {
			r.mu.Lock()
			inst.state = Error
			r.mu.Unlock()
			return false
		}
		return true
	}

	if renderer, ok := inst.impl.(Renderer); ok {
		renderer.Render(inst.ctx)
	}
	return true
}
