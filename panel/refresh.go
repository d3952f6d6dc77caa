// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package panel

import (
	"time"
)

// RefreshMode selects between a full and a partial panel refresh. Pin's
// controller generation always performs a full-frame transfer (there is
// no documented partial-refresh wire sequence at the controller level);
// Mode exists so the display façade's refresh-mode policy has something
// to request even though, today, both values drive an identical sequence.
type RefreshMode int

const (
	Full RefreshMode = iota
	Partial
)

// Refresh wakes the controller if sleeping, streams the full framebuffer,
// and triggers a display refresh, waiting up to 30s for completion.
func (h *Handle) Refresh(mode RefreshMode) error {
	if h.isSleeping {
		if err := h.Wake(); err != nil {
			return err
		}
	}

	if err := h.sendCommand(cmdDataStartXmit1, h.fb); err != nil {
		return err
	}
	if err := h.sendCommand(cmdDisplayRefresh, nil); err != nil {
		return err
	}
	if err := h.waitBusy(refreshBudget); err != nil {
		return err
	}

	h.refreshCount++
	h.lastRefreshTime = time.Now()
	return nil
}

// Sleep powers the panel off and puts the controller into deep sleep.
func (h *Handle) Sleep() error {
	if err := h.sendCommand(cmdPowerOff, nil); err != nil {
		return err
	}
	if err := h.waitBusy(sleepWakeBudget); err != nil {
		return err
	}
	if err := h.sendCommand(cmdDeepSleep, []byte{deepSleepCheckCode}); err != nil {
		return err
	}
	h.isSleeping = true
	return nil
}

// Wake resets and powers the controller back on from deep sleep.
func (h *Handle) Wake() error {
	if err := h.hardReset(); err != nil {
		return err
	}
	if err := h.sendCommand(cmdPowerOn, nil); err != nil {
		return err
	}
	if err := h.waitBusy(sleepWakeBudget); err != nil {
		return err
	}
	h.isSleeping = false
	return nil
}
