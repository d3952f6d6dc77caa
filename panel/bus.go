// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package panel

import (
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/MePride/pin/internal/ferr"
)

// Panel dimensions. Pin drives a single fixed panel size, so these are
// constants rather than options selected per model.
const (
	Width  = 600
	Height = 448

	// FramebufferSize is the exact nibble-packed framebuffer length,
	// W*H/2 bytes, two pixels per byte.
	FramebufferSize = Width * Height / 2

	busSpeed = 3000 * physic.KiloHertz

	resetLow        = 10 * time.Millisecond
	resetBusyBudget = 5 * time.Second
	refreshBudget   = 30 * time.Second
	sleepWakeBudget = 5 * time.Second
)

// BusConfig names the SPI port and GPIO lines Init needs to talk to the
// controller.
type BusConfig struct {
	Port  spi.Port
	DC    gpio.PinOut
	Reset gpio.PinOut
	Busy  gpio.PinIn
}

// Handle is a live connection to the panel controller plus its owned
// framebuffer. It is not internally synchronized: callers must hold the
// display-service mutex around every call.
type Handle struct {
	c         conn.Conn
	maxTxSize int
	dc        gpio.PinOut
	reset     gpio.PinOut
	busy      gpio.PinIn

	fb []byte

	isSleeping      bool
	lastRefreshTime time.Time
	refreshCount    uint64
}

// Init resets the controller, runs the documented init sequence, and
// returns a Handle owning a freshly allocated, white-filled framebuffer.
func Init(bus BusConfig) (*Handle, error) {
	c, err := bus.Port.Connect(busSpeed, spi.Mode0, 8)
	if err != nil {
		return nil, ferr.Wrap(ferr.HardwareFail, err, "connect to panel bus")
	}
	maxTxSize := 4096
	if limits, ok := c.(conn.Limits); ok {
		if n := limits.MaxTxSize(); n > 0 {
			maxTxSize = n
		}
	}

	fb := make([]byte, FramebufferSize)

	h := &Handle{
		c:         c,
		maxTxSize: maxTxSize,
		dc:        bus.DC,
		reset:     bus.Reset,
		busy:      bus.Busy,
		fb:        fb,
	}

	if err := h.hardReset(); err != nil {
		return nil, err
	}

	if err := h.sendCommand(cmdPowerSetting, initPowerSetting); err != nil {
		return nil, err
	}
	if err := h.sendCommand(cmdPowerOn, nil); err != nil {
		return nil, err
	}
	if err := h.waitBusy(resetBusyBudget); err != nil {
		return nil, err
	}
	if err := h.sendCommand(cmdPanelSetting, initPanelSetting); err != nil {
		return nil, err
	}
	if err := h.sendCommand(cmdTCONResolution, []byte{
		byte(Width >> 8), byte(Width & 0xFF),
		byte(Height >> 8), byte(Height & 0xFF),
	}); err != nil {
		return nil, err
	}
	if err := h.sendCommand(cmdVCMDCSetting, initVCMDC); err != nil {
		return nil, err
	}

	for i := range h.fb {
		h.fb[i] = whiteFill
	}

	return h, nil
}

// hardReset cycles the reset line and waits for the controller to signal
// it is no longer busy.
func (h *Handle) hardReset() error {
	if err := h.reset.Out(gpio.Low); err != nil {
		return ferr.Wrap(ferr.HardwareFail, err, "assert reset")
	}
	time.Sleep(resetLow)
	if err := h.reset.Out(gpio.High); err != nil {
		return ferr.Wrap(ferr.HardwareFail, err, "release reset")
	}
	return h.waitBusy(resetBusyBudget)
}

// waitBusy blocks until the busy line indicates readiness or deadline
// elapses, returning ferr.Timeout in the latter case. The controller is
// left in an undefined state on timeout; callers must treat any later
// failure as a directive to reinitialize.
func (h *Handle) waitBusy(deadline time.Duration) error {
	if err := h.busy.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return ferr.Wrap(ferr.HardwareFail, err, "configure busy line")
	}
	defer h.busy.In(gpio.PullUp, gpio.NoEdge)

	if !h.busy.WaitForEdge(deadline) {
		return ferr.New(ferr.Timeout, "panel busy for longer than %s", deadline)
	}
	return nil
}

func (h *Handle) sendCommand(cmd byte, data []byte) error {
	if err := h.dc.Out(gpio.Low); err != nil {
		return ferr.Wrap(ferr.HardwareFail, err, "set DC low for command 0x%02x", cmd)
	}
	if err := h.c.Tx([]byte{cmd}, nil); err != nil {
		return ferr.Wrap(ferr.HardwareFail, err, "send command 0x%02x", cmd)
	}
	if data == nil {
		return nil
	}
	return h.sendData(data)
}

func (h *Handle) sendData(data []byte) error {
	if err := h.dc.Out(gpio.High); err != nil {
		return ferr.Wrap(ferr.HardwareFail, err, "set DC high for data")
	}
	for len(data) != 0 {
		chunk := data
		if len(chunk) > h.maxTxSize {
			chunk, data = data[:h.maxTxSize], data[h.maxTxSize:]
		} else {
			data = nil
		}
		if err := h.c.Tx(chunk, nil); err != nil {
			return ferr.Wrap(ferr.HardwareFail, err, "send data")
		}
	}
	return nil
}

// IsSleeping reports whether the controller is in deep sleep.
func (h *Handle) IsSleeping() bool { return h.isSleeping }

// LastRefreshTime returns the time of the most recently completed refresh.
func (h *Handle) LastRefreshTime() time.Time { return h.lastRefreshTime }

// RefreshCount returns the number of refreshes completed since Init.
func (h *Handle) RefreshCount() uint64 { return h.refreshCount }
