// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package panel

import (
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// NewSimulated returns a Handle with no hardware behind it: the bus and
// GPIO lines are no-ops, and Refresh/Sleep/Wake never block waiting on a
// busy line. It is for callers that need the full drawing API without a
// physical panel — unit tests elsewhere in this module, and the preview
// tool's headless render path.
func NewSimulated() *Handle {
	fb := make([]byte, FramebufferSize)
	for i := range fb {
		fb[i] = whiteFill
	}
	return &Handle{
		c:         noopConn{},
		maxTxSize: 4096,
		dc:        &noopPin{},
		reset:     &noopPin{},
		busy:      &noopPin{},
		fb:        fb,
	}
}

type noopConn struct{}

func (noopConn) String() string       { return "simulated" }
func (noopConn) Tx(w, r []byte) error { return nil }
func (noopConn) Duplex() conn.Duplex  { return conn.Full }
func (noopConn) MaxTxSize() int       { return 4096 }

type noopPin struct {
	level gpio.Level
}

func (p *noopPin) String() string                        { return "simulated" }
func (p *noopPin) Halt() error                           { return nil }
func (p *noopPin) Name() string                          { return "simulated" }
func (p *noopPin) Number() int                           { return -1 }
func (p *noopPin) Function() string                      { return "" }
func (p *noopPin) Out(l gpio.Level) error                { p.level = l; return nil }
func (p *noopPin) PWM(gpio.Duty, physic.Frequency) error { return nil }
func (p *noopPin) In(gpio.Pull, gpio.Edge) error         { return nil }
func (p *noopPin) Read() gpio.Level                      { return p.level }
func (p *noopPin) WaitForEdge(time.Duration) bool        { return true }
func (p *noopPin) Pull() gpio.Pull                       { return gpio.PullNoChange }
func (p *noopPin) DefaultPull() gpio.Pull                { return gpio.PullNoChange }
