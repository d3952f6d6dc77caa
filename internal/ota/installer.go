// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ota drives manifest polling and streaming installation of
// firmware updates. Bootloader partition layout and the actual reboot
// are platform-specific and out of scope for this module; Installer
// names that boundary as an interface, the same way the panel package
// names the SPI bus through periph.io/x/conn rather than owning it.
package ota

import (
	"bytes"
	"io"

	"github.com/MePride/pin/internal/ferr"
)

// Installer is the bootloader-facing contract the engine drives during
// an update: write the alternate partition, commit it, and reboot into
// it. A real implementation talks to platform-specific flash and
// watchdog APIs; Simulated exists for tests and dry runs.
type Installer interface {
	// IsPendingVerify reports whether the currently running image was
	// installed by a prior OTA update and has not yet been confirmed.
	IsPendingVerify() bool
	MarkValid() error
	MarkInvalidAndRollback() error

	// BeginInstall opens a stream to the alternate partition sized for
	// totalSize bytes. Closing it without CommitInstall leaves the
	// partition uncommitted, so an interrupted install cannot be
	// booted into by accident.
	BeginInstall(totalSize int64) (io.WriteCloser, error)
	CommitInstall() error
	Reboot()
}

// Simulated is an in-memory Installer double.
type Simulated struct {
	pendingVerify bool
	committed     bool
	buf           bytes.Buffer
	rebooted      bool
}

func (s *Simulated) IsPendingVerify() bool { return s.pendingVerify }

func (s *Simulated) MarkValid() error {
	s.pendingVerify = false
	return nil
}

func (s *Simulated) MarkInvalidAndRollback() error {
	s.pendingVerify = false
	s.committed = false
	return nil
}

type simulatedWriter struct {
	s   *Simulated
	buf *bytes.Buffer
}

func (w *simulatedWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *simulatedWriter) Close() error                { return nil }

func (s *Simulated) BeginInstall(totalSize int64) (io.WriteCloser, error) {
	if totalSize <= 0 {
		return nil, ferr.New(ferr.InvalidArgument, "totalSize must be positive")
	}
	s.buf.Reset()
	return &simulatedWriter{s: s, buf: &s.buf}, nil
}

func (s *Simulated) CommitInstall() error {
	s.committed = true
	s.pendingVerify = true
	return nil
}

func (s *Simulated) Reboot() { s.rebooted = true }

// Rebooted reports whether Reboot has been called, for tests.
func (s *Simulated) Rebooted() bool { return s.rebooted }

// Committed reports whether CommitInstall has been called, for tests.
func (s *Simulated) Committed() bool { return s.committed }
