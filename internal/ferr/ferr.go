// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ferr defines the domain-level error kinds shared by every
// subsystem, so HTTP handlers and plugin host-API dispatch
// can classify a failure with errors.Is instead of matching strings.
package ferr

import (
	"errors"
	"fmt"
)

// Kind is one of the domain error categories shared across subsystems.
type Kind string

// Error kinds. Every subsystem wraps its failures in one of these via
// New/Wrap; nothing else in this repo defines its own sentinel errors.
const (
	InvalidArgument   = Kind("invalid_argument")
	NotFound          = Kind("not_found")
	AlreadyExists     = Kind("already_exists")
	OutOfMemory       = Kind("out_of_memory")
	Timeout           = Kind("timeout")
	Busy              = Kind("busy")
	InvalidState      = Kind("invalid_state")
	RateLimited       = Kind("rate_limited")
	NotAllowed        = Kind("not_allowed")
	StorageFail       = Kind("storage_fail")
	IntegrityFail     = Kind("integrity_fail")
	HardwareFail      = Kind("hardware_fail")
	ResourceExhausted = Kind("resource_exhausted")
	Internal          = Kind("internal")
)

// Error pairs a Kind with the message and optional cause describing it.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, ferr.Sentinel(ferr.NotFound)) style matching
// by Kind: any *Error target with the same Kind matches, and a target
// with an empty Kind matches every *Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == "" || t.Kind == e.Kind
}

// New builds an *Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Sentinel is a zero-message *Error usable as an errors.Is target for a
// whole Kind, e.g. errors.Is(err, ferr.Sentinel(ferr.NotFound)).
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
