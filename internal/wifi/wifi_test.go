// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package wifi

import (
	"encoding/base64"
	"regexp"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/MePride/pin/internal/store"
)

var apSSIDPattern = regexp.MustCompile(`^Pin-Device-[0-9A-F]{4}$`)

func TestProvisioningHappyPath(t *testing.T) {
	radio := &Simulated{MAC: [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}, ConnectDelay: 5 * time.Millisecond}
	kv := store.NewMemory()
	var key [32]byte
	seal, err := NewSealer(key)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	m := New(radio, kv, seal, Config{ConfigTimeout: time.Second, ConnectTimeout: time.Second, MaxRetry: 1}, zerolog.Nop())

	m.Step() // Idle -> CheckSaved
	if m.State() != CheckSaved {
		t.Fatalf("state after first step = %v, want CheckSaved", m.State())
	}

	m.Step() // CheckSaved (no saved creds) -> ApMode -> PortalActive
	if m.State() != PortalActive {
		t.Fatalf("state after second step = %v, want PortalActive", m.State())
	}
	if ssid := m.APSSID(); !apSSIDPattern.MatchString(ssid) {
		t.Fatalf("ap ssid %q does not match Pin-Device-XXXX", ssid)
	}

	m.SubmitCredentials("home-network", "hunter2")
	m.Step() // PortalActive -> Connecting
	if m.State() != Connecting {
		t.Fatalf("state after connect submission = %v, want Connecting", m.State())
	}

	time.Sleep(20 * time.Millisecond)
	m.Step() // Connecting -> Connected
	if m.State() != Connected {
		t.Fatalf("state after link up = %v, want Connected", m.State())
	}
	if !m.HasSavedCredentials() {
		t.Errorf("HasSavedCredentials() = false after a successful connect, want true")
	}
}

func TestCheckSavedGoesStraightToConnectingWhenCredentialsExist(t *testing.T) {
	radio := &Simulated{MAC: [6]byte{1, 2, 3, 4, 5, 6}, ConnectDelay: 5 * time.Millisecond}
	kv := store.NewMemory()
	var key [32]byte
	seal, _ := NewSealer(key)
	m := New(radio, kv, seal, Config{}, zerolog.Nop())

	sealed, _ := seal.Seal([]byte("saved-password"))
	kv.SetBlob(store.NamespaceWiFi, "ssid", []byte("saved-ssid"))
	kv.SetBlob(store.NamespaceWiFi, "password", []byte(base64.StdEncoding.EncodeToString(sealed)))

	m.Step() // Idle -> CheckSaved
	m.Step() // CheckSaved -> Connecting directly
	if m.State() != Connecting {
		t.Fatalf("state = %v, want Connecting (saved credentials present)", m.State())
	}
}

func TestSealerRejectsTamperedCiphertext(t *testing.T) {
	var key [32]byte
	seal, _ := NewSealer(key)
	sealed, err := seal.Seal([]byte("secret"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF
	if _, err := seal.Open(sealed); err == nil {
		t.Errorf("Open(tampered): want error, got nil")
	}
}
