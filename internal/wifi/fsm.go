// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package wifi

import (
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MePride/pin/internal/store"
)

// State is a position in the provisioning/connection state machine.
type State int

const (
	Idle State = iota
	CheckSaved
	ApMode
	PortalActive
	Connecting
	Connected
	Failed
	Timeout
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CheckSaved:
		return "check_saved"
	case ApMode:
		return "ap_mode"
	case PortalActive:
		return "portal_active"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Credentials is the station-mode SSID/password the FSM is trying, or
// has saved.
type Credentials struct {
	SSID     string
	Password string
}

// Config tunes the provisioning timers, retry policy, and the
// onboarding access point's identity.
type Config struct {
	ConfigTimeout  time.Duration // default 300s
	ConnectTimeout time.Duration // default 30s
	MaxRetry       int           // default 3
	APPrefix       string        // default "Pin-Device"
	APChannel      int           // default 1
}

func (c Config) normalized() Config {
	if c.ConfigTimeout <= 0 {
		c.ConfigTimeout = 300 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = 3
	}
	if c.APPrefix == "" {
		c.APPrefix = "Pin-Device"
	}
	if c.APChannel <= 0 {
		c.APChannel = 1
	}
	return c
}

// Machine is the provisioning FSM. One Machine drives one radio.
type Machine struct {
	mu sync.Mutex

	radio Radio
	kv    store.KV
	seal  *Sealer
	cfg   Config
	log   zerolog.Logger

	portal *Portal

	state     State
	enteredAt time.Time

	apSSID  string
	target  Credentials
	pending Credentials

	retryCount     int
	configReceived bool
	forceAPMode    bool

	linkCh <-chan LinkEvent
}

// New builds a Machine in the Idle state.
func New(radio Radio, kv store.KV, seal *Sealer, cfg Config, log zerolog.Logger) *Machine {
	return &Machine{
		radio: radio,
		kv:    kv,
		seal:  seal,
		cfg:   cfg.normalized(),
		log:   log,
		state: Idle,
	}
}

// State returns the FSM's current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetForceAPMode forces the next CheckSaved evaluation into ApMode even
// if credentials are present, e.g. for a user-triggered "forget
// network" action.
func (m *Machine) SetForceAPMode(force bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forceAPMode = force
}

// SubmitCredentials is how the captive portal's connect handler hands
// off user input — through the FSM's own flag+struct, never by writing
// the credential store directly.
func (m *Machine) SubmitCredentials(ssid, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = Credentials{SSID: ssid, Password: password}
	m.configReceived = true
}

// Run drives Step on a 1Hz ticker until stop is closed.
func (m *Machine) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.Step()
		}
	}
}

// Step advances the FSM by one decision. It is safe to call directly in
// tests in place of Run's ticker for deterministic timing.
func (m *Machine) Step() {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()

	switch state {
	case Idle:
		m.transition(CheckSaved)
	case CheckSaved:
		m.stepCheckSaved()
	case PortalActive:
		m.stepPortalActive()
	case Connecting:
		m.stepConnecting()
	case Connected:
		m.stepConnected()
	case Failed:
		m.stepFailed()
	case Timeout:
		m.stepTimeout()
	}
}

func (m *Machine) stepCheckSaved() {
	m.mu.Lock()
	force := m.forceAPMode
	m.mu.Unlock()

	creds, ok := m.loadSavedCredentials()
	if ok && !force {
		m.mu.Lock()
		m.target = creds
		m.mu.Unlock()
		m.transition(Connecting)
		return
	}
	m.transition(ApMode)
}

func (m *Machine) stepPortalActive() {
	m.mu.Lock()
	received := m.configReceived
	since := time.Since(m.enteredAt)
	m.mu.Unlock()

	if received {
		m.mu.Lock()
		m.target = m.pending
		m.mu.Unlock()
		m.stopPortal()
		m.transition(Connecting)
		return
	}
	if since > m.cfg.ConfigTimeout {
		m.transition(Timeout)
	}
}

func (m *Machine) stepConnecting() {
	m.mu.Lock()
	ch := m.linkCh
	since := time.Since(m.enteredAt)
	m.mu.Unlock()

	if ch != nil {
		select {
		case ev, ok := <-ch:
			if ok && ev == LinkUp {
				m.transition(Connected)
			} else {
				m.transition(Failed)
			}
			return
		default:
		}
	}
	if since > m.cfg.ConnectTimeout {
		m.transition(Failed)
	}
}

func (m *Machine) stepConnected() {
	m.mu.Lock()
	ch := m.linkCh
	m.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ev, ok := <-ch:
		if !ok || ev == LinkDown || ev == LinkFailed {
			m.transition(Connecting)
		}
	default:
	}
}

func (m *Machine) stepFailed() {
	m.mu.Lock()
	retry := m.retryCount
	m.mu.Unlock()

	if retry < m.cfg.MaxRetry {
		m.mu.Lock()
		m.retryCount++
		m.mu.Unlock()
		time.Sleep(5 * time.Second)
		m.transition(Connecting)
		return
	}
	m.mu.Lock()
	m.retryCount = 0
	m.mu.Unlock()
	m.transition(ApMode)
}

func (m *Machine) stepTimeout() {
	m.stopPortal()
	time.Sleep(3 * time.Second)
	m.transition(ApMode)
}

// transition performs entry actions for to and records the state. The
// AP-mode entry action starts the radio and portal and then chains
// straight into PortalActive, matching the transition table's
// unconditional ApMode -> PortalActive edge.
func (m *Machine) transition(to State) {
	m.mu.Lock()
	m.state = to
	m.enteredAt = time.Now()
	m.mu.Unlock()
	m.log.Info().Str("state", to.String()).Msg("wifi fsm transition")

	switch to {
	case ApMode:
		m.startAPAndPortal()
		m.transition(PortalActive)
	case Connecting:
		m.mu.Lock()
		target := m.target
		m.mu.Unlock()
		ch, err := m.radio.StartStation(target.SSID, target.Password)
		if err != nil {
			m.mu.Lock()
			m.linkCh = nil
			m.mu.Unlock()
			m.transition(Failed)
			return
		}
		m.mu.Lock()
		m.linkCh = ch
		m.mu.Unlock()
	case Connected:
		m.persistCredentials()
		m.mu.Lock()
		m.retryCount = 0
		m.configReceived = false
		m.mu.Unlock()
	}
}

func (m *Machine) startAPAndPortal() {
	mac := m.radio.MACAddress()
	ssid := fmt.Sprintf("%s-%02X%02X", m.cfg.APPrefix, mac[4], mac[5])
	m.mu.Lock()
	m.apSSID = ssid
	m.mu.Unlock()

	m.radio.StartAP(APConfig{
		SSID:            ssid,
		Channel:         m.cfg.APChannel,
		MaxAssociations: 4,
		GatewayIP:       "192.168.4.1",
		Netmask:         "255.255.255.0",
	})
	if m.portal != nil {
		m.portal.Start()
	}
}

func (m *Machine) stopPortal() {
	if m.portal != nil {
		m.portal.Stop()
	}
	m.radio.StopAP()
}

func (m *Machine) loadSavedCredentials() (Credentials, bool) {
	ssid, err := m.kv.GetBlob(store.NamespaceWiFi, "ssid")
	if err != nil {
		return Credentials{}, false
	}
	sealedB64, err := m.kv.GetBlob(store.NamespaceWiFi, "password")
	if err != nil {
		return Credentials{}, false
	}
	sealed, err := base64.StdEncoding.DecodeString(string(sealedB64))
	if err != nil {
		return Credentials{}, false
	}
	password, err := m.seal.Open(sealed)
	if err != nil {
		return Credentials{}, false
	}
	return Credentials{SSID: string(ssid), Password: string(password)}, true
}

func (m *Machine) persistCredentials() {
	m.mu.Lock()
	target := m.target
	m.mu.Unlock()

	sealed, err := m.seal.Seal([]byte(target.Password))
	if err != nil {
		m.log.Error().Err(err).Msg("sealing wifi credentials")
		return
	}
	encoded := base64.StdEncoding.EncodeToString(sealed)
	m.kv.SetBlob(store.NamespaceWiFi, "ssid", []byte(target.SSID))
	m.kv.SetBlob(store.NamespaceWiFi, "password", []byte(encoded))
	m.kv.Commit(store.NamespaceWiFi)
}

// HasSavedCredentials reports whether a station-mode SSID/password pair
// is currently persisted, regardless of the FSM's live state.
func (m *Machine) HasSavedCredentials() bool {
	_, ok := m.loadSavedCredentials()
	return ok
}

// APSSID returns the onboarding access point's SSID once ApMode has run
// at least once.
func (m *Machine) APSSID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apSSID
}

// Scan lists nearby access points through the underlying radio, for the
// main HTTP API's wifi scan route (the captive portal has its own copy
// of this route for onboarding clients that can't yet reach the main API).
func (m *Machine) Scan() ([]Network, error) {
	return m.radio.Scan()
}

// ConnectedSSID returns the SSID of the currently saved/targeted
// network, for status reporting; it does not indicate link state.
func (m *Machine) ConnectedSSID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.target.SSID
}

// AttachPortal wires the captive portal HTTP/DNS surface this Machine
// starts and stops as it enters and leaves ApMode.
func (m *Machine) AttachPortal(p *Portal) {
	m.portal = p
	p.machine = m
}
