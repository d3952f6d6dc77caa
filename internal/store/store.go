// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package store defines the persistent key-value interface every
// subsystem persists through, and a reference in-memory implementation
// for tests and bootstrap. The real flash-backed KV store is an external
// collaborator; this package only names the contract subsystems use.
package store

import (
	"sort"
	"sync"

	"github.com/MePride/pin/internal/ferr"
)

// KV is a typed key-value interface, namespaced blobs in, namespaced
// blobs out. Implementations are expected to be safe for concurrent use
// across namespaces; callers are responsible for serializing writes
// within a namespace when ordering matters.
type KV interface {
	GetBlob(ns, key string) ([]byte, error)
	SetBlob(ns, key string, value []byte) error
	Erase(ns, key string) error
	Keys(ns string) ([]string, error)
	Commit(ns string) error
}

// Namespaces used by the core subsystems.
const (
	NamespaceWiFi    = "pin_wifi"
	NamespaceCanvas  = "pin_canvas"
	NamespaceImages  = "pin_images"
	NamespacePlugins = "plugins"
	NamespaceOTA     = "ota_config"
)

// Memory is an in-process KV reference implementation. It exists so
// cmd/pind and tests can boot the full stack without a real flash
// filesystem; it is not a production persistence layer.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string][]byte)}
}

func (m *Memory) GetBlob(ns, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.data[ns][key]
	if !ok {
		return nil, ferr.New(ferr.NotFound, "key %q in namespace %q", key, ns)
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (m *Memory) SetBlob(ns, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[ns] == nil {
		m.data[ns] = make(map[string][]byte)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[ns][key] = cp
	return nil
}

func (m *Memory) Erase(ns, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[ns], key)
	return nil
}

func (m *Memory) Keys(ns string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data[ns]))
	for k := range m.data[ns] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Commit(ns string) error {
	// In-memory store has no write-back buffer to flush.
	return nil
}
