// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/MePride/pin/internal/canvas"
	"github.com/MePride/pin/internal/config"
	"github.com/MePride/pin/internal/display"
	"github.com/MePride/pin/internal/ota"
	"github.com/MePride/pin/internal/plugin"
	"github.com/MePride/pin/internal/store"
	"github.com/MePride/pin/internal/wifi"
	"github.com/MePride/pin/panel"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	kv := store.NewMemory()

	canvasEngine, err := canvas.Open(kv, func() int64 { return 1000 })
	if err != nil {
		t.Fatalf("canvas.Open: %v", err)
	}

	plugins := plugin.New(kv, nil, zerolog.Nop())

	var key [32]byte
	seal, err := wifi.NewSealer(key)
	if err != nil {
		t.Fatalf("wifi.NewSealer: %v", err)
	}
	wifiMachine := wifi.New(&wifi.Simulated{}, kv, seal, wifi.Config{}, zerolog.Nop())

	otaEngine := ota.New("1.0.0", &ota.Simulated{}, http.DefaultClient, zerolog.Nop())

	disp := display.New(panel.NewSimulated(), display.Policy{}, nil)

	settings := config.Default()

	return New(canvasEngine, plugins, wifiMachine, otaEngine, disp, kv, nil, settings, "", "1.0.0", time.Now(), zerolog.Nop())
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(buf))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestStatusReportsFirmwareAndDisplayStats(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.Router(), http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200; body=%s", w.Code, w.Body)
	}
	var got map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got["firmware_version"] != "1.0.0" {
		t.Fatalf("firmware_version = %v, want 1.0.0", got["firmware_version"])
	}
	display, ok := got["display"].(map[string]any)
	if !ok {
		t.Fatalf("display field missing or wrong type: %v", got["display"])
	}
	if display["is_sleeping"] != false {
		t.Fatalf("is_sleeping = %v, want false on a fresh facade", display["is_sleeping"])
	}
}

func TestCanvasCreateGetRoundTrip(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	w := doJSON(t, r, http.MethodPost, "/api/canvas", map[string]any{
		"id": "home", "name": "Home screen", "background_color": int(panel.White),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: got %d, want 201; body=%s", w.Code, w.Body)
	}

	w = doJSON(t, r, http.MethodGet, "/api/canvas/get?id=home", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: got %d, want 200; body=%s", w.Code, w.Body)
	}
	if !strings.Contains(w.Body.String(), `"id":"home"`) {
		t.Fatalf("get body missing canvas id: %s", w.Body)
	}
}

func TestCanvasGetUnknownIDReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.Router(), http.MethodGet, "/api/canvas/get?id=missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get missing canvas: got %d, want 404; body=%s", w.Code, w.Body)
	}
}

func TestCanvasDisplayRendersAndRefreshes(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	doJSON(t, r, http.MethodPost, "/api/canvas", map[string]any{
		"id": "home", "name": "Home screen", "background_color": int(panel.White),
	})

	w := doJSON(t, r, http.MethodPost, "/api/canvas/display", map[string]any{"canvas_id": "home"})
	if w.Code != http.StatusOK {
		t.Fatalf("display: got %d, want 200; body=%s", w.Code, w.Body)
	}
}

func TestCanvasDisplayUnknownIDReturnsError(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.Router(), http.MethodPost, "/api/canvas/display", map[string]any{"canvas_id": "nope"})
	if w.Code == http.StatusOK {
		t.Fatalf("display of unknown canvas: got 200, want an error status")
	}
}

func TestImageUploadDetectsFormatByMagicBytes(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0}
	req := httptest.NewRequest(http.MethodPost, "/api/images?id=logo", bytes.NewReader(png))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("upload png: got %d, want 200; body=%s", w.Code, w.Body)
	}
}

func TestImageUploadRejectsUnrecognizedFormat(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	req := httptest.NewRequest(http.MethodPost, "/api/images?id=logo", bytes.NewReader([]byte("not an image")))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("upload garbage: got %d, want 400; body=%s", w.Code, w.Body)
	}
}

func TestPluginListAndToggle(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	if err := s.plugins.Register(
		plugin.Metadata{Name: "clock", Version: "1.0.0", Author: "Pin", Description: "clock"},
		plugin.Config{AutoStart: false, UpdateInterval: time.Second},
		&noopPlugin{},
		plugin.WidgetRegion{Width: 100, Height: 20},
	); err != nil {
		t.Fatalf("registering plugin: %v", err)
	}

	w := doJSON(t, r, http.MethodGet, "/api/plugins", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: got %d, want 200; body=%s", w.Code, w.Body)
	}
	if !strings.Contains(w.Body.String(), "clock") {
		t.Fatalf("list body missing registered plugin: %s", w.Body)
	}

	w = doJSON(t, r, http.MethodPost, "/api/plugins/clock", map[string]any{"enabled": true})
	if w.Code != http.StatusOK {
		t.Fatalf("toggle: got %d, want 200; body=%s", w.Code, w.Body)
	}
}

func TestWifiConnectRejectsEmptySSID(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.Router(), http.MethodPost, "/api/wifi/connect", map[string]any{"ssid": "", "password": "x"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("connect with empty ssid: got %d, want 400; body=%s", w.Code, w.Body)
	}
}

func TestSettingsGetThenPostPersistsInMemory(t *testing.T) {
	s := newTestServer(t)
	r := s.Router()

	w := doJSON(t, r, http.MethodGet, "/api/settings", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("settings get: got %d, want 200", w.Code)
	}
	var settings config.Settings
	if err := json.Unmarshal(w.Body.Bytes(), &settings); err != nil {
		t.Fatalf("decoding settings: %v", err)
	}
	settings.Device.Name = "Renamed"

	w = doJSON(t, r, http.MethodPost, "/api/settings", settings)
	if w.Code != http.StatusOK {
		t.Fatalf("settings post: got %d, want 200; body=%s", w.Code, w.Body)
	}

	w = doJSON(t, r, http.MethodGet, "/api/settings", nil)
	if !strings.Contains(w.Body.String(), "Renamed") {
		t.Fatalf("settings after post: want updated name, got %s", w.Body)
	}
}

func TestRestartInvokesCallback(t *testing.T) {
	s := newTestServer(t)
	done := make(chan struct{})
	s.Restart = func() { close(done) }

	w := doJSON(t, s.Router(), http.MethodPost, "/api/system/restart", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("restart: got %d, want 200", w.Code)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Restart callback was not invoked")
	}
}

func TestFactoryResetErasesNamespacesAndInvokesCallback(t *testing.T) {
	s := newTestServer(t)
	if err := s.kv.SetBlob(store.NamespaceWiFi, "seal_key", []byte("some-secret-bytes")); err != nil {
		t.Fatalf("seeding kv: %v", err)
	}
	s.kv.Commit(store.NamespaceWiFi)

	done := make(chan struct{})
	s.FactoryReset = func() { close(done) }

	w := doJSON(t, s.Router(), http.MethodPost, "/api/system/factory-reset", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("factory-reset: got %d, want 200", w.Code)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("FactoryReset callback was not invoked")
	}

	keys, err := s.kv.Keys(store.NamespaceWiFi)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("wifi namespace after factory reset: got %v keys, want none", keys)
	}
}

func TestCheckUpdateWithoutManifestURLReturnsError(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.Router(), http.MethodGet, "/api/system/check-update", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("check-update with no manifest configured: got %d, want 400; body=%s", w.Code, w.Body)
	}
}

func TestMetricsRouteAbsentWithoutRegistry(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.Router(), http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("/metrics with nil registry: got %d, want 404", w.Code)
	}
}

type noopPlugin struct{}

func (noopPlugin) Init(ctx *plugin.Context) error                             { return nil }
func (noopPlugin) Start(ctx *plugin.Context) error                            { return nil }
func (noopPlugin) Update(ctx *plugin.Context) error                           { return nil }
func (noopPlugin) Render(ctx *plugin.Context) error                           { return nil }
func (noopPlugin) ConfigChanged(ctx *plugin.Context, key, value string) error { return nil }
func (noopPlugin) Stop(ctx *plugin.Context) error                             { return nil }
func (noopPlugin) Cleanup(ctx *plugin.Context) error                          { return nil }
