// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package httpapi binds the canvas, plugin, Wi-Fi, OTA, and display
// subsystems to the device-facing HTTP route table. It owns request
// parsing and response encoding only; every decision lives in the
// subsystem it delegates to.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/MePride/pin/internal/canvas"
	"github.com/MePride/pin/internal/config"
	"github.com/MePride/pin/internal/display"
	"github.com/MePride/pin/internal/ferr"
	"github.com/MePride/pin/internal/ota"
	"github.com/MePride/pin/internal/plugin"
	"github.com/MePride/pin/internal/store"
	"github.com/MePride/pin/internal/wifi"
	"github.com/MePride/pin/panel"
)

// Server binds every subsystem to its HTTP handlers.
type Server struct {
	canvas  *canvas.Engine
	plugins *plugin.Registry
	wifi    *wifi.Machine
	ota     *ota.Engine
	display *display.Facade
	kv      store.KV
	metrics *prometheus.Registry
	log     zerolog.Logger

	firmwareVersion string
	configPath      string
	startTime       time.Time

	mu       sync.Mutex
	settings config.Settings

	// Restart and FactoryReset are platform-specific actions (reboot,
	// NVS erase) supplied by cmd/pind; nil is a no-op, useful for tests.
	Restart      func()
	FactoryReset func()
}

// New builds a Server. startTime should be the process's boot time, for
// uptime reporting.
func New(canvasEngine *canvas.Engine, plugins *plugin.Registry, wifiMachine *wifi.Machine, otaEngine *ota.Engine, disp *display.Facade, kv store.KV, metrics *prometheus.Registry, settings config.Settings, configPath, firmwareVersion string, startTime time.Time, log zerolog.Logger) *Server {
	return &Server{
		canvas:          canvasEngine,
		plugins:         plugins,
		wifi:            wifiMachine,
		ota:             otaEngine,
		display:         disp,
		kv:              kv,
		metrics:         metrics,
		log:             log,
		firmwareVersion: firmwareVersion,
		configPath:      configPath,
		startTime:       startTime,
		settings:        settings,
	}
}

// Router builds the full device-facing route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"}}))

	r.Get("/", serveStaticPlaceholder("text/html"))
	r.Get("/app.js", serveStaticPlaceholder("application/javascript"))
	r.Get("/manifest.json", serveStaticPlaceholder("application/json"))
	r.Get("/sw.js", serveStaticPlaceholder("application/javascript"))

	r.Get("/api/status", s.handleStatus)

	r.Post("/api/display/refresh", s.handleDisplayRefresh)
	r.Post("/api/display/clear", s.handleDisplayClear)
	r.Get("/api/display/framebuffer", s.handleFramebuffer)

	r.Get("/api/canvas", s.handleCanvasList)
	r.Post("/api/canvas", s.handleCanvasCreate)
	r.Get("/api/canvas/get", s.handleCanvasGet)
	r.Put("/api/canvas/update", s.handleCanvasUpdate)
	r.Delete("/api/canvas/delete", s.handleCanvasDelete)
	r.Post("/api/canvas/display", s.handleCanvasDisplay)
	r.Post("/api/canvas/element", s.handleCanvasElement)

	r.Post("/api/images", s.handleImageUpload)
	r.Delete("/api/images", s.handleImageDelete)

	r.Get("/api/plugins", s.handlePluginList)
	r.Post("/api/plugins/{name}", s.handlePluginToggle)

	r.Get("/api/wifi/scan", s.handleWifiScan)
	r.Post("/api/wifi/connect", s.handleWifiConnect)

	r.Get("/api/settings", s.handleSettingsGet)
	r.Post("/api/settings", s.handleSettingsPost)

	r.Post("/api/system/restart", s.handleRestart)
	r.Post("/api/system/factory-reset", s.handleFactoryReset)
	r.Get("/api/system/check-update", s.handleCheckUpdate)

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}
	return r
}

func serveStaticPlaceholder(contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if kind, ok := ferr.KindOf(err); ok {
		switch kind {
		case ferr.InvalidArgument:
			status = http.StatusBadRequest
		case ferr.NotFound:
			status = http.StatusNotFound
		case ferr.AlreadyExists:
			status = http.StatusConflict
		case ferr.ResourceExhausted:
			status = http.StatusRequestEntityTooLarge
		case ferr.NotAllowed:
			status = http.StatusForbidden
		case ferr.Busy, ferr.RateLimited:
			status = http.StatusServiceUnavailable
		case ferr.Timeout:
			status = http.StatusGatewayTimeout
		}
	}
	writeJSON(w, status, map[string]any{"error": err.Error(), "status": status})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	name := s.settings.Device.Name
	s.mu.Unlock()

	stats := s.display.Stats()
	payload := map[string]any{
		"firmware_version": s.firmwareVersion,
		"device_name":      name,
		"wifi": map[string]any{
			"connected": s.wifi.State() == wifi.Connected,
			"ssid":      s.wifi.ConnectedSSID(),
		},
		"system": map[string]any{
			"uptime": int64(time.Since(s.startTime).Seconds()),
		},
		"display": map[string]any{
			"is_sleeping":            stats.IsSleeping,
			"full_refresh_count":     stats.FullRefreshCount,
			"partial_refresh_streak": stats.PartialStreak,
		},
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleDisplayRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.display.Refresh(panel.Full); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDisplayClear(w http.ResponseWriter, r *http.Request) {
	if err := s.display.Clear(panel.White); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleFramebuffer(w http.ResponseWriter, r *http.Request) {
	var fb []byte
	if err := s.display.Draw(func(h *panel.Handle) {
		fb = append([]byte(nil), h.Framebuffer()...)
	}); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(fb)
}

func (s *Server) queryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

func (s *Server) handleCanvasList(w http.ResponseWriter, r *http.Request) {
	ids := s.canvas.List()
	summaries := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		c, err := s.canvas.Get(id)
		if err != nil {
			continue
		}
		summaries = append(summaries, map[string]any{
			"id":            c.ID,
			"name":          c.Name,
			"created_time":  c.CreatedTime,
			"modified_time": c.ModifiedTime,
			"element_count": len(c.Elements),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"canvases": summaries, "total": len(summaries)})
}

func (s *Server) handleCanvasCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		BackgroundColor int    `json:"background_color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ferr.Wrap(ferr.InvalidArgument, err, "decoding request body"))
		return
	}
	c, err := s.canvas.Create(req.ID, req.Name, panel.Color(req.BackgroundColor))
	if err != nil {
		writeError(w, err)
		return
	}
	blob, err := canvas.ExportJSON(c)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(blob)
}

func (s *Server) handleCanvasGet(w http.ResponseWriter, r *http.Request) {
	id := s.queryParam(r, "id")
	blob, err := s.canvas.ExportJSON(id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(blob)
}

func (s *Server) handleCanvasUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, ferr.Wrap(ferr.InvalidArgument, err, "reading request body"))
		return
	}
	c, err := s.canvas.ImportJSON(body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": c.ID})
}

func (s *Server) handleCanvasDelete(w http.ResponseWriter, r *http.Request) {
	id := s.queryParam(r, "id")
	if err := s.canvas.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleCanvasDisplay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CanvasID string `json:"canvas_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ferr.Wrap(ferr.InvalidArgument, err, "decoding request body"))
		return
	}
	var renderErr error
	if err := s.display.Draw(func(h *panel.Handle) {
		renderErr = s.canvas.Render(h, req.CanvasID)
	}); err != nil {
		writeError(w, err)
		return
	}
	if renderErr != nil {
		writeError(w, renderErr)
		return
	}
	if err := s.display.Refresh(panel.Full); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleCanvasElement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CanvasID string          `json:"canvas_id"`
		Element  json.RawMessage `json:"element"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ferr.Wrap(ferr.InvalidArgument, err, "decoding request body"))
		return
	}
	el, err := canvas.ImportElementJSON(req.Element)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := s.canvas.AddElement(req.CanvasID, el)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": c.ID, "element_count": len(c.Elements)})
}

func (s *Server) handleImageUpload(w http.ResponseWriter, r *http.Request) {
	id := s.queryParam(r, "id")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, ferr.Wrap(ferr.InvalidArgument, err, "reading request body"))
		return
	}
	format, ok := detectImageFormat(body)
	if !ok {
		writeError(w, ferr.New(ferr.InvalidArgument, "unrecognized image format"))
		return
	}
	if err := s.canvas.StoreImage(id, format, body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleImageDelete(w http.ResponseWriter, r *http.Request) {
	id := s.queryParam(r, "id")
	if err := s.canvas.DeleteImage(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// detectImageFormat sniffs PNG/JPEG/BMP magic bytes, since uploads
// arrive as raw bytes with no Content-Type the codec can trust.
func detectImageFormat(data []byte) (canvas.ImageFormat, bool) {
	switch {
	case len(data) >= 8 && data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G':
		return canvas.FormatPng, true
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8:
		return canvas.FormatJpg, true
	case len(data) >= 2 && data[0] == 'B' && data[1] == 'M':
		return canvas.FormatBmp, true
	default:
		return 0, false
	}
}

func (s *Server) handlePluginList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.plugins.List())
}

func (s *Server) handlePluginToggle(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ferr.Wrap(ferr.InvalidArgument, err, "decoding request body"))
		return
	}
	if err := s.plugins.Enable(name, req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleWifiScan(w http.ResponseWriter, r *http.Request) {
	networks, err := s.wifi.Scan()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"networks": networks})
}

func (s *Server) handleWifiConnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SSID     string `json:"ssid"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ferr.Wrap(ferr.InvalidArgument, err, "decoding request body"))
		return
	}
	if req.SSID == "" {
		writeError(w, ferr.New(ferr.InvalidArgument, "ssid must not be empty"))
		return
	}
	s.wifi.SubmitCredentials(req.SSID, req.Password)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.settings)
}

func (s *Server) handleSettingsPost(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	updated := s.settings
	s.mu.Unlock()

	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		writeError(w, ferr.Wrap(ferr.InvalidArgument, err, "decoding request body"))
		return
	}

	s.mu.Lock()
	s.settings = updated
	s.mu.Unlock()

	if s.configPath != "" {
		if err := config.Save(s.configPath, updated); err != nil {
			s.log.Error().Err(err).Msg("httpapi: failed to persist settings")
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
	if s.Restart != nil {
		go s.Restart()
	}
}

func (s *Server) handleFactoryReset(w http.ResponseWriter, r *http.Request) {
	for _, ns := range []string{store.NamespaceWiFi, store.NamespaceCanvas, store.NamespaceImages, store.NamespacePlugins, store.NamespaceOTA} {
		keys, err := s.kv.Keys(ns)
		if err != nil {
			continue
		}
		for _, k := range keys {
			s.kv.Erase(ns, k)
		}
		s.kv.Commit(ns)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
	if s.FactoryReset != nil {
		go s.FactoryReset()
	}
}

func (s *Server) handleCheckUpdate(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	manifestURL := s.settings.OTA.ManifestURL
	s.mu.Unlock()
	if manifestURL == "" {
		writeError(w, ferr.New(ferr.InvalidArgument, "no ota manifest_url configured"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	available, err := s.ota.CheckUpdate(ctx, manifestURL)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]any{"available": available}
	if m := s.ota.AvailableManifest(); m != nil {
		resp["version"] = m.Version
		resp["notes"] = m.Notes
	}
	writeJSON(w, http.StatusOK, resp)
}
