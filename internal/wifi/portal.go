// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package wifi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/MePride/pin/internal/ferr"
)

// Portal is the captive-portal HTTP server plus the DNS catch-all that
// forces onboarding clients to it. Machine starts and stops it as it
// enters and leaves ApMode.
type Portal struct {
	addr    string
	machine *Machine

	httpSrv *http.Server
	dnsConn net.PacketConn
}

// NewPortal returns a Portal bound to addr (typically "192.168.4.1:80"
// for HTTP; DNS always listens on UDP/53 on the same IP).
func NewPortal(addr string) *Portal {
	return &Portal{addr: addr}
}

func (p *Portal) router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET", "POST"}}))

	r.Get("/api/wifi/scan", p.handleScan)
	r.Post("/api/wifi/connect", p.handleConnect)
	r.Get("/api/status", p.handleStatus)
	r.NotFound(p.handleCatchAll)
	return r
}

// Start brings up the HTTP and DNS listeners. It reports no errors: a
// listener that fails to start (ListenAndServe returning, or the UDP
// socket failing to open) is silently skipped and nothing is logged,
// matching the FSM's best-effort treatment of portal lifecycle as an
// entry/exit action, not an operation with its own failure path.
func (p *Portal) Start() {
	p.httpSrv = &http.Server{Addr: p.addr, Handler: p.router()}
	go p.httpSrv.ListenAndServe()

	conn, err := net.ListenPacket("udp", dnsAddr(p.addr))
	if err == nil {
		p.dnsConn = conn
		go serveDNS(conn, gatewayIP(p.addr))
	}
}

// Stop tears down the HTTP and DNS listeners.
func (p *Portal) Stop() {
	if p.httpSrv != nil {
		p.httpSrv.Shutdown(context.Background())
		p.httpSrv = nil
	}
	if p.dnsConn != nil {
		p.dnsConn.Close()
		p.dnsConn = nil
	}
}

func (p *Portal) handleScan(w http.ResponseWriter, r *http.Request) {
	networks, err := p.machine.radio.Scan()
	if err != nil {
		writeError(w, http.StatusInternalServerError, ferr.Wrap(ferr.HardwareFail, err, "scanning"))
		return
	}
	sort.Slice(networks, func(i, j int) bool { return networks[i].RSSI > networks[j].RSSI })
	writeJSON(w, http.StatusOK, map[string]any{"networks": networks})
}

type connectRequest struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

func (p *Portal) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ferr.Wrap(ferr.InvalidArgument, err, "decoding connect request"))
		return
	}
	if req.SSID == "" {
		writeError(w, http.StatusBadRequest, ferr.New(ferr.InvalidArgument, "ssid must not be empty"))
		return
	}
	p.machine.SubmitCredentials(req.SSID, req.Password)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (p *Portal) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state":   p.machine.State().String(),
		"ap_ssid": p.machine.APSSID(),
	})
}

func (p *Portal) handleCatchAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "http://"+gatewayIP(p.addr)+"/config", http.StatusFound)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error(), "status": status})
}

func gatewayIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func dnsAddr(addr string) string {
	return gatewayIP(addr) + ":53"
}
