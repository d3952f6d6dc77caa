// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ota

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T, firmwareSize int, cancelAt int32, cancelFn context.CancelFunc) *httptest.Server {
	t.Helper()
	var sent int32
	mux := http.NewServeMux()
	mux.HandleFunc("/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		m := Manifest{
			Version: "2.0.0",
			Assets:  []Asset{{Name: "pin_firmware.bin", BrowserDownloadURL: "http://" + r.Host + "/firmware.bin", Size: int64(firmwareSize)}},
		}
		json.NewEncoder(w).Encode(m)
	})
	mux.HandleFunc("/firmware.bin", func(w http.ResponseWriter, r *http.Request) {
		chunk := make([]byte, 1024)
		for i := 0; i < firmwareSize/len(chunk); i++ {
			w.Write(chunk)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
			n := atomic.AddInt32(&sent, int32(len(chunk)))
			if cancelFn != nil && n >= cancelAt {
				cancelFn()
				time.Sleep(5 * time.Millisecond)
			}
		}
	})
	return httptest.NewServer(mux)
}

func TestCheckUpdateDetectsVersionMismatchByExactString(t *testing.T) {
	srv := newTestServer(t, 1024, 0, nil)
	defer srv.Close()

	install := &Simulated{}
	e := New("1.0.0", install, srv.Client(), zerolog.Nop())

	avail, err := e.CheckUpdate(context.Background(), srv.URL+"/manifest.json")
	if err != nil {
		t.Fatalf("CheckUpdate: %v", err)
	}
	if !avail {
		t.Fatalf("CheckUpdate() available = false, want true (1.0.0 != 2.0.0)")
	}
	if e.AvailableManifest().Version != "2.0.0" {
		t.Errorf("manifest version = %q, want 2.0.0", e.AvailableManifest().Version)
	}
}

func TestCheckUpdateReportsNoneWhenVersionsMatch(t *testing.T) {
	srv := newTestServer(t, 1024, 0, nil)
	defer srv.Close()

	install := &Simulated{}
	e := New("2.0.0", install, srv.Client(), zerolog.Nop())

	avail, err := e.CheckUpdate(context.Background(), srv.URL+"/manifest.json")
	if err != nil {
		t.Fatalf("CheckUpdate: %v", err)
	}
	if avail {
		t.Errorf("CheckUpdate() available = true, want false (versions match exactly)")
	}
}

func TestStartUpdateCommitsAndMarksPendingVerify(t *testing.T) {
	srv := newTestServer(t, 4096, 0, nil)
	defer srv.Close()

	install := &Simulated{}
	e := New("1.0.0", install, srv.Client(), zerolog.Nop())
	if _, err := e.CheckUpdate(context.Background(), srv.URL+"/manifest.json"); err != nil {
		t.Fatalf("CheckUpdate: %v", err)
	}

	var last Progress
	_, err := e.StartUpdate(context.Background(), func(p Progress) { last = p })
	if err != nil {
		t.Fatalf("StartUpdate: %v", err)
	}
	if e.State() != Complete {
		t.Fatalf("state = %v, want Complete", e.State())
	}
	if !install.Committed() {
		t.Errorf("install not committed after a completed update")
	}
	if !install.IsPendingVerify() {
		t.Errorf("IsPendingVerify() = false after install, want true")
	}
	if last.Downloaded == 0 {
		t.Errorf("progress callback never reported bytes downloaded")
	}
}

// TestCancelDuringDownloadLeavesErrorUncommitted drives a cancellation
// partway through a download (around 37% of the payload) and checks
// that the engine lands in Error with a "cancelled" message, and never
// commits the partial image.
func TestCancelDuringDownloadLeavesErrorUncommitted(t *testing.T) {
	const size = 100 * 1024
	ctx, cancel := context.WithCancel(context.Background())
	srv := newTestServer(t, size, int32(float64(size)*0.37), cancel)
	defer srv.Close()

	install := &Simulated{}
	e := New("1.0.0", install, srv.Client(), zerolog.Nop())
	if _, err := e.CheckUpdate(context.Background(), srv.URL+"/manifest.json"); err != nil {
		t.Fatalf("CheckUpdate: %v", err)
	}

	_, err := e.StartUpdate(ctx, nil)
	if err == nil {
		t.Fatalf("StartUpdate: want error from cancellation, got nil")
	}
	if e.State() != Error {
		t.Fatalf("state = %v, want Error", e.State())
	}
	if !strings.Contains(e.ErrorMessage(), "cancelled") {
		t.Errorf("error message = %q, want it to mention cancellation", e.ErrorMessage())
	}
	if install.Committed() {
		t.Errorf("install committed after a cancelled update, want uncommitted")
	}
}

func TestInitMarksPendingImageValidAfterBoot(t *testing.T) {
	install := &Simulated{}
	install.CommitInstall() // simulate a prior install left pending verification
	if !install.IsPendingVerify() {
		t.Fatalf("test setup: expected pending verify after CommitInstall")
	}

	e := New("2.0.0", install, nil, zerolog.Nop())
	e.Init()
	defer e.Stop()

	if install.IsPendingVerify() {
		t.Errorf("IsPendingVerify() = true after Init, want false (boot succeeded)")
	}
}
