// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ota

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/MePride/pin/internal/ferr"
)

// State is the lifecycle stage of the update engine.
type State int

const (
	Idle State = iota
	Checking
	Downloading
	Installing
	Complete
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Checking:
		return "checking"
	case Downloading:
		return "downloading"
	case Installing:
		return "installing"
	case Complete:
		return "complete"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Progress reports install byte counts as a download streams in.
type Progress struct {
	Downloaded int64
	Total      int64
}

// Engine polls a manifest URL, downloads a firmware image, and drives
// it through an Installer. A single Engine owns the update lifecycle
// for the whole device; at most one update runs at a time.
type Engine struct {
	mu sync.Mutex

	currentVersion string
	install        Installer
	client         *http.Client
	log            zerolog.Logger

	state         State
	available     *Manifest
	lastCheckTime time.Time
	errorMessage  string
	correlationID string

	cancel context.CancelFunc
	cronID cron.EntryID
	sched  *cron.Cron
}

// New returns an Engine for the given running firmware version and
// Installer. client may be nil, in which case http.DefaultClient is
// used.
func New(currentVersion string, install Installer, client *http.Client, log zerolog.Logger) *Engine {
	if client == nil {
		client = http.DefaultClient
	}
	return &Engine{
		currentVersion: currentVersion,
		install:        install,
		client:         client,
		log:            log,
		state:          Idle,
		sched:          cron.New(),
	}
}

// Init performs the boot-time verification step: if the running image
// is still pending verification (it was installed by a prior OTA
// update that never called MarkValid), it is confirmed valid now that
// it has successfully booted and reached this call.
func (e *Engine) Init() {
	if e.install.IsPendingVerify() {
		if err := e.install.MarkValid(); err != nil {
			e.log.Error().Err(err).Msg("ota: failed to mark booted image valid")
			return
		}
		e.log.Info().Msg("ota: confirmed previously installed image")
	}
	e.sched.Start()
}

// Stop halts the periodic-check scheduler.
func (e *Engine) Stop() { e.sched.Stop() }

// State returns the engine's current lifecycle stage.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// ErrorMessage returns the message recorded by the most recent failed
// update (which leaves the engine in Error) or failed manifest check
// (which leaves it Idle). Starting an update clears it.
func (e *Engine) ErrorMessage() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errorMessage
}

// SetAutoCheckInterval schedules a periodic manifest check against
// manifestURL every interval. A zero interval cancels any existing
// schedule. Checks run in the background and log their own errors;
// callers that want synchronous feedback should call CheckUpdate
// directly.
func (e *Engine) SetAutoCheckInterval(interval time.Duration, manifestURL string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cronID != 0 {
		e.sched.Remove(e.cronID)
		e.cronID = 0
	}
	if interval <= 0 {
		return nil
	}
	spec := "@every " + interval.String()
	id, err := e.sched.AddFunc(spec, func() {
		if _, err := e.CheckUpdate(context.Background(), manifestURL); err != nil {
			e.log.Warn().Err(err).Msg("ota: scheduled manifest check failed")
		}
	})
	if err != nil {
		return ferr.Wrap(ferr.InvalidArgument, err, "scheduling auto-check")
	}
	e.cronID = id
	return nil
}

// CheckUpdate fetches the manifest at url and compares its version
// against the running firmware by exact string inequality — no semver
// ordering, so any manifest whose tag_name differs from the running
// version is reported as available, newer or not. Deciding otherwise
// is left to whoever publishes the manifest.
func (e *Engine) CheckUpdate(ctx context.Context, url string) (available bool, err error) {
	e.mu.Lock()
	if e.state == Downloading || e.state == Installing {
		e.mu.Unlock()
		return false, ferr.New(ferr.InvalidState, "update already in progress")
	}
	e.state = Checking
	e.mu.Unlock()

	m, err := fetchManifest(ctx, e.client, url)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastCheckTime = time.Now()
	if err != nil {
		e.state = Idle
		e.errorMessage = err.Error()
		return false, err
	}
	e.state = Idle
	if m.Version == e.currentVersion {
		e.available = nil
		return false, nil
	}
	e.available = &m
	return true, nil
}

// AvailableManifest returns the manifest from the most recent
// CheckUpdate that reported an update available, or nil.
func (e *Engine) AvailableManifest() *Manifest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.available
}

// StartUpdate downloads and installs the manifest from the most recent
// CheckUpdate, reporting progress on onProgress (which may be nil) and
// returning once the image is committed and ready to boot into, or the
// attempt failed or was cancelled via Cancel. The correlation id
// returned ties this attempt's log lines together.
func (e *Engine) StartUpdate(ctx context.Context, onProgress func(Progress)) (correlationID string, err error) {
	e.mu.Lock()
	if e.state == Downloading || e.state == Installing {
		e.mu.Unlock()
		return "", ferr.New(ferr.InvalidState, "update already in progress")
	}
	if e.available == nil {
		e.mu.Unlock()
		return "", ferr.New(ferr.InvalidState, "no update available, call CheckUpdate first")
	}
	manifest := *e.available
	id := uuid.NewString()
	e.correlationID = id
	e.state = Downloading
	e.errorMessage = ""
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	log := e.log.With().Str("correlation_id", id).Str("version", manifest.Version).Logger()
	log.Info().Msg("ota: update started")

	asset, _ := manifest.FirmwareAsset()
	err = e.runInstall(runCtx, asset, onProgress, log)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancel = nil
	if err != nil {
		e.state = Error
		e.errorMessage = err.Error()
		log.Error().Err(err).Msg("ota: update failed")
		return id, err
	}
	e.state = Complete
	log.Info().Msg("ota: update installed, pending reboot")
	return id, nil
}

func (e *Engine) runInstall(ctx context.Context, asset Asset, onProgress func(Progress), log zerolog.Logger) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.BrowserDownloadURL, nil)
	if err != nil {
		return ferr.Wrap(ferr.InvalidArgument, err, "building download request")
	}
	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ferr.New(ferr.InvalidState, "cancelled")
		}
		return ferr.Wrap(ferr.HardwareFail, err, "downloading firmware")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ferr.New(ferr.HardwareFail, "firmware download: unexpected status %s", resp.Status)
	}

	total := asset.Size
	if resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	dst, err := e.install.BeginInstall(total)
	if err != nil {
		return ferr.Wrap(ferr.HardwareFail, err, "opening alternate partition")
	}

	e.mu.Lock()
	e.state = Installing
	e.mu.Unlock()

	var downloaded int64
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return ferr.New(ferr.InvalidState, "cancelled")
		default:
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return ferr.Wrap(ferr.HardwareFail, werr, "writing to alternate partition")
			}
			downloaded += int64(n)
			if onProgress != nil {
				onProgress(Progress{Downloaded: downloaded, Total: total})
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return ferr.New(ferr.InvalidState, "cancelled")
			}
			return ferr.Wrap(ferr.HardwareFail, rerr, "reading firmware stream")
		}
	}
	dst.Close()

	if err := e.install.CommitInstall(); err != nil {
		return ferr.Wrap(ferr.HardwareFail, err, "committing install")
	}
	return nil
}

// Cancel requests that an in-progress StartUpdate stop as soon as
// possible. It is a no-op if no update is running.
func (e *Engine) Cancel() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Rollback asks the Installer to invalidate any pending install and
// reboot into the previously running image.
func (e *Engine) Rollback() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.install.MarkInvalidAndRollback(); err != nil {
		return ferr.Wrap(ferr.HardwareFail, err, "rolling back")
	}
	e.state = Idle
	e.install.Reboot()
	return nil
}

// MarkValid confirms the currently running image is good, clearing any
// pending-verify state. Call this after an update has been installed
// and the device has successfully booted into it and passed its own
// self checks.
func (e *Engine) MarkValid() error {
	if err := e.install.MarkValid(); err != nil {
		return ferr.Wrap(ferr.HardwareFail, err, "marking image valid")
	}
	return nil
}

// Reboot reboots into a freshly committed image. It only makes sense
// to call after StartUpdate has returned without error, leaving the
// engine in Complete.
func (e *Engine) Reboot() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.install.Reboot()
}
