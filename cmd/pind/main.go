// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command pind is the device daemon: it opens the persistent store,
// brings up the e-paper panel and Wi-Fi radio, registers the built-in
// plugins, and serves the HTTP API the mobile/web client and the
// captive portal both talk to.
package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/MePride/pin/internal/canvas"
	"github.com/MePride/pin/internal/config"
	"github.com/MePride/pin/internal/display"
	"github.com/MePride/pin/internal/httpapi"
	"github.com/MePride/pin/internal/logging"
	"github.com/MePride/pin/internal/ota"
	"github.com/MePride/pin/internal/plugin"
	"github.com/MePride/pin/internal/plugin/builtin"
	"github.com/MePride/pin/internal/store"
	"github.com/MePride/pin/internal/wifi"
	"github.com/MePride/pin/panel"
)

// firmwareVersion is set at build time via -ldflags "-X main.firmwareVersion=...".
var firmwareVersion = "dev"

func main() {
	configPath := flag.String("config", "/etc/pin/config.toml", "path to the device TOML config file")
	dryRun := flag.Bool("dry-run", false, "skip opening real panel/radio hardware and use in-memory doubles")
	flag.Parse()

	log := logging.Default("pind")
	startTime := time.Now()

	settings, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}

	kv := store.NewMemory()

	reg := prometheus.NewRegistry()

	handle, err := openPanel(*dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("opening panel")
	}

	disp := display.New(handle, display.Policy{
		PartialRefreshLimit: settings.Display.PartialRefreshLimit,
		FullRefreshInterval: config.Duration(settings.Display.FullRefreshInterval, 1800*time.Second),
		SleepAfterInactive:  config.Duration(settings.Display.SleepAfterInactive, 600*time.Second),
	}, reg)

	canvasEngine, err := canvas.Open(kv, func() int64 { return time.Now().Unix() })
	if err != nil {
		log.Fatal().Err(err).Msg("opening canvas store")
	}
	if settings.Display.FontPath != "" {
		font, err := canvas.LoadFontRenderer(settings.Display.FontPath, settings.Display.FontPoints)
		if err != nil {
			log.Warn().Err(err).Msg("loading configured font, falling back to placeholder glyphs")
		} else {
			canvasEngine.SetFontRenderer(font)
		}
	}

	seal, err := sealerFromStore(kv)
	if err != nil {
		log.Fatal().Err(err).Msg("deriving credential sealer")
	}

	radio := &wifi.Simulated{}
	wifiMachine := wifi.New(radio, kv, seal, wifi.Config{
		ConfigTimeout:  config.Duration(settings.Wifi.ConfigTimeout, 300*time.Second),
		ConnectTimeout: config.Duration(settings.Wifi.ConnectTimeout, 30*time.Second),
		MaxRetry:       settings.Wifi.MaxRetry,
		APPrefix:       settings.Wifi.APPrefix,
		APChannel:      settings.Wifi.APChannel,
	}, logging.New(os.Stderr, zerolog.InfoLevel, "wifi"))
	wifiMachine.AttachPortal(wifi.NewPortal(settings.Wifi.GatewayIP + ":80"))

	installer := &ota.Simulated{}
	otaEngine := ota.New(firmwareVersion, installer, &http.Client{Timeout: 30 * time.Second}, logging.New(os.Stderr, zerolog.InfoLevel, "ota"))
	otaEngine.Init()
	if settings.OTA.ManifestURL != "" {
		if err := otaEngine.SetAutoCheckInterval(config.Duration(settings.OTA.AutoCheckInterval, 24*time.Hour), settings.OTA.ManifestURL); err != nil {
			log.Warn().Err(err).Msg("scheduling ota auto-check")
		}
	}

	plugins := plugin.New(kv, settings.Plugins.HTTPAllowList, logging.New(os.Stderr, zerolog.InfoLevel, "plugin"))
	registerBuiltins(plugins, log)

	srv := httpapi.New(canvasEngine, plugins, wifiMachine, otaEngine, disp, kv, reg, settings, *configPath, firmwareVersion, startTime, log)
	srv.Restart = func() {
		log.Info().Msg("restart requested, exiting for supervisor restart")
		os.Exit(0)
	}
	srv.FactoryReset = func() {
		log.Info().Msg("factory reset requested, exiting for supervisor restart")
		os.Exit(0)
	}

	httpSrv := &http.Server{Addr: settings.Device.HTTPBind, Handler: srv.Router()}

	stop := make(chan struct{})
	go wifiMachine.Run(stop)

	go func() {
		log.Info().Str("addr", settings.Device.HTTPBind).Msg("serving http api")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server exited")
		}
	}()

	waitForShutdown(log)
	close(stop)
	otaEngine.Stop()
}

func waitForShutdown(log zerolog.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")
}

// openPanel opens the real SPI/GPIO-backed panel, or a Simulated one
// under -dry-run for development off real hardware.
func openPanel(dryRun bool) (*panel.Handle, error) {
	if dryRun {
		return panel.NewSimulated(), nil
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initializing periph host: %w", err)
	}
	port, err := spireg.Open("")
	if err != nil {
		return nil, fmt.Errorf("opening spi port: %w", err)
	}
	dc := gpioreg.ByName("GPIO25")
	reset := gpioreg.ByName("GPIO17")
	busy := gpioreg.ByName("GPIO24")
	if dc == nil || reset == nil || busy == nil {
		return nil, fmt.Errorf("resolving panel gpio lines: one or more pins not found")
	}
	return panel.Init(panel.BusConfig{Port: port, DC: dc, Reset: reset, Busy: busy})
}

// sealerFromStore loads the Wi-Fi credential sealing key persisted under
// the wifi namespace, generating and persisting a fresh one on first
// boot.
func sealerFromStore(kv store.KV) (*wifi.Sealer, error) {
	const keyName = "seal_key"
	raw, err := kv.GetBlob(store.NamespaceWiFi, keyName)
	if err != nil {
		var key [32]byte
		if _, rerr := rand.Read(key[:]); rerr != nil {
			return nil, fmt.Errorf("generating seal key: %w", rerr)
		}
		if err := kv.SetBlob(store.NamespaceWiFi, keyName, key[:]); err != nil {
			return nil, fmt.Errorf("persisting seal key: %w", err)
		}
		if err := kv.Commit(store.NamespaceWiFi); err != nil {
			return nil, fmt.Errorf("committing seal key: %w", err)
		}
		return wifi.NewSealer(key)
	}
	var key [32]byte
	if len(raw) != len(key) {
		return nil, fmt.Errorf("persisted seal key has wrong length %d", len(raw))
	}
	copy(key[:], raw)
	return wifi.NewSealer(key)
}

func registerBuiltins(plugins *plugin.Registry, log zerolog.Logger) {
	if err := plugins.Register(
		plugin.Metadata{Name: "clock", Version: "1.0.0", Author: "Pin", Description: "Current time"},
		plugin.Config{AutoStart: true, UpdateInterval: time.Second},
		builtin.NewClock("15:04:05"),
		plugin.WidgetRegion{X: 0, Y: 0, Width: 200, Height: 60},
	); err != nil {
		log.Warn().Err(err).Msg("registering clock plugin")
	}
	if err := plugins.Register(
		plugin.Metadata{Name: "weather", Version: "1.0.0", Author: "Pin", Description: "Current temperature"},
		plugin.Config{AutoStart: false, UpdateInterval: 10 * time.Minute},
		builtin.NewWeather("https://api.open-meteo.com/v1/forecast?latitude=0&longitude=0&current_weather=true"),
		plugin.WidgetRegion{X: 200, Y: 0, Width: 200, Height: 60},
	); err != nil {
		log.Warn().Err(err).Msg("registering weather plugin")
	}
}
