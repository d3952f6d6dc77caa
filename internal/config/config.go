// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads the device's TOML settings file. A missing file
// is not an error: every field falls back to an in-code default so a
// factory-reset device still boots and serves its captive portal.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/MePride/pin/internal/ferr"
)

// Settings is the full set of device-wide, persisted-to-disk options.
// Everything a subsystem needs that isn't discovered at runtime (Wi-Fi
// credentials, plugin state, canvases) lives here instead of in the KV
// store, since it's meant to be hand-edited or shipped as a factory
// default rather than mutated by the running daemon.
type Settings struct {
	Device struct {
		Name     string `toml:"name"`
		HTTPBind string `toml:"http_bind"`
	} `toml:"device"`

	Display struct {
		FontPath            string  `toml:"font_path"`
		FontPoints          float64 `toml:"font_points"`
		PartialRefreshLimit int     `toml:"partial_refresh_limit"`
		FullRefreshInterval string  `toml:"full_refresh_interval"`
		SleepAfterInactive  string  `toml:"sleep_after_inactive"`
	} `toml:"display"`

	Plugins struct {
		HTTPAllowList []string `toml:"http_allow_list"`
	} `toml:"plugins"`

	Wifi struct {
		APPrefix       string `toml:"ap_prefix"`
		APChannel      int    `toml:"ap_channel"`
		GatewayIP      string `toml:"gateway_ip"`
		ConfigTimeout  string `toml:"config_timeout"`
		ConnectTimeout string `toml:"connect_timeout"`
		MaxRetry       int    `toml:"max_retry"`
	} `toml:"wifi"`

	OTA struct {
		ManifestURL       string `toml:"manifest_url"`
		AutoCheckInterval string `toml:"auto_check_interval"`
	} `toml:"ota"`
}

// Default returns the in-code settings a factory-reset device boots
// with, when no TOML file is present or readable.
func Default() Settings {
	var s Settings
	s.Device.Name = "Pin"
	s.Device.HTTPBind = ":80"
	s.Display.FontPoints = 24
	s.Display.PartialRefreshLimit = 10
	s.Display.FullRefreshInterval = "1800s"
	s.Display.SleepAfterInactive = "600s"
	s.Plugins.HTTPAllowList = []string{"api.open-meteo.com"}
	s.Wifi.APPrefix = "Pin-Device"
	s.Wifi.APChannel = 1
	s.Wifi.GatewayIP = "192.168.4.1"
	s.Wifi.ConfigTimeout = "300s"
	s.Wifi.ConnectTimeout = "30s"
	s.Wifi.MaxRetry = 3
	s.OTA.AutoCheckInterval = "24h"
	return s
}

// Load reads settings from path, starting from Default() and
// overwriting whatever the file specifies. A missing file is not an
// error: Default() is returned unchanged. A malformed file is an
// error, since a present-but-broken config file is more likely an
// operator mistake worth surfacing than something to silently ignore.
func Load(path string) (Settings, error) {
	s := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return s, nil
	}
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return Settings{}, ferr.Wrap(ferr.InvalidArgument, err, "decoding config file %s", path)
	}
	return s, nil
}

// Save writes s to path in TOML form, overwriting whatever was there.
func Save(path string, s Settings) error {
	f, err := os.Create(path)
	if err != nil {
		return ferr.Wrap(ferr.InvalidArgument, err, "creating config file %s", path)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(s); err != nil {
		return ferr.Wrap(ferr.InvalidArgument, err, "encoding config file %s", path)
	}
	return nil
}

// Duration parses one of the settings' duration strings, falling back
// to def if the string is empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
