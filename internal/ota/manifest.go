// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ota

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MePride/pin/internal/ferr"
)

// Asset is one downloadable file listed in a Manifest, shaped to match
// GitHub's release-asset JSON so a GitHub releases URL can be used
// directly as a manifest endpoint.
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// Manifest describes one published firmware release.
type Manifest struct {
	Version string  `json:"tag_name"`
	Notes   string  `json:"body"`
	Assets  []Asset `json:"assets"`
}

// FirmwareAsset returns the asset whose name contains "pin_firmware.bin".
func (m Manifest) FirmwareAsset() (Asset, bool) {
	for _, a := range m.Assets {
		if strings.Contains(a.Name, "pin_firmware.bin") {
			return a, true
		}
	}
	return Asset{}, false
}

// fetchManifest retrieves and decodes the manifest at url.
func fetchManifest(ctx context.Context, client *http.Client, url string) (Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Manifest{}, ferr.Wrap(ferr.InvalidArgument, err, "building manifest request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return Manifest{}, ferr.Wrap(ferr.HardwareFail, err, "fetching manifest")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Manifest{}, ferr.New(ferr.HardwareFail, "manifest fetch: unexpected status %s", resp.Status)
	}
	var m Manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return Manifest{}, ferr.Wrap(ferr.InvalidArgument, err, "decoding manifest")
	}
	if m.Version == "" {
		return Manifest{}, ferr.New(ferr.InvalidArgument, "manifest missing tag_name")
	}
	if _, ok := m.FirmwareAsset(); !ok {
		return Manifest{}, ferr.New(ferr.InvalidArgument, "manifest has no pin_firmware.bin asset")
	}
	return m, nil
}
