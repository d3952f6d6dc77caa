// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package builtin

import (
	"encoding/json"
	"fmt"

	"github.com/MePride/pin/internal/ferr"
	"github.com/MePride/pin/internal/plugin"
)

// Weather is a built-in plugin that polls a forecast endpoint and
// displays the current temperature. Its allow-listed domain must be
// compiled into the runtime's HTTP allow-list for HTTPGet to succeed.
type Weather struct {
	endpoint string
}

// NewWeather returns a Weather plugin polling endpoint, expected to
// return a JSON body shaped like open-meteo's current_weather response.
func NewWeather(endpoint string) *Weather {
	return &Weather{endpoint: endpoint}
}

func (w *Weather) Init(ctx *plugin.Context) error {
	ctx.UpdateContent("--")
	return nil
}

type currentWeather struct {
	CurrentWeather struct {
		Temperature float64 `json:"temperature"`
	} `json:"current_weather"`
}

func (w *Weather) Update(ctx *plugin.Context) error {
	body, err := ctx.HTTPGet(w.endpoint)
	if err != nil {
		return err
	}
	var resp currentWeather
	if err := json.Unmarshal(body, &resp); err != nil {
		return ferr.Wrap(ferr.InvalidArgument, err, "decoding weather response")
	}
	ctx.UpdateContent(fmt.Sprintf("%.0f°", resp.CurrentWeather.Temperature))
	return nil
}
