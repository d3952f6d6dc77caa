// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package panel

// Controller command opcodes. Naming and values follow the UC8159-family
// command set (power/panel/TCON settings, data transmission, refresh,
// deep sleep with the 0xA5 check byte), the controller family this
// seven-color panel belongs to.
const (
	cmdPowerSetting   = 0x01
	cmdPowerOff       = 0x02
	cmdPowerOn        = 0x04
	cmdDeepSleep      = 0x07
	cmdDataStartXmit1 = 0x10
	cmdDisplayRefresh = 0x12
	cmdPanelSetting   = 0x00
	cmdTCONResolution = 0x61
	cmdVCMDCSetting   = 0x82
)

// deepSleepCheckCode is the magic byte the controller requires alongside
// the Deep Sleep command to actually enter the low-power state, rather
// than ignore the command as a misfire.
const deepSleepCheckCode = 0xA5

// Init sequence payloads sent during Init.
var (
	initPowerSetting = []byte{0x07, 0x07, 0x3F, 0x3F}
	initPanelSetting = []byte{0x1F}
	initVCMDC        = []byte{0x0E}
)

// whiteFill is the byte the framebuffer is filled with on Init: both
// nibbles set to the White color code.
const whiteFill = byte(0x11)
