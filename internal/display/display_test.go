// Copyright 2024 The Pin Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package display

import (
	"testing"
	"time"

	"github.com/MePride/pin/panel"
)

func TestRefreshUpgradesToFullAfterPartialStreak(t *testing.T) {
	f := New(panel.NewSimulated(), Policy{PartialRefreshLimit: 2}, nil)

	for i := 0; i < 2; i++ {
		if err := f.Refresh(panel.Partial); err != nil {
			t.Fatalf("Refresh(Partial) #%d: %v", i, err)
		}
	}
	stats := f.Stats()
	if stats.PartialStreak != 2 {
		t.Fatalf("partial streak = %d, want 2", stats.PartialStreak)
	}

	// The third partial request should be upgraded to full because the
	// streak has reached the policy limit.
	if err := f.Refresh(panel.Partial); err != nil {
		t.Fatalf("Refresh(Partial) #3: %v", err)
	}
	stats = f.Stats()
	if stats.PartialStreak != 0 {
		t.Errorf("partial streak after upgrade = %d, want 0 (reset by full refresh)", stats.PartialStreak)
	}
}

func TestRefreshUpgradesToFullAfterInterval(t *testing.T) {
	f := New(panel.NewSimulated(), Policy{FullRefreshInterval: time.Millisecond}, nil)

	if err := f.Refresh(panel.Partial); err != nil {
		t.Fatalf("Refresh #1: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := f.Refresh(panel.Partial); err != nil {
		t.Fatalf("Refresh #2: %v", err)
	}
	if f.Stats().PartialStreak != 0 {
		t.Errorf("second refresh should have been upgraded to full by elapsed interval")
	}
}

func TestShouldEnterSleepAfterInactivity(t *testing.T) {
	f := New(panel.NewSimulated(), Policy{SleepAfterInactive: time.Millisecond}, nil)
	if f.ShouldEnterSleep() {
		t.Errorf("ShouldEnterSleep() = true immediately after construction, want false")
	}
	time.Sleep(2 * time.Millisecond)
	if !f.ShouldEnterSleep() {
		t.Errorf("ShouldEnterSleep() = false after exceeding sleep_after_inactive, want true")
	}
}

func TestSleepThenWakeClearsIsSleeping(t *testing.T) {
	f := New(panel.NewSimulated(), Policy{}, nil)
	if err := f.Sleep(); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if !f.Stats().IsSleeping {
		t.Fatalf("IsSleeping = false after Sleep, want true")
	}
	if err := f.Wake(); err != nil {
		t.Fatalf("Wake: %v", err)
	}
	if f.Stats().IsSleeping {
		t.Errorf("IsSleeping = true after Wake, want false")
	}
}
