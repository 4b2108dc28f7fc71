//go:build !noebiten

package main

import (
	"testing"

	"github.com/opd-ai/go-cutsim/internal/config"
)

func TestWindowConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Device.Width = 8.5
	cfg.Device.ResolutionY = 50
	cfg.Preview.Scale = 0.5
	cfg.Preview.Title = "bench"
	cfg.Preview.KeepAbove = true

	rc := windowConfig(&cfg)
	if rc.Width != 850 || rc.Height != 300 {
		t.Errorf("size = %dx%d, want 850x300", rc.Width, rc.Height)
	}
	if rc.Scale != 0.5 || rc.Title != "bench" || !rc.KeepAbove {
		t.Errorf("config = %+v", rc)
	}
}
