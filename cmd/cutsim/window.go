//go:build !noebiten

package main

import (
	"context"
	"math"

	"github.com/opd-ai/go-cutsim/internal/config"
	"github.com/opd-ai/go-cutsim/internal/render"
	"github.com/opd-ai/go-cutsim/pkg/cutsim"
)

// runWindow shows the canvas until the window is closed or ctx is done.
// It must run on the main goroutine.
func runWindow(ctx context.Context, sim cutsim.Simulator, cfg *config.Config, logger cutsim.Logger) error {
	viewer := render.NewViewer(sim, windowConfig(cfg))
	viewer.SetContext(ctx)
	viewer.SetErrorHandler(func(err error) {
		logger.Warn("preview error", "error", err)
	})
	return viewer.Run()
}

func windowConfig(cfg *config.Config) render.Config {
	rc := render.DefaultConfig()
	rc.Width = int(math.Round(cfg.Device.Width * cfg.Device.ResolutionX))
	rc.Height = int(math.Round(cfg.Device.Height * cfg.Device.ResolutionY))
	rc.Scale = cfg.Preview.Scale
	rc.Title = cfg.Preview.Title
	rc.KeepAbove = cfg.Preview.KeepAbove
	return rc
}
