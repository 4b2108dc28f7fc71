//go:build noebiten

package main

import (
	"context"
	"errors"

	"github.com/opd-ai/go-cutsim/internal/config"
	"github.com/opd-ai/go-cutsim/pkg/cutsim"
)

// errNoWindow is returned when the binary was built without Ebiten.
var errNoWindow = errors.New("preview window not available: built with noebiten tag")

func runWindow(context.Context, cutsim.Simulator, *config.Config, cutsim.Logger) error {
	return errNoWindow
}
