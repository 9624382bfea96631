// Package source opens the calibration backend selected by configuration.
package source

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lookingglasspt/lkgcal/pkg/bridge"
	"github.com/lookingglasspt/lkgcal/pkg/config"
	"github.com/lookingglasspt/lkgcal/pkg/holoplay"
	"github.com/lookingglasspt/lkgcal/pkg/invoke"
	"github.com/lookingglasspt/lkgcal/pkg/jshost"
	"github.com/lookingglasspt/lkgcal/pkg/nodebridge"
	"github.com/lookingglasspt/lkgcal/pkg/usbcal"
)

// Opened is a ready library and the function that releases it. Close never
// blocks on work the library left pending.
type Opened struct {
	Library invoke.Library
	Close   func()
}

func noop() {}

// Open builds the library for cfg.Source(). Alerts raised by the library go
// to alerter.
func Open(ctx context.Context, cfg config.Config, alerter jshost.Alerter) (*Opened, error) {
	logrus.WithFields(cfg.LogrusFields()).Debug("opening calibration source")

	switch cfg.Source() {
	case config.SourceScript:
		lib, err := holoplay.Load(ctx, jshost.NewEnvironment(alerter), holoplay.Options{
			ModulesDir:  cfg.ModulesDir(),
			Module:      cfg.Module(),
			ThreeModule: cfg.ThreeModule(),
		})
		if err != nil {
			return nil, err
		}
		return &Opened{Library: lib, Close: func() { _ = lib.Close() }}, nil

	case config.SourceService:
		return &Opened{Library: bridge.NewClient(cfg.ServiceURL()), Close: noop}, nil

	case config.SourceUSB:
		return &Opened{Library: usbcal.NewReader(), Close: noop}, nil

	case config.SourceCommand:
		b := nodebridge.New(nodebridge.Options{
			Command: cfg.Command(),
			Timeout: cfg.Timeout(),
			Alerter: alerter,
		})
		return &Opened{Library: b, Close: noop}, nil
	}

	return nil, pkgerrors.Errorf("unknown calibration source %q", cfg.Source())
}
