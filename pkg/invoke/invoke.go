// Package invoke drives one calibration read and maps its outcome to
// process output and an exit code.
package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"

	pkgerrors "github.com/pkg/errors"

	"github.com/lookingglasspt/lkgcal/pkg/bridge"
	"github.com/lookingglasspt/lkgcal/pkg/holoplay"
	"github.com/lookingglasspt/lkgcal/pkg/jshost"
	"github.com/lookingglasspt/lkgcal/pkg/nodebridge"
	"github.com/lookingglasspt/lkgcal/pkg/usbcal"
)

// Library is anything that can produce calibration JSON.
type Library interface {
	GetCalibration(ctx context.Context) (json.RawMessage, error)
}

// Exit codes.
const (
	ExitOK       = 0
	ExitSetup    = 1
	ExitRejected = 2
	ExitTimeout  = 3
)

// Run reads calibration from lib and writes it to w as one line of compact
// JSON. Nothing is written when the read fails.
func Run(ctx context.Context, lib Library, w io.Writer) error {
	raw, err := lib.GetCalibration(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return pkgerrors.Wrap(err, "calibration is not valid JSON")
	}
	buf.WriteByte('\n')

	if _, err := w.Write(buf.Bytes()); err != nil {
		return pkgerrors.Wrap(err, "failed to write calibration")
	}
	return nil
}

// ExitCode maps the error returned by Run, or by setting up its library, to a
// process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var (
		rejection *jshost.RejectionError
		alert     *nodebridge.AlertError
		service   *bridge.ServiceError
		load      *holoplay.LoadError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, nodebridge.ErrTimeout):
		return ExitTimeout
	case errors.As(err, &load):
		return ExitSetup
	case errors.As(err, &rejection),
		errors.As(err, &alert),
		errors.As(err, &service),
		errors.Is(err, bridge.ErrNoDevices),
		errors.Is(err, usbcal.ErrNoDevice),
		errors.Is(err, nodebridge.ErrNoResult):
		return ExitRejected
	default:
		return ExitSetup
	}
}
