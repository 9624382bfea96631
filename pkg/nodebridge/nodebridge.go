// Package nodebridge runs an external bridge script, by default the node.js
// version of the calibration printer, and picks the calibration out of its
// output.
package nodebridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lookingglasspt/lkgcal/pkg/calibration"
	"github.com/lookingglasspt/lkgcal/pkg/jshost"
	"github.com/lookingglasspt/lkgcal/pkg/utils/paths"
)

const (
	// DefaultTimeout bounds one bridge run.
	DefaultTimeout = 10 * time.Second
	// DefaultScript is the bridge script name.
	DefaultScript = "index.js"

	noDevicesPrefix  = "no devices connected"
	noDevicesMessage = "No Looking Glass devices connected."
)

var (
	// ErrTimeout is returned when the bridge does not finish in time.
	ErrTimeout = errors.New("looking glass bridge not responding")
	// ErrNoResult is returned when the bridge exits cleanly without
	// printing a calibration.
	ErrNoResult = errors.New("looking glass bridge printed no calibration")
)

// AlertError carries the alerts the bridge raised instead of a result.
type AlertError struct {
	Alerts []string
}

func (e *AlertError) Error() string {
	return "looking glass bridge: " + strings.Join(e.Alerts, "; ")
}

// Options configures a Bridge.
type Options struct {
	// Command is the full argv. Empty means node running DefaultScript.
	Command []string
	// Dir is the working directory of the command.
	Dir     string
	Timeout time.Duration
	// Alerter additionally receives every alert the bridge raises.
	Alerter jshost.Alerter
}

// Bridge runs the bridge command once per GetCalibration call.
type Bridge struct {
	opts Options
}

// New returns a Bridge. A zero Timeout lets the bridge run until ctx is
// done, a negative one means DefaultTimeout.
func New(opts Options) *Bridge {
	if opts.Timeout < 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Bridge{opts: opts}
}

// TopLevelAwaitFlag returns the node flag that enables top-level await for
// the given `node -v` output.
func TopLevelAwaitFlag(version string) string {
	v := strings.TrimPrefix(strings.TrimSpace(version), "v")
	major, err := strconv.Atoi(strings.SplitN(v, ".", 2)[0])
	if err == nil && major > 16 {
		return "--experimental-repl-await"
	}
	return "--harmony-top-level-await"
}

// DefaultCommand probes the installed node version and returns the command
// that runs DefaultScript.
func DefaultCommand(ctx context.Context) []string {
	script := paths.RelativeToExecutable(DefaultScript)

	out, err := exec.CommandContext(ctx, "node", "-v").Output()
	if err != nil {
		logrus.WithError(err).Warn("failed to detect node version, trying anyway")
	}
	return []string{"node", TopLevelAwaitFlag(string(out)), script}
}

// LineKind classifies one line of bridge stdout.
type LineKind int

const (
	LineText LineKind = iota
	LineAlert
	LineCalibration
	LineOtherJSON
)

// ClassifyLine reports what a stdout line holds. For alerts the returned
// string is the message, for calibration lines the JSON itself.
func ClassifyLine(line string) (LineKind, string) {
	if msg, ok := strings.CutPrefix(line, jshost.AlertPrefix); ok {
		return LineAlert, msg
	}
	trimmed := strings.TrimSpace(line)
	if !json.Valid([]byte(trimmed)) {
		return LineText, line
	}
	ok, missing := calibration.HasAllProperties([]byte(trimmed))
	if !ok {
		return LineOtherJSON, missing
	}
	return LineCalibration, trimmed
}

type run struct {
	mu     sync.Mutex
	result json.RawMessage
	alerts *jshost.Recorder
}

func (r *run) stdout(line string) {
	log := logrus.WithField("stream", "stdout")
	kind, s := ClassifyLine(line)
	switch kind {
	case LineAlert:
		r.alerts.Alert(s)
	case LineCalibration:
		r.mu.Lock()
		if r.result == nil {
			r.result = json.RawMessage(s)
		}
		r.mu.Unlock()
		log.Debug("received calibration")
	case LineOtherJSON:
		log.WithField("missing", s).Info("ignored JSON without every calibration property")
	default:
		log.Info(line)
	}
}

func (r *run) stderr(line string) {
	logrus.WithField("stream", "stderr").Warn(line)
	if strings.HasPrefix(strings.TrimSpace(line), noDevicesPrefix) {
		r.alerts.Alert(noDevicesMessage)
	}
}

// GetCalibration runs the bridge and returns the first calibration line it
// prints. A run that timed out, raised alerts or exited non-zero fails even
// if it printed a calibration.
func (b *Bridge) GetCalibration(ctx context.Context) (json.RawMessage, error) {
	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}

	argv := b.opts.Command
	if len(argv) == 0 {
		argv = DefaultCommand(ctx)
	}

	r := &run{alerts: jshost.NewRecorder(b.opts.Alerter)}
	stdout := &lineWriter{fn: r.stdout}
	stderr := &lineWriter{fn: r.stderr}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = b.opts.Dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second

	logrus.WithFields(logrus.Fields{
		"command": argv,
		"timeout": b.opts.Timeout,
	}).Debug("starting bridge")

	err := cmd.Run()
	stdout.Flush()
	stderr.Flush()

	r.mu.Lock()
	defer r.mu.Unlock()

	alerts := r.alerts.Messages()
	switch {
	case b.opts.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, pkgerrors.Wrapf(ErrTimeout, "no calibration within %s", b.opts.Timeout)
	case ctx.Err() != nil:
		return nil, pkgerrors.Wrap(ctx.Err(), "looking glass bridge interrupted")
	case len(alerts) > 0:
		return nil, &AlertError{Alerts: alerts}
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("looking glass bridge exited with code %d", exitErr.ExitCode())
		}
		return nil, pkgerrors.Wrapf(err, "failed to run %s", argv[0])
	case r.result != nil:
		return r.result, nil
	default:
		return nil, ErrNoResult
	}
}

// lineWriter calls fn for every complete line written to it.
type lineWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
	fn  func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(w.buf.Next(i + 1))
		w.fn(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

// Flush emits a trailing line without a newline.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.fn(strings.TrimRight(w.buf.String(), "\r\n"))
		w.buf.Reset()
	}
}
