package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"

	pkgerrors "github.com/pkg/errors"

	"github.com/lookingglasspt/lkgcal/pkg/bridge"
	"github.com/lookingglasspt/lkgcal/pkg/holoplay"
	"github.com/lookingglasspt/lkgcal/pkg/jshost"
	"github.com/lookingglasspt/lkgcal/pkg/nodebridge"
)

type fakeLibrary struct {
	raw json.RawMessage
	err error
}

func (f fakeLibrary) GetCalibration(context.Context) (json.RawMessage, error) {
	return f.raw, f.err
}

func TestRunWritesOneLine(t *testing.T) {
	var out bytes.Buffer
	lib := fakeLibrary{raw: json.RawMessage(`{"center":0.5,"pitch":47.0}`)}

	err := Run(context.Background(), lib, &out)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got, want := out.String(), "{\"center\":0.5,\"pitch\":47.0}\n"; got != want {
		t.Errorf("Run() wrote %q, want %q", got, want)
	}
	if code := ExitCode(err); code != 0 {
		t.Errorf("ExitCode() = %d, want 0", code)
	}
}

func TestRunCompactsOutput(t *testing.T) {
	var out bytes.Buffer
	lib := fakeLibrary{raw: json.RawMessage("{\n  \"a\": [1, 2]\n}")}

	if err := Run(context.Background(), lib, &out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := out.String(); got != "{\"a\":[1,2]}\n" {
		t.Errorf("Run() wrote %q", got)
	}
}

func TestRunRejected(t *testing.T) {
	var out bytes.Buffer
	lib := fakeLibrary{err: &jshost.RejectionError{Message: "no devices connected"}}

	err := Run(context.Background(), lib, &out)
	if err == nil {
		t.Fatal("Run() error = nil, want rejection")
	}
	if out.Len() != 0 {
		t.Errorf("Run() wrote %q on failure", out.String())
	}
	if code := ExitCode(err); code == 0 {
		t.Errorf("ExitCode() = 0 on rejection")
	}
}

func TestRunRejectsInvalidJSON(t *testing.T) {
	var out bytes.Buffer
	err := Run(context.Background(), fakeLibrary{raw: json.RawMessage(`{"a":`)}, &out)
	if err == nil {
		t.Fatal("Run() error = nil")
	}
	if out.Len() != 0 {
		t.Errorf("Run() wrote %q", out.String())
	}
}

func TestOutputRoundTripsScriptValue(t *testing.T) {
	ctx := context.Background()
	lib, err := holoplay.Load(ctx, jshost.NewEnvironment(nil), holoplay.Options{
		ModulesDir: "../holoplay/testdata/node_modules",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer lib.Close()

	var out bytes.Buffer
	if err := Run(ctx, lib, &out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var got interface{}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output %q is not JSON: %v", out.String(), err)
	}
	want := map[string]interface{}{"center": 0.5, "pitch": 47.5, "serial": "LKG-TEST"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("output = %v, want %v", got, want)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"rejection", &jshost.RejectionError{Message: "x"}, ExitRejected},
		{"wrapped rejection", pkgerrors.Wrap(&jshost.RejectionError{Message: "x"}, "read"), ExitRejected},
		{"alert", &nodebridge.AlertError{Alerts: []string{"connect a device"}}, ExitRejected},
		{"service", &bridge.ServiceError{Code: 2}, ExitRejected},
		{"no devices", bridge.ErrNoDevices, ExitRejected},
		{"load", &holoplay.LoadError{Module: "holoplay", Err: &jshost.RejectionError{Message: "x"}}, ExitSetup},
		{"deadline", fmt.Errorf("read: %w", context.DeadlineExceeded), ExitTimeout},
		{"bridge timeout", nodebridge.ErrTimeout, ExitTimeout},
		{"other", errors.New("boom"), ExitSetup},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
