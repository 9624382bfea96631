package holoplay

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/lookingglasspt/lkgcal/pkg/jshost"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func load(t *testing.T, module string) (*ScriptLibrary, *jshost.Recorder) {
	t.Helper()
	rec := jshost.NewRecorder(jshost.NewWriterAlerter(&bytes.Buffer{}))
	lib, err := Load(context.Background(), jshost.NewEnvironment(rec), Options{
		ModulesDir: "testdata/node_modules",
		Module:     module,
	})
	if err != nil {
		t.Fatalf("Load(%s) error = %v", module, err)
	}
	t.Cleanup(func() { _ = lib.Close() })
	return lib, rec
}

func TestGetCalibration(t *testing.T) {
	lib, _ := load(t, "holoplay")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := lib.GetCalibration(ctx)
	if err != nil {
		t.Fatalf("GetCalibration() error = %v", err)
	}
	want := `{"center":0.5,"pitch":47.5,"serial":"LKG-TEST"}`
	if string(got) != want {
		t.Errorf("GetCalibration() = %s, want %s", got, want)
	}
}

func TestGetCalibrationRejected(t *testing.T) {
	lib, _ := load(t, "holoplay-reject")

	_, err := lib.GetCalibration(context.Background())
	var rej *jshost.RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("GetCalibration() error = %v, want RejectionError", err)
	}
	if rej.Message != "no devices connected" {
		t.Errorf("rejection message = %q", rej.Message)
	}
}

func TestLoadFailsAtModuleScope(t *testing.T) {
	_, err := Load(context.Background(), jshost.NewEnvironment(nil), Options{
		ModulesDir: "testdata/node_modules",
		Module:     "holoplay-broken",
	})
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("Load() error = %v, want LoadError", err)
	}
	if le.Module != "holoplay-broken" {
		t.Errorf("LoadError.Module = %q", le.Module)
	}
}

func TestLoadMissingModule(t *testing.T) {
	_, err := Load(context.Background(), jshost.NewEnvironment(nil), Options{
		ModulesDir: "testdata/node_modules",
		Module:     "does-not-exist",
	})
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("Load() error = %v, want LoadError", err)
	}
}

func TestCloseDiscardsPendingWork(t *testing.T) {
	lib, _ := load(t, "holoplay-dangling")

	got, err := lib.GetCalibration(context.Background())
	if err != nil {
		t.Fatalf("GetCalibration() error = %v", err)
	}
	if string(got) != `{"center":0.25}` {
		t.Errorf("GetCalibration() = %s", got)
	}

	done := make(chan struct{})
	go func() {
		_ = lib.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close() blocked on pending timers")
	}
}

func TestAlertIsRecordedWhileWaiting(t *testing.T) {
	lib, rec := load(t, "holoplay-alert")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := lib.GetCalibration(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("GetCalibration() error = %v, want deadline exceeded", err)
	}
	msgs := rec.Messages()
	if len(msgs) != 1 || msgs[0] != "Please connect a Looking Glass" {
		t.Errorf("alerts = %v", msgs)
	}
}
