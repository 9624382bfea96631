package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestFileDefaults(t *testing.T) {
	tests := []struct {
		name    string
		content *string
	}{
		{name: "missing file"},
		{name: "empty file", content: new(string)},
		{name: "whitespace only", content: func() *string { s := " \n\t"; return &s }()},
		{name: "empty object", content: func() *string { s := "{}"; return &s }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if tt.content != nil {
				if err := os.WriteFile(path, []byte(*tt.content), 0644); err != nil {
					t.Fatal(err)
				}
			}
			f, err := NewFile(path)
			if err != nil {
				t.Fatalf("NewFile() error = %v", err)
			}
			if f.Source() != SourceScript {
				t.Errorf("Source() = %q, want %q", f.Source(), SourceScript)
			}
			if f.Module() != "holoplay" || f.ThreeModule() != "three" {
				t.Errorf("modules = %q/%q", f.Module(), f.ThreeModule())
			}
			if f.ServiceURL() != "ws://localhost:11222/driver" {
				t.Errorf("ServiceURL() = %q", f.ServiceURL())
			}
			if f.Timeout() != 10*time.Second {
				t.Errorf("Timeout() = %v", f.Timeout())
			}
			if f.Command() != nil {
				t.Errorf("Command() = %v, want nil", f.Command())
			}
		})
	}
}

func TestFileLoadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"source": "usb", "timeoutSeconds": 3, "command": ["lkgcal", "print"], "allowNonRootAccess": true}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	f, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	if f.Source() != SourceUSB {
		t.Errorf("Source() = %q", f.Source())
	}
	if f.Timeout() != 3*time.Second {
		t.Errorf("Timeout() = %v", f.Timeout())
	}
	if !reflect.DeepEqual(f.Command(), []string{"lkgcal", "print"}) {
		t.Errorf("Command() = %v", f.Command())
	}
	if !f.AllowNonRootAccess() {
		t.Error("AllowNonRootAccess() = false")
	}
	// Unset fields still fall back to defaults.
	if f.Module() != "holoplay" {
		t.Errorf("Module() = %q", f.Module())
	}
}

func TestFileLoadRejectsUnknownSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"source": "carrier-pigeon"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFile(path); err == nil {
		t.Fatal("expected an error for an unknown source")
	}
}

func TestFileSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	f, err := NewFile(path)
	if err != nil {
		t.Fatal(err)
	}
	f.SetSource(SourceService)
	f.SetModulesDir("/opt/lkg/node_modules")
	f.SetTimeout(42 * time.Second)
	if err := f.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	g, err := NewFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if g.Source() != SourceService || g.ModulesDir() != "/opt/lkg/node_modules" || g.Timeout() != 42*time.Second {
		t.Errorf("reloaded config = %v", g.LogrusFields())
	}
}

func TestNewRawFileConfigFromConfig(t *testing.T) {
	f := NewFileFromConfig(nil, "")
	raw, err := NewRawFileConfigFromConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	if raw.Source == nil || *raw.Source != SourceScript {
		t.Errorf("raw.Source = %v", raw.Source)
	}
	if raw.TimeoutSeconds == nil || *raw.TimeoutSeconds != 10 {
		t.Errorf("raw.TimeoutSeconds = %v", raw.TimeoutSeconds)
	}

	if _, err := NewRawFileConfigFromConfig(nil); err == nil {
		t.Error("expected an error for a nil config")
	}
}
