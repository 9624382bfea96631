package source

import (
	"context"
	"testing"

	"github.com/lookingglasspt/lkgcal/pkg/bridge"
	"github.com/lookingglasspt/lkgcal/pkg/config"
	"github.com/lookingglasspt/lkgcal/pkg/holoplay"
	"github.com/lookingglasspt/lkgcal/pkg/jshost"
	"github.com/lookingglasspt/lkgcal/pkg/nodebridge"
	"github.com/lookingglasspt/lkgcal/pkg/usbcal"
	"github.com/lookingglasspt/lkgcal/pkg/utils/ptr"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		name   string
		source config.Source
		check  func(t *testing.T, lib interface{})
	}{
		{"script", config.SourceScript, func(t *testing.T, lib interface{}) {
			if _, ok := lib.(*holoplay.ScriptLibrary); !ok {
				t.Errorf("library = %T, want *holoplay.ScriptLibrary", lib)
			}
		}},
		{"service", config.SourceService, func(t *testing.T, lib interface{}) {
			c, ok := lib.(*bridge.Client)
			if !ok {
				t.Fatalf("library = %T, want *bridge.Client", lib)
			}
			if c.URL != "ws://127.0.0.1:11222/driver" {
				t.Errorf("URL = %q", c.URL)
			}
		}},
		{"usb", config.SourceUSB, func(t *testing.T, lib interface{}) {
			if _, ok := lib.(*usbcal.Reader); !ok {
				t.Errorf("library = %T, want *usbcal.Reader", lib)
			}
		}},
		{"command", config.SourceCommand, func(t *testing.T, lib interface{}) {
			if _, ok := lib.(*nodebridge.Bridge); !ok {
				t.Errorf("library = %T, want *nodebridge.Bridge", lib)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewFileFromConfig(&config.RawFileConfig{
				Source:     ptr.To(tt.source),
				ModulesDir: ptr.To("../holoplay/testdata/node_modules"),
				ServiceURL: ptr.To("ws://127.0.0.1:11222/driver"),
				Command:    []string{"true"},
			}, "")

			opened, err := Open(context.Background(), cfg, jshost.NewRecorder(nil))
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer opened.Close()
			tt.check(t, opened.Library)
		})
	}
}

func TestOpenUnknownSource(t *testing.T) {
	cfg := config.NewFileFromConfig(&config.RawFileConfig{Source: ptr.To(config.Source("carrier-pigeon"))}, "")

	if _, err := Open(context.Background(), cfg, nil); err == nil {
		t.Fatal("Open() error = nil for unknown source")
	}
}
