package config

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Source selects where calibration comes from.
type Source string

const (
	// SourceScript hosts HoloPlay.js in the embedded JavaScript engine.
	SourceScript Source = "script"
	// SourceService talks to HoloPlay Service / Looking Glass Bridge directly.
	SourceService Source = "service"
	// SourceUSB reads the calibration blob from the display over USB.
	SourceUSB Source = "usb"
	// SourceCommand runs an external bridge script and parses its output.
	SourceCommand Source = "command"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceScript, SourceService, SourceUSB, SourceCommand:
		return true
	}
	return false
}

type Config interface {
	Source() Source
	ModulesDir() string
	Module() string
	ThreeModule() string
	ServiceURL() string
	Command() []string
	Timeout() time.Duration
	RefreshInterval() time.Duration
	AllowNonRootAccess() bool

	SetSource(Source)
	SetModulesDir(string)
	SetTimeout(time.Duration)

	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
