package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lookingglasspt/lkgcal/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		Source:      ptr.To(SourceScript),
		ModulesDir:  ptr.To("node_modules"),
		Module:      ptr.To("holoplay"),
		ThreeModule: ptr.To("three"),
		ServiceURL:  ptr.To("ws://localhost:11222/driver"),
		// The bridge used to be given 10 seconds before it was considered
		// unresponsive.
		TimeoutSeconds:         ptr.To(10),
		RefreshIntervalSeconds: ptr.To(300),
		AllowNonRootAccess:     ptr.To(false),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

// DefaultPath returns the per-user config location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "lkgcal.json"
	}
	return filepath.Join(dir, "lkgcal", "config.json")
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	Source                 *Source  `json:"source,omitempty"`
	ModulesDir             *string  `json:"modulesDir,omitempty"`
	Module                 *string  `json:"module,omitempty"`
	ThreeModule            *string  `json:"threeModule,omitempty"`
	ServiceURL             *string  `json:"serviceURL,omitempty"`
	Command                []string `json:"command,omitempty"`
	TimeoutSeconds         *int     `json:"timeoutSeconds,omitempty"`
	RefreshIntervalSeconds *int     `json:"refreshIntervalSeconds,omitempty"`
	AllowNonRootAccess     *bool    `json:"allowNonRootAccess,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		Source:                 ptr.To(c.Source()),
		ModulesDir:             ptr.To(c.ModulesDir()),
		Module:                 ptr.To(c.Module()),
		ThreeModule:            ptr.To(c.ThreeModule()),
		ServiceURL:             ptr.To(c.ServiceURL()),
		Command:                c.Command(),
		TimeoutSeconds:         ptr.To(int(c.Timeout() / time.Second)),
		RefreshIntervalSeconds: ptr.To(int(c.RefreshInterval() / time.Second)),
		AllowNonRootAccess:     ptr.To(c.AllowNonRootAccess()),
	}

	return rawConfig, nil
}

func pick[T any](v, def *T) T {
	if v != nil {
		return *v
	}
	return *def
}

func (f *File) Source() Source {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return pick(f.c.Source, defaultFileConfig.Source)
}

func (f *File) ModulesDir() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return pick(f.c.ModulesDir, defaultFileConfig.ModulesDir)
}

func (f *File) Module() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return pick(f.c.Module, defaultFileConfig.Module)
}

func (f *File) ThreeModule() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return pick(f.c.ThreeModule, defaultFileConfig.ThreeModule)
}

func (f *File) ServiceURL() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return pick(f.c.ServiceURL, defaultFileConfig.ServiceURL)
}

// Command returns the external bridge command. Empty means the default
// Node.js invocation.
func (f *File) Command() []string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.c.Command) == 0 {
		return nil
	}
	return append([]string(nil), f.c.Command...)
}

// Timeout returns how long a single calibration fetch may take. Zero means
// no limit.
func (f *File) Timeout() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return time.Duration(pick(f.c.TimeoutSeconds, defaultFileConfig.TimeoutSeconds)) * time.Second
}

func (f *File) RefreshInterval() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return time.Duration(pick(f.c.RefreshIntervalSeconds, defaultFileConfig.RefreshIntervalSeconds)) * time.Second
}

func (f *File) AllowNonRootAccess() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return pick(f.c.AllowNonRootAccess, defaultFileConfig.AllowNonRootAccess)
}

func (f *File) SetSource(s Source) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.Source = &s
}

func (f *File) SetModulesDir(dir string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.ModulesDir = &dir
}

func (f *File) SetTimeout(d time.Duration) {
	if f.c == nil {
		panic("config is nil")
	}

	// Round up so a sub-second timeout does not become "no limit".
	secs := int((d + time.Second - 1) / time.Second)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.TimeoutSeconds = &secs
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	if conf.Source != nil && !conf.Source.Valid() {
		return pkgerrors.Errorf("unknown source %q in file %s", *conf.Source, f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	if err := os.MkdirAll(filepath.Dir(f.filepath), 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create directory for %s", f.filepath)
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"source":          f.Source(),
		"modulesDir":      f.ModulesDir(),
		"module":          f.Module(),
		"threeModule":     f.ThreeModule(),
		"serviceURL":      f.ServiceURL(),
		"command":         f.Command(),
		"timeout":         f.Timeout(),
		"refreshInterval": f.RefreshInterval(),
	}
}
