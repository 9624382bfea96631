// Package holoplay loads the HoloPlay.js calibration library into a jshost
// runtime and exposes its Calibration.getCalibration() accessor to Go.
package holoplay

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dop251/goja"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lookingglasspt/lkgcal/pkg/jshost"
)

// Options selects the modules to load.
type Options struct {
	// ModulesDir is a node_modules directory holding Module and ThreeModule.
	ModulesDir string
	// Module is the calibration library, "holoplay" by default.
	Module string
	// ThreeModule is installed as the global THREE before Module loads,
	// "three" by default.
	ThreeModule string
}

func (o Options) withDefaults() Options {
	if o.Module == "" {
		o.Module = "holoplay"
	}
	if o.ThreeModule == "" {
		o.ThreeModule = "three"
	}
	return o
}

// RejectionError is what GetCalibration returns when the library's promise
// rejects.
type RejectionError = jshost.RejectionError

// LoadError reports a failure while requiring a module.
type LoadError struct {
	Module string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load module %s: %v", e.Module, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ScriptLibrary is a loaded HoloPlay.js instance.
type ScriptLibrary struct {
	host   *jshost.Host
	handle *goja.Object
	module string
}

// Load starts a fresh runtime, installs env into it and only then requires
// the graphics library and the calibration library.
func Load(ctx context.Context, env *jshost.Environment, opts Options) (*ScriptLibrary, error) {
	opts = opts.withDefaults()

	var folders []string
	if opts.ModulesDir != "" {
		dir, err := filepath.Abs(opts.ModulesDir)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to resolve modules directory %s", opts.ModulesDir)
		}
		folders = append(folders, filepath.ToSlash(dir))
	}

	host := jshost.NewHost(jshost.Options{ModuleFolders: folders})
	if err := host.Install(ctx, env); err != nil {
		host.Close()
		return nil, pkgerrors.Wrap(err, "failed to install browser environment")
	}

	lib := &ScriptLibrary{host: host, module: opts.Module}
	err := host.Run(ctx, func(vm *goja.Runtime) error {
		three, err := require(vm, opts.ThreeModule)
		if err != nil {
			return err
		}
		if err := vm.Set("THREE", three); err != nil {
			return pkgerrors.Wrap(err, "failed to set global THREE")
		}

		handle, err := require(vm, opts.Module)
		if err != nil {
			return err
		}
		obj, ok := handle.(*goja.Object)
		if !ok {
			return &LoadError{Module: opts.Module, Err: pkgerrors.New("module did not export an object")}
		}
		lib.handle = obj
		return nil
	})
	if err != nil {
		host.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"module":     opts.Module,
		"three":      opts.ThreeModule,
		"modulesDir": opts.ModulesDir,
	}).Debug("calibration library loaded")

	return lib, nil
}

func require(vm *goja.Runtime, name string) (goja.Value, error) {
	fn, ok := goja.AssertFunction(vm.Get("require"))
	if !ok {
		return nil, &LoadError{Module: name, Err: pkgerrors.New("require is not available")}
	}
	v, err := fn(goja.Undefined(), vm.ToValue(name))
	if err != nil {
		return nil, &LoadError{Module: name, Err: jshost.AsRejection(err)}
	}
	return v, nil
}

// GetCalibration calls Calibration.getCalibration() and returns whatever it
// resolves with, serialized as JSON.
func (l *ScriptLibrary) GetCalibration(ctx context.Context) (json.RawMessage, error) {
	out, err := l.host.AwaitJSON(ctx, func(vm *goja.Runtime) (goja.Value, error) {
		cal := l.handle.Get("Calibration")
		if cal == nil || goja.IsUndefined(cal) || goja.IsNull(cal) {
			return nil, pkgerrors.Errorf("module %s has no Calibration export", l.module)
		}
		calObj := cal.ToObject(vm)
		fn, ok := goja.AssertFunction(calObj.Get("getCalibration"))
		if !ok {
			return nil, pkgerrors.Errorf("%s.Calibration.getCalibration is not a function", l.module)
		}
		return fn(calObj)
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}

// Close releases the runtime without waiting for timers or sockets the
// library left behind.
func (l *ScriptLibrary) Close() error {
	l.host.Close()
	return nil
}
