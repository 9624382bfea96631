package daemon

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/sirupsen/logrus"
)

// UnitName is the systemd user unit that runs the lkgcal daemon.
const UnitName = "lkgcal.service"

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=Looking Glass calibration daemon
After=network.target

[Service]
ExecStart={{printf "%q" .Executable}} daemon --config {{printf "%q" .ConfigPath}} --daemon-socket {{printf "%q" .SocketPath}}
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure

[Install]
WantedBy=default.target
`))

// Unit describes what the daemon unit runs.
type Unit struct {
	Executable string
	ConfigPath string
	SocketPath string
}

// Render returns the unit file contents.
func (u Unit) Render() ([]byte, error) {
	var buf bytes.Buffer
	if err := unitTemplate.Execute(&buf, u); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", UnitName, err)
	}
	return buf.Bytes(), nil
}

// UnitPath returns where the user unit is installed.
func UnitPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to find the user config directory: %w", err)
	}
	return filepath.Join(dir, "systemd", "user", UnitName), nil
}

// Install writes the unit for the current executable and starts it.
func Install(configPath, socketPath string) error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	unit, err := Unit{Executable: exePath, ConfigPath: configPath, SocketPath: socketPath}.Render()
	if err != nil {
		return err
	}

	unitPath, err := UnitPath()
	if err != nil {
		return err
	}

	// mkdir -p
	if err := os.MkdirAll(filepath.Dir(unitPath), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(unitPath), err)
	}

	// warn if the file already exists
	if _, err := os.Stat(unitPath); err == nil {
		logrus.Warnf("%s already exists, overwriting", unitPath)
	}

	logrus.Infof("writing %s", unitPath)
	if err := os.WriteFile(unitPath, unit, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", unitPath, err)
	}

	logrus.Infof("starting lkgcal daemon")
	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	return systemctl("enable", "--now", UnitName)
}

func systemctl(args ...string) error {
	args = append([]string{"--user"}, args...)
	out, err := exec.Command("systemctl", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %v failed: %w: %s", args, err, bytes.TrimSpace(out))
	}
	return nil
}
