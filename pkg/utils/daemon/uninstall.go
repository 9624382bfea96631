package daemon

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Uninstall stops the daemon and removes its unit.
func Uninstall() error {
	unitPath, err := UnitPath()
	if err != nil {
		return err
	}

	logrus.Infof("stopping lkgcal daemon")
	if err := systemctl("disable", "--now", UnitName); err != nil {
		logrus.Warnf("%v", err)
	}

	logrus.Infof("removing %s", unitPath)
	if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", unitPath, err)
	}

	return systemctl("daemon-reload")
}
