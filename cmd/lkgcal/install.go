//go:build linux

package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	daemonutils "github.com/lookingglasspt/lkgcal/pkg/utils/daemon"
)

var gInstallation = "Installation:"

func init() {
	// Only systemd systems have install and uninstall commands.
	commandGroups = append(commandGroups, gInstallation)
	extraCommands = append(extraCommands, NewInstallCommand, NewUninstallCommand)
}

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "install",
		Short:   "Install the lkgcal daemon as a systemd user service",
		GroupID: gInstallation,
		Long: `Install the lkgcal daemon as a systemd user service.

This makes the daemon run in the background and start when you log in. The service uses the current --config and --daemon-socket values.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := daemonutils.Install(configPath, unixSocketPath); err != nil {
				return err
			}
			logrus.Infof("installation succeeded")
			return nil
		},
	}
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall",
		Short:   "Stop and remove the lkgcal systemd user service",
		GroupID: gInstallation,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := daemonutils.Uninstall(); err != nil {
				return err
			}
			logrus.Infof("uninstallation succeeded")
			return nil
		},
	}
}
