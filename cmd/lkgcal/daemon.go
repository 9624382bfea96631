package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lookingglasspt/lkgcal/pkg/client"
	"github.com/lookingglasspt/lkgcal/pkg/config"
	"github.com/lookingglasspt/lkgcal/pkg/daemon"
	"github.com/lookingglasspt/lkgcal/pkg/version"
)

var (
	// alwaysAllowNonRootAccess indicates whether to always allow non-root users to access the lkgcal daemon.
	alwaysAllowNonRootAccess = false
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "daemon",
		Short:   "Run the lkgcal daemon in the foreground",
		Long:    `Run the lkgcal daemon in the foreground. It keeps the last good calibration and serves it over a unix socket. Send SIGHUP to reload the config file.`,
		GroupID: gDaemon,
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
			}).Info("lkgcal daemon starting")
			return daemon.Run(configPath, unixSocketPath, alwaysAllowNonRootAccess)
		},
	}

	f := cmd.Flags()

	f.BoolVar(&alwaysAllowNonRootAccess, "always-allow-non-root-access", false,
		"Always allow non-root users to access the daemon.")

	return cmd
}

// checkDaemonVersion warns when the daemon was built from another version.
func checkDaemonVersion(cmd *cobra.Command, api *client.Client) {
	daemonVersion, err := api.GetVersion(cmd.Context())
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			logrus.Error("lkgcal daemon is too old to report its version")
		}
		return
	}
	if daemonVersion != version.Version {
		logrus.WithFields(logrus.Fields{
			"clientVersion": version.Version,
			"daemonVersion": daemonVersion,
		}).Warn("Version mismatch between client and daemon. lkgcal may not work as expected.")
	}
}

func NewStatusCommand() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gDaemon,
		Short:   "Get the calibration cached by the daemon",
		Long:    `Get the daemon's cached calibration, recent fetches, alerts and configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api := client.NewClient(unixSocketPath)
			checkDaemonVersion(cmd, api)
			ctx := cmd.Context()

			if refresh {
				if _, err := api.GetCalibration(ctx, true); err != nil {
					return err
				}
			}

			st, err := api.GetStatus(ctx)
			if err != nil {
				return err
			}
			alerts, err := api.GetAlerts(ctx)
			if err != nil {
				return err
			}
			rawConf, err := api.GetConfig(ctx)
			if err != nil {
				return err
			}
			conf := config.NewFileFromConfig(rawConf, "")

			cmd.Println(bold("Calibration:"))
			cmd.Printf("  Source: %s\n", bold("%s", st.Source))
			cmd.Printf("  Available: %s\n", bool2Text(st.Available))
			if st.Available {
				cmd.Printf("  Fetched: %s ago\n", bold("%s", time.Since(st.FetchedAt).Round(time.Second)))
			}
			if st.LastError != "" {
				cmd.Printf("  Last error: %s (%d in a row)\n", st.LastError, st.ConsecutiveFailures)
			}
			if st.Available {
				fs, err := api.GetShader(ctx)
				if err == nil {
					cmd.Printf("  Shader: pitch %s, tilt %s, center %s\n",
						bold("%g", fs.Pitch), bold("%g", fs.Tilt), bold("%g", fs.Center))
				} else {
					logrus.WithError(err).Debug("no shader values")
				}
			}

			if len(alerts) > 0 {
				cmd.Println()
				cmd.Println(bold("Alerts:"))
				for _, a := range alerts {
					cmd.Printf("  %s  %s\n", a.Time.Local().Format(time.Kitchen), a.Message)
				}
			}

			cmd.Println()
			cmd.Println(bold("Configuration:"))
			cmd.Printf("  Source: %s\n", bold("%s", conf.Source()))
			cmd.Printf("  Modules: %s (%s, %s)\n", conf.ModulesDir(), conf.Module(), conf.ThreeModule())
			cmd.Printf("  Service URL: %s\n", conf.ServiceURL())
			cmd.Printf("  Timeout: %s\n", bold("%s", conf.Timeout()))
			cmd.Printf("  Refresh interval: %s\n", bold("%s", conf.RefreshInterval()))
			cmd.Printf("  Allow non-root users to access the daemon: %s\n", bool2Text(conf.AllowNonRootAccess()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "ask the daemon to fetch a new calibration first")

	return cmd
}

func NewEventsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "events",
		GroupID: gDaemon,
		Short:   "Stream daemon events as they happen",
		RunE: func(cmd *cobra.Command, _ []string) error {
			api := client.NewClient(unixSocketPath)
			// Fail fast with a useful error before streaming.
			if _, err := api.GetVersion(cmd.Context()); err != nil {
				return err
			}

			for ev := range api.SubscribeEvents(cmd.Context()) {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ev.Name, ev.Data); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Show or create the config file",
		GroupID: gBasic,
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with every default spelled out",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite it", configPath)
			}
			raw, err := config.NewRawFileConfigFromConfig(config.NewFileFromConfig(nil, ""))
			if err != nil {
				return err
			}
			if err := config.NewFileFromConfig(raw, configPath).Save(); err != nil {
				return err
			}
			logrus.Infof("wrote %s", configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective config, including command line overrides",
			RunE: func(cmd *cobra.Command, _ []string) error {
				conf, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				raw, err := config.NewRawFileConfigFromConfig(conf)
				if err != nil {
					return err
				}
				buf, err := jsonIndent(raw)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(buf))
				return err
			},
		},
		initCmd,
	)

	return cmd
}
