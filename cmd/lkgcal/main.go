package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lookingglasspt/lkgcal/pkg/bridge"
	"github.com/lookingglasspt/lkgcal/pkg/client"
	"github.com/lookingglasspt/lkgcal/pkg/config"
	"github.com/lookingglasspt/lkgcal/pkg/holoplay"
	"github.com/lookingglasspt/lkgcal/pkg/invoke"
	"github.com/lookingglasspt/lkgcal/pkg/jshost"
	"github.com/lookingglasspt/lkgcal/pkg/nodebridge"
)

var (
	logLevel       = "info"
	unixSocketPath = filepath.Join(os.TempDir(), "lkgcal.sock")
	configPath     = config.DefaultPath()

	sourceOverride     string
	modulesDirOverride string
	timeoutOverride    time.Duration
)

var (
	gBasic        = "Basic:"
	gDaemon       = "Daemon:"
	commandGroups = []string{
		gBasic,
		gDaemon,
	}
	// extraCommands are registered by platform specific files.
	extraCommands []func() *cobra.Command
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	// stdout carries calibration JSON only.
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	var (
		rejection *jshost.RejectionError
		load      *holoplay.LoadError
		alert     *nodebridge.AlertError
	)
	switch {
	case errors.Is(err, client.ErrDaemonNotRunning):
		fmt.Fprintln(os.Stderr, "Is the daemon running? Start it with 'lkgcal daemon'.")
	case errors.Is(err, client.ErrPermissionDenied):
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or restart the daemon with '--always-allow-non-root-access'")
	case errors.As(err, &load):
		fmt.Fprintf(os.Stderr, "Is %s installed under --modules-dir?\n", load.Module)
	case errors.As(err, &rejection):
		if rejection.Stack != "" {
			logrus.Debug(rejection.Stack)
		}
		fmt.Fprintln(os.Stderr, "The calibration library could not read a calibration. Is a Looking Glass connected and HoloPlay Service running?")
	case errors.As(err, &alert), errors.Is(err, bridge.ErrNoDevices):
		fmt.Fprintln(os.Stderr, "Connect a Looking Glass display and try again.")
	case invoke.ExitCode(err) == invoke.ExitTimeout:
		fmt.Fprintln(os.Stderr, "Timed out. Raise --timeout or check that the calibration source is responding.")
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	cmd := NewCommand()
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		handleCmdError(err)
	}

	// Exit explicitly: a hosted library may leave timers or sockets behind.
	os.Exit(invoke.ExitCode(err))
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lkgcal",
		Short: "lkgcal prints the calibration of a Looking Glass display",
		Long: `lkgcal prints the calibration of a Looking Glass display as JSON.

Without a subcommand it behaves like 'lkgcal print'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPrint(cmd)
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", config.DefaultPath(), "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", filepath.Join(os.TempDir(), "lkgcal.sock"), "lkgcal daemon unix socket path")
	globalFlags.StringVar(&sourceOverride, "source", "", "calibration source (script, service, usb, command)")
	globalFlags.StringVar(&modulesDirOverride, "modules-dir", "", "node_modules directory holding holoplay and three")
	globalFlags.DurationVar(&timeoutOverride, "timeout", 0, "timeout for one calibration read")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewPrintCommand(),
		NewInspectCommand(),
		NewDevicesCommand(),
		NewConfigCommand(),
		NewDaemonCommand(),
		NewStatusCommand(),
		NewEventsCommand(),
		NewVersionCommand(),
	)
	for _, newCmd := range extraCommands {
		cmd.AddCommand(newCmd())
	}

	return cmd
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	conf, err := config.NewFile(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("source") {
		s := config.Source(sourceOverride)
		if !s.Valid() {
			return nil, fmt.Errorf("unknown source %q", sourceOverride)
		}
		conf.SetSource(s)
	}
	if flags.Changed("modules-dir") {
		conf.SetModulesDir(modulesDirOverride)
	}
	if flags.Changed("timeout") {
		conf.SetTimeout(timeoutOverride)
	}

	logrus.WithFields(conf.LogrusFields()).Debug("config loaded")
	return conf, nil
}
