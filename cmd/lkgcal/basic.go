package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lookingglasspt/lkgcal/pkg/calibration"
	"github.com/lookingglasspt/lkgcal/pkg/config"
	"github.com/lookingglasspt/lkgcal/pkg/invoke"
	"github.com/lookingglasspt/lkgcal/pkg/jshost"
	"github.com/lookingglasspt/lkgcal/pkg/source"
	"github.com/lookingglasspt/lkgcal/pkg/usbcal"
	"github.com/lookingglasspt/lkgcal/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewPrintCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "print",
		Short:   "Print calibration as one line of JSON",
		GroupID: gBasic,
		Long: `Print calibration as one line of JSON.

The JSON is passed through exactly as the calibration source produced it.
Alerts raised by the source are written to stderr prefixed with "alert: ".

Exit codes: 0 success, 1 setup or load failure, 2 calibration rejected,
3 timeout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPrint(cmd)
		},
	}
}

// withTimeout bounds ctx by the configured timeout, if any.
func withTimeout(ctx context.Context, conf config.Config) (context.Context, context.CancelFunc) {
	if t := conf.Timeout(); t > 0 {
		return context.WithTimeout(ctx, t)
	}
	return context.WithCancel(ctx)
}

// openLibrary opens the configured source with alerts going to the
// command's stderr.
func openLibrary(ctx context.Context, cmd *cobra.Command, conf config.Config) (*source.Opened, error) {
	return source.Open(ctx, conf, jshost.NewWriterAlerter(cmd.ErrOrStderr()))
}

func runPrint(cmd *cobra.Command) error {
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(cmd.Context(), conf)
	defer cancel()

	opened, err := openLibrary(ctx, cmd, conf)
	if err != nil {
		return err
	}
	defer opened.Close()

	return invoke.Run(ctx, opened.Library, cmd.OutOrStdout())
}

func NewInspectCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "inspect",
		Short:   "Show calibration values and the values derived for rendering",
		GroupID: gBasic,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(cmd.Context(), conf)
			defer cancel()

			opened, err := openLibrary(ctx, cmd, conf)
			if err != nil {
				return err
			}
			defer opened.Close()

			var buf bytes.Buffer
			if err := invoke.Run(ctx, opened.Library, &buf); err != nil {
				return err
			}
			cal, err := calibration.Parse(buf.Bytes())
			if err != nil {
				return err
			}

			if asJSON {
				b, err := jsonIndent(cal.ForShader())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return err
			}

			printCalibration(cmd, conf.Source(), cal)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the shader values as JSON")

	return cmd
}

func printCalibration(cmd *cobra.Command, src config.Source, cal *calibration.Calibration) {
	cmd.Println(bold("Calibration") + fmt.Sprintf(" (source: %s):", src))
	rows := []struct {
		name  string
		value float32
	}{
		{"pitch", cal.Pitch},
		{"slope", cal.Slope},
		{"center", cal.Center},
		{"viewCone", cal.ViewCone},
		{"invView", cal.InvView},
		{"verticalAngle", cal.VerticalAngle},
		{"DPI", cal.DPI},
		{"screenW", cal.ScreenW},
		{"screenH", cal.ScreenH},
	}
	for _, r := range rows {
		cmd.Printf("  %-14s %s\n", r.name+":", bold("%g", r.value))
	}
	cmd.Printf("  %-14s %s\n", "flipImageX:", bool2Text(cal.FlipImageX == 1))
	cmd.Printf("  %-14s %s\n", "flipImageY:", bool2Text(cal.FlipImageY == 1))
	cmd.Printf("  %-14s %s\n", "flipSubp:", bool2Text(cal.FlipSubp == 1))

	cmd.Println()
	fs := cal.ForShader()
	cmd.Println(bold("Shader values:"))
	cmd.Printf("  %-14s %s\n", "pitch:", bold("%g", fs.Pitch))
	cmd.Printf("  %-14s %s\n", "tilt:", bold("%g", fs.Tilt))
	cmd.Printf("  %-14s %s\n", "center:", bold("%g", fs.Center))
	cmd.Printf("  %-14s %s\n", "subp:", bold("%g", fs.Subp))
	cmd.Printf("  %-14s %s\n", "resolution:", bold("%gx%g", fs.Resolution[0], fs.Resolution[1]))
}

func NewDevicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "devices",
		Short:   "List Looking Glass displays attached over USB",
		GroupID: gBasic,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devs, err := usbcal.ListDevices()
			if err != nil {
				return err
			}
			if len(devs) == 0 {
				logrus.Info("no Looking Glass displays found")
				return nil
			}
			for _, d := range devs {
				cmd.Printf("bus %03d device %03d: %s\n", d.Bus, d.Address,
					color.New(color.Bold).Sprintf("%04x:%04x", d.Vendor, d.Product))
			}
			return nil
		},
	}
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func jsonIndent(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
