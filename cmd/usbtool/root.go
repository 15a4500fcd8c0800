package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/host/hal/fake"
	"github.com/ardnew/usbhost/host/hal/libusb"
	"github.com/ardnew/usbhost/pkg"
	"github.com/ardnew/usbhost/pkg/prof"
)

const componentTool pkg.Component = "usbtool"

var (
	halName    string
	verbose    bool
	jsonLog    bool
	pollMillis int
	cpuProfile string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "usbtool",
		Short: "Inspect and exercise USB devices through the host stack",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				pkg.SetLogLevel(slog.LevelDebug)
			}
			if jsonLog {
				pkg.SetLogFormat(pkg.LogFormatJSON)
			}
			if cpuProfile != "" {
				if err := prof.StartCPU(cpuProfile); err != nil {
					pkg.LogWarn(componentTool, "failed to start CPU profile", "path", cpuProfile, "error", err)
				}
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cpuProfile != "" {
				prof.StopCPU()
			}
		},
	}

	root.PersistentFlags().StringVar(&halName, "hal", "fake", `HAL backend: "fake", "libusb", or "linux"`)
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&jsonLog, "json", false, "emit logs as JSON")
	root.PersistentFlags().IntVar(&pollMillis, "poll-ms", 500, "libusb hotplug poll interval, in milliseconds")
	root.PersistentFlags().StringVar(&cpuProfile, "cpuprofile", "", "write a CPU profile to this path (requires building with -tags profile)")

	root.AddCommand(newListCmd())
	root.AddCommand(newInfoCmd())
	root.AddCommand(newReadCmd())
	root.AddCommand(newWriteCmd())
	return root
}

// newController builds the backend selected by --hal, starting it if
// the backend has a background loop to launch (host/hal/fake has none;
// its Connect only queues a status that DeviceDetect forwards).
func newController(ctx context.Context) (hal.Controller, error) {
	switch halName {
	case "fake":
		return fake.New(8), nil
	case "libusb":
		ctrl := libusb.New(time.Duration(pollMillis)*time.Millisecond, 8)
		if err := ctrl.Start(ctx); err != nil {
			return nil, fmt.Errorf("usbtool: starting libusb controller: %w", err)
		}
		return ctrl, nil
	case "linux":
		return newLinuxController(ctx)
	default:
		return nil, fmt.Errorf("usbtool: unknown --hal %q (want \"fake\", \"libusb\", or \"linux\")", halName)
	}
}
