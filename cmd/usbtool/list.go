package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ardnew/usbhost/pkg"
)

func newListCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List devices the selected HAL enumerates within a time window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			bus, stop, err := openBus(ctx)
			if err != nil {
				return err
			}
			defer stop()

			devices := waitForDevices(ctx, bus, timeout)
			if len(devices) == 0 {
				fmt.Println("no devices enumerated")
				return nil
			}

			for _, dev := range devices {
				manufacturer := dev.String(dev.Descriptor().ManufacturerIndex)
				product := dev.String(dev.Descriptor().ProductIndex)
				if manufacturer == "" || product == "" {
					fallbackVendor, fallbackProduct := lookupNames(dev.VendorID(), dev.ProductID())
					if manufacturer == "" {
						manufacturer = fallbackVendor
					}
					if product == "" {
						product = fallbackProduct
					}
				}
				fmt.Printf("addr=%d vid=%04x pid=%04x class=%02x speed=%s manufacturer=%q product=%q\n",
					dev.Address(), dev.VendorID(), dev.ProductID(), dev.DeviceClass(),
					speedName(dev.Speed()), manufacturer, product)
			}
			pkg.LogInfo(componentTool, "list complete", "count", len(devices))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "how long to wait for enumeration")
	return cmd
}
