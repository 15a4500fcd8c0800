package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print SCSI INQUIRY and READ CAPACITY info for the first enumerated Mass Storage device",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			bus, stop, err := openBus(ctx)
			if err != nil {
				return err
			}
			defer stop()

			dev, err := waitForFirstDevice(ctx, bus, timeout)
			if err != nil {
				return err
			}

			block, closeFn, err := openBlockDevice(ctx, bus, dev)
			if err != nil {
				return err
			}
			defer closeFn()

			info, err := block.DeviceInfo(ctx)
			if err != nil {
				return fmt.Errorf("usbtool: reading device info: %w", err)
			}

			fmt.Printf("vendor=%q product=%q revision=%q removable=%t blocks=%d block_size=%d capacity_bytes=%d\n",
				info.VendorID, info.ProductID, info.Revision, info.Removable,
				info.BlockCount, info.BlockSize, info.BlockCount*uint64(info.BlockSize))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "how long to wait for enumeration")
	return cmd
}
