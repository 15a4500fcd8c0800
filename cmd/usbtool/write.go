package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ardnew/usbhost/pkg"
)

func newWriteCmd() *cobra.Command {
	var (
		timeout   time.Duration
		offset    uint64
		blockSize uint32
		inPath    string
	)

	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write blocks to the first enumerated Mass Storage device from a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if inPath == "" {
				return fmt.Errorf("usbtool: --in is required")
			}

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

			effectiveBlockSize := blockSize
			if effectiveBlockSize == 0 {
				info, err := block.DeviceInfo(ctx)
				if err != nil {
					return fmt.Errorf("usbtool: probing block size: %w", err)
				}
				effectiveBlockSize = info.BlockSize
			}

			data, err := os.ReadFile(inPath)
			if err != nil {
				return fmt.Errorf("usbtool: reading input file: %w", err)
			}
			if uint32(len(data))%effectiveBlockSize != 0 {
				return fmt.Errorf("usbtool: input length %d is not a multiple of block size %d", len(data), effectiveBlockSize)
			}
			count := uint32(len(data)) / effectiveBlockSize

			if err := block.WriteBlocks(ctx, offset, count, effectiveBlockSize, data); err != nil {
				return fmt.Errorf("usbtool: writing blocks: %w", err)
			}
			pkg.LogInfo(componentTool, "write complete", "bytes", len(data), "blocks", count)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "how long to wait for enumeration")
	cmd.Flags().Uint64Var(&offset, "offset", 0, "starting logical block address")
	cmd.Flags().Uint32Var(&blockSize, "block-size", 0, "block size in bytes (0 probes READ CAPACITY)")
	cmd.Flags().StringVar(&inPath, "in", "", "input file to write (required)")
	return cmd
}
