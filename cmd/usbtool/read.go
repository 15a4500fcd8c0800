package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ardnew/usbhost/pkg"
)

func newReadCmd() *cobra.Command {
	var (
		timeout   time.Duration
		offset    uint64
		count     uint32
		blockSize uint32
		outPath   string
	)

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read blocks from the first enumerated Mass Storage device",
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

			effectiveBlockSize := blockSize
			if effectiveBlockSize == 0 {
				info, err := block.DeviceInfo(ctx)
				if err != nil {
					return fmt.Errorf("usbtool: probing block size: %w", err)
				}
				effectiveBlockSize = info.BlockSize
			}

			buf := make([]byte, uint64(count)*uint64(effectiveBlockSize))
			if err := block.ReadBlocks(ctx, offset, count, effectiveBlockSize, buf); err != nil {
				return fmt.Errorf("usbtool: reading blocks: %w", err)
			}

			if outPath == "" || outPath == "-" {
				_, err = os.Stdout.Write(buf)
				return err
			}
			if err := os.WriteFile(outPath, buf, 0o644); err != nil {
				return fmt.Errorf("usbtool: writing output file: %w", err)
			}
			pkg.LogInfo(componentTool, "read complete", "bytes", len(buf), "path", outPath)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "how long to wait for enumeration")
	cmd.Flags().Uint64Var(&offset, "offset", 0, "starting logical block address")
	cmd.Flags().Uint32Var(&count, "count", 1, "number of blocks to read")
	cmd.Flags().Uint32Var(&blockSize, "block-size", 0, "block size in bytes (0 probes READ CAPACITY)")
	cmd.Flags().StringVar(&outPath, "out", "-", "output file, or - for stdout")
	return cmd
}
