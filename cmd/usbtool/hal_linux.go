//go:build linux

package main

import (
	"context"
	"fmt"

	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/host/hal/linux"
)

// newLinuxController builds the native usbfs/sysfs HAL backend, available
// only on Linux.
func newLinuxController(ctx context.Context) (hal.Controller, error) {
	ctrl := linux.New(8)
	if err := ctrl.Start(ctx); err != nil {
		return nil, fmt.Errorf("usbtool: starting linux controller: %w", err)
	}
	return ctrl, nil
}
