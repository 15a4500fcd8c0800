//go:build !linux

package main

import (
	"context"
	"fmt"

	"github.com/ardnew/usbhost/host/hal"
)

// newLinuxController reports an error outside Linux, where usbfs/sysfs
// don't exist.
func newLinuxController(ctx context.Context) (hal.Controller, error) {
	return nil, fmt.Errorf("usbtool: --hal linux is only available on Linux")
}
