// Command usbtool drives the host stack against either the in-process
// fake HAL or a real controller (usbfs on Linux, libusb everywhere
// gousb supports), lists enumerated devices, and exercises a Mass
// Storage Class device's SCSI block commands end to end.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
