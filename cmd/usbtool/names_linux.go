//go:build linux

package main

import "github.com/ardnew/usbhost/pkg/linux/usbid"

// usbIDs backs the vendor/product name fallback list uses when a
// device's own string descriptors are unavailable (not configured, or
// the device never reads them back).
var usbIDs = usbid.New()

func init() {
	usbIDs.Load()
}

func lookupNames(vid, pid uint16) (vendor, product string) {
	return usbIDs.LookupVendor(vid), usbIDs.LookupProduct(vid, pid)
}
