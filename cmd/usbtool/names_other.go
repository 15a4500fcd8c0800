//go:build !linux

package main

// lookupNames has no local USB ID database to fall back to outside
// Linux, where /usr/share/hwdata/usb.ids and its siblings don't exist.
func lookupNames(vid, pid uint16) (vendor, product string) {
	return "", ""
}
