// Package msc implements the USB Mass Storage Bulk-Only Transport (BOT)
// protocol from the host side: one Transport per device LUN set, built on
// a pair of bulk endpoint handles from the host package.
//
// Execute marshals a CommandBlockWrapper, runs the optional data phase,
// and parses the CommandStatusWrapper, mapping CSW status to an error per
// the Bulk-Only Transport specification. A Stall during the data phase is
// recovered with ClearHalt rather than failing the command outright; only
// a Stall that survives recovery, or a malformed CSW, is fatal.
//
// Wire layout is grounded in the device-side bot.go in this module's
// history: this package is the dual, marshaling a CBW and parsing a CSW
// instead of the other way around.
package msc
