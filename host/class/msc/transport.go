package msc

import (
	"context"
	"sync"

	"github.com/ardnew/usbhost/host"
	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/pkg"
)

// Direction names a Bulk-Only Transport command's data phase.
type Direction int

// Data phase directions.
const (
	DirNone Direction = iota
	DirIn             // device to host
	DirOut            // host to device
)

// CommandBlock is a SCSI CDB to execute over Bulk-Only Transport. CDB must
// be 1..MaxCDBLength bytes; it is zero-padded to 16 bytes on the wire.
type CommandBlock struct {
	LUN uint8
	CDB []byte
}

// Transport drives the CBW -> data -> CSW sequence on a pair of bulk
// endpoint handles. One Transport serves all LUNs exposed by a single
// BOT interface; the tag is incremented per command so a CSW mismatch
// can be detected, though this transport issues one command at a time.
type Transport struct {
	epOut *host.EndpointHandle
	epIn  *host.EndpointHandle

	mu  sync.Mutex
	tag uint32
}

// NewTransport builds a Transport over the given bulk OUT/IN endpoint
// handles, which must already be open on the target device's BOT
// interface.
func NewTransport(epOut, epIn *host.EndpointHandle) *Transport {
	return &Transport{epOut: epOut, epIn: epIn}
}

// Execute runs one Bulk-Only Transport command: CBW out, optional data
// phase in the given direction, CSW in. It returns the number of bytes
// transferred in the data phase.
//
// A Stall during the data phase is recovered with ClearHalt on the bulk-IN
// endpoint and is not itself returned; the command still proceeds to read
// the CSW, whose status carries the real outcome. pkg.ErrCommandFailed is
// returned for CSW status 1 (the caller should issue REQUEST SENSE);
// pkg.ErrProtocol for status 2 or an unrecognized status;
// pkg.ErrShortCSW if fewer than 13 bytes came back or the CSW signature
// does not match.
func (t *Transport) Execute(ctx context.Context, cb CommandBlock, dir Direction, data []byte) (int, error) {
	t.mu.Lock()
	tag := t.tag
	t.tag += 2
	t.mu.Unlock()

	cbw := commandBlockWrapper{
		signature: cbwSignature,
		tag:       tag,
		lun:       cb.LUN,
		cbLength:  uint8(len(cb.CDB)),
	}
	copy(cbw.cb[:], cb.CDB)
	if dir == DirIn {
		cbw.flags = cbwFlagDataIn
		cbw.dataTransferLength = uint32(len(data))
	} else if dir == DirOut {
		cbw.flags = cbwFlagDataOut
		cbw.dataTransferLength = uint32(len(data))
	}

	var wire [cbwSize]byte
	cbw.marshalTo(wire[:])
	if _, err := t.epOut.BulkTransfer(ctx, wire[:]); err != nil {
		return 0, err
	}

	var n int
	var dataErr error
	switch dir {
	case DirIn:
		n, dataErr = t.epIn.BulkTransfer(ctx, data)
	case DirOut:
		n, dataErr = t.epOut.BulkTransfer(ctx, data)
	}
	if dataErr == pkg.ErrStall {
		// Not fatal: clear the halt and continue to the CSW, per the
		// Bulk-Only Transport error recovery procedure.
		if err := t.epIn.ClearHalt(ctx); err != nil {
			return n, err
		}
	} else if dataErr != nil {
		return n, dataErr
	}

	var cswBuf [cswSize]byte
	cswN, err := t.epIn.BulkTransfer(ctx, cswBuf[:])
	if err != nil {
		return n, err
	}

	var csw commandStatusWrapper
	if cswN < cswSize || !parseCSW(cswBuf[:cswN], &csw) {
		return n, pkg.ErrShortCSW
	}

	if csw.tag != tag {
		return n, pkg.ErrProtocol
	}

	switch csw.status {
	case cswStatusGood:
		if csw.dataResidue > 0 {
			pkg.LogWarn(pkg.ComponentMSC, "command succeeded with residue", "tag", tag, "residue", csw.dataResidue)
		}
		return n, nil
	case cswStatusFailed:
		return n, pkg.ErrCommandFailed
	default:
		return n, pkg.ErrProtocol
	}
}

// Reset issues a Bulk-Only Mass Storage Reset class request on interface,
// followed by a ClearHalt on both bulk endpoints, the recommended recovery
// after a ProtocolError or a short/malformed CSW.
func (t *Transport) Reset(ctx context.Context, dev *host.UsbDevice, iface uint16) error {
	setup := hal.SetupPacket{
		RequestType: host.RequestTypeOut | host.RequestTypeClass | host.RequestTypeInterface,
		Request:     RequestMassStorageReset,
		Index:       iface,
	}
	if _, err := dev.ControlTransfer(ctx, &setup, nil); err != nil {
		return err
	}
	if err := t.epOut.ClearHalt(ctx); err != nil {
		return err
	}
	return t.epIn.ClearHalt(ctx)
}
