package scsi

import (
	"context"
	"errors"

	"github.com/ardnew/usbhost/host/class/msc"
	"github.com/ardnew/usbhost/pkg"
)

// Info describes a block device's identity and geometry, as reported by
// INQUIRY and READ CAPACITY.
type Info struct {
	VendorID    string
	ProductID   string
	Revision    string
	Removable   bool
	BlockCount  uint64
	BlockSize   uint32
}

// BlockDevice is a SCSI block device facade over a Bulk-Only Transport
// session to a single LUN.
type BlockDevice struct {
	transport *msc.Transport
	lun       uint8
}

// New builds a BlockDevice over transport, addressing the given LUN.
func New(transport *msc.Transport, lun uint8) *BlockDevice {
	return &BlockDevice{transport: transport, lun: lun}
}

// DeviceInfo issues INQUIRY and READ CAPACITY, falling back from the
// 10-byte to the 16-byte variant when the 10-byte response's LBA field is
// saturated (0xFFFFFFFF).
func (b *BlockDevice) DeviceInfo(ctx context.Context) (Info, error) {
	var inqBuf [inquiryResponseSize]byte
	if _, err := b.execute(ctx, "inquiry", inquiryCDB(inquiryResponseSize), msc.DirIn, inqBuf[:]); err != nil {
		return Info{}, err
	}
	var inq inquiryResponse
	if !parseInquiryResponse(inqBuf[:], &inq) {
		return Info{}, pkg.ErrDescriptorTooShort
	}

	info := Info{
		VendorID:  inq.vendorID,
		ProductID: inq.productID,
		Revision:  inq.revision,
		Removable: inq.removable,
	}

	var cap10 [readCapacity10Size]byte
	if _, err := b.execute(ctx, "read capacity(10)", readCapacity10CDB(), msc.DirIn, cap10[:]); err != nil {
		return Info{}, err
	}
	var r10 readCapacity10Response
	if !parseReadCapacity10Response(cap10[:], &r10) {
		return Info{}, pkg.ErrDescriptorTooShort
	}

	if r10.lastLBA != 0xFFFFFFFF {
		info.BlockCount = uint64(r10.lastLBA) + 1
		info.BlockSize = r10.blockLength
		if info.BlockSize == 0 {
			info.BlockSize = DefaultBlockSize
		}
		return info, nil
	}

	var cap16 [readCapacity16Size]byte
	if _, err := b.execute(ctx, "read capacity(16)", readCapacity16CDB(), msc.DirIn, cap16[:]); err != nil {
		return Info{}, err
	}
	var r16 readCapacity16Response
	if !parseReadCapacity16Response(cap16[:], &r16) {
		return Info{}, pkg.ErrDescriptorTooShort
	}
	info.BlockCount = r16.lastLBA + 1
	info.BlockSize = r16.blockLength
	if info.BlockSize == 0 {
		info.BlockSize = DefaultBlockSize
	}
	return info, nil
}

// TestUnitReady issues TEST UNIT READY, returning nil if the device reports
// ready and an *Error otherwise. When the command failed and REQUEST SENSE
// succeeded, Error.Sense holds the decoded condition; otherwise the *Error
// wraps the transport error (pkg.ErrCommandFailed if sense was unreadable).
func (b *BlockDevice) TestUnitReady(ctx context.Context) error {
	_, err := b.execute(ctx, "test unit ready", testUnitReadyCDB(), msc.DirNone, nil)
	return err
}

// SupportedOperationCode reports whether the device claims support for the
// given SCSI operation code, via REPORT SUPPORTED OPERATION CODES in its
// "one command" form.
func (b *BlockDevice) SupportedOperationCode(ctx context.Context, opcode uint8) (bool, error) {
	var buf [reportSupportedOpCodesOneCommandSize]byte
	cdb := reportSupportedOperationCodesCDB(opcode, uint32(len(buf)))
	if _, err := b.execute(ctx, "report supported operation codes", cdb, msc.DirIn, buf[:]); err != nil {
		return false, err
	}
	var resp reportSupportedOperationCodesResponse
	if !parseReportSupportedOperationCodesResponse(buf[:], &resp) {
		return false, pkg.ErrDescriptorTooShort
	}
	return resp.supported, nil
}

// use10ByteCDB reports whether the 10-byte READ/WRITE variant can address
// the given range: offset+count must fit in 32 bits and count in 16.
func use10ByteCDB(offset uint64, count uint32) bool {
	return offset+uint64(count) < (1<<32) && count < (1<<16)
}

// ReadBlocks reads count blocks starting at offset into buf, selecting
// READ (10) or READ (16) per use10ByteCDB. buf must be at least
// count*blockSize bytes.
func (b *BlockDevice) ReadBlocks(ctx context.Context, offset uint64, count uint32, blockSize uint32, buf []byte) error {
	if uint64(len(buf)) < uint64(count)*uint64(blockSize) {
		return pkg.ErrBufferTooSmall
	}
	n := int(count) * int(blockSize)
	if use10ByteCDB(offset, count) {
		_, err := b.execute(ctx, "read(10)", read10CDB(uint32(offset), uint16(count)), msc.DirIn, buf[:n])
		return err
	}
	_, err := b.execute(ctx, "read(16)", read16CDB(offset, count), msc.DirIn, buf[:n])
	return err
}

// WriteBlocks writes count blocks from buf starting at offset, selecting
// WRITE (10) or WRITE (16) per use10ByteCDB.
func (b *BlockDevice) WriteBlocks(ctx context.Context, offset uint64, count uint32, blockSize uint32, buf []byte) error {
	n := int(count) * int(blockSize)
	if len(buf) < n {
		return pkg.ErrBufferTooSmall
	}
	if use10ByteCDB(offset, count) {
		_, err := b.execute(ctx, "write(10)", write10CDB(uint32(offset), uint16(count)), msc.DirOut, buf[:n])
		return err
	}
	_, err := b.execute(ctx, "write(16)", write16CDB(offset, count), msc.DirOut, buf[:n])
	return err
}

// execute runs cb through the transport, decoding sense on CommandFailed.
func (b *BlockDevice) execute(ctx context.Context, op string, cdb []byte, dir msc.Direction, data []byte) (int, error) {
	n, err := b.transport.Execute(ctx, msc.CommandBlock{LUN: b.lun, CDB: cdb}, dir, data)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, pkg.ErrCommandFailed) {
		return n, &Error{Op: op, Wrapped: err}
	}

	sense, senseErr := b.requestSense(ctx)
	if senseErr != nil {
		return n, &Error{Op: op, Wrapped: err}
	}
	pkg.LogWarn(pkg.ComponentSCSI, "command failed", "op", op, "sense", sense.Error())
	return n, &Error{Op: op, Sense: sense}
}

func (b *BlockDevice) requestSense(ctx context.Context) (*SenseCondition, error) {
	var buf [requestSenseResponseSize]byte
	n, err := b.transport.Execute(ctx, msc.CommandBlock{LUN: b.lun, CDB: requestSenseCDB(requestSenseResponseSize)}, msc.DirIn, buf[:])
	if err != nil {
		return nil, err
	}
	var resp requestSenseResponse
	if n < 14 || !parseRequestSenseResponse(buf[:n], &resp) {
		return nil, pkg.ErrDescriptorTooShort
	}
	return &SenseCondition{Key: resp.senseKey, ASC: resp.asc, ASCQ: resp.ascq, Kind: decodeSense(resp.asc, resp.ascq)}, nil
}
