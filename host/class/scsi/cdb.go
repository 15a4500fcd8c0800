package scsi

import "encoding/binary"

// inquiryCDB builds a standard 6-byte INQUIRY command.
func inquiryCDB(allocLength uint8) []byte {
	return []byte{opInquiry, 0, 0, 0, allocLength, 0}
}

// testUnitReadyCDB builds a 6-byte TEST UNIT READY command.
func testUnitReadyCDB() []byte {
	return []byte{opTestUnitReady, 0, 0, 0, 0, 0}
}

// requestSenseCDB builds a 6-byte REQUEST SENSE command.
func requestSenseCDB(allocLength uint8) []byte {
	return []byte{opRequestSense, 0, 0, 0, allocLength, 0}
}

// readCapacity10CDB builds the 10-byte READ CAPACITY (10) command.
func readCapacity10CDB() []byte {
	return []byte{opReadCapacity10, 0, 0, 0, 0, 0, 0, 0, 0, 0}
}

// readCapacity16CDB builds the 16-byte SERVICE ACTION IN (16) / READ
// CAPACITY (16) command.
func readCapacity16CDB() []byte {
	cdb := make([]byte, 16)
	cdb[0] = opServiceActionIn16
	cdb[1] = serviceActionReadCapacity16
	binary.BigEndian.PutUint32(cdb[10:14], readCapacity16Size)
	return cdb
}

// read10CDB builds a 10-byte READ (10) command.
func read10CDB(lba uint32, count uint16) []byte {
	cdb := make([]byte, 10)
	cdb[0] = opRead10
	binary.BigEndian.PutUint32(cdb[2:6], lba)
	binary.BigEndian.PutUint16(cdb[7:9], count)
	return cdb
}

// write10CDB builds a 10-byte WRITE (10) command.
func write10CDB(lba uint32, count uint16) []byte {
	cdb := make([]byte, 10)
	cdb[0] = opWrite10
	binary.BigEndian.PutUint32(cdb[2:6], lba)
	binary.BigEndian.PutUint16(cdb[7:9], count)
	return cdb
}

// read16CDB builds a 16-byte READ (16) command.
func read16CDB(lba uint64, count uint32) []byte {
	cdb := make([]byte, 16)
	cdb[0] = opRead16
	binary.BigEndian.PutUint64(cdb[2:10], lba)
	binary.BigEndian.PutUint32(cdb[10:14], count)
	return cdb
}

// write16CDB builds a 16-byte WRITE (16) command.
func write16CDB(lba uint64, count uint32) []byte {
	cdb := make([]byte, 16)
	cdb[0] = opWrite16
	binary.BigEndian.PutUint64(cdb[2:10], lba)
	binary.BigEndian.PutUint32(cdb[10:14], count)
	return cdb
}

// reportSupportedOperationCodesCDB builds the 12-byte MAINTENANCE IN / REPORT
// SUPPORTED OPERATION CODES command, restricted to a single opcode via the
// "one command" reporting option.
func reportSupportedOperationCodesCDB(opcode uint8, allocLength uint32) []byte {
	cdb := make([]byte, 12)
	cdb[0] = opMaintenanceIn
	cdb[1] = serviceActionReportSupportedOpCodes
	cdb[2] = reportingOptionOneCommand
	cdb[3] = opcode
	binary.BigEndian.PutUint32(cdb[6:10], allocLength)
	return cdb
}

// inquiryResponse is the parsed standard INQUIRY response.
type inquiryResponse struct {
	deviceType uint8
	removable  bool
	vendorID   string
	productID  string
	revision   string
}

func parseInquiryResponse(data []byte, out *inquiryResponse) bool {
	if len(data) < inquiryResponseSize {
		return false
	}
	out.deviceType = data[0] & 0x1F
	out.removable = data[1]&0x80 != 0
	out.vendorID = trimPadding(data[8:16])
	out.productID = trimPadding(data[16:32])
	out.revision = trimPadding(data[32:36])
	return true
}

// readCapacity10Response is the parsed READ CAPACITY (10) response.
type readCapacity10Response struct {
	lastLBA     uint32
	blockLength uint32
}

func parseReadCapacity10Response(data []byte, out *readCapacity10Response) bool {
	if len(data) < readCapacity10Size {
		return false
	}
	out.lastLBA = binary.BigEndian.Uint32(data[0:4])
	out.blockLength = binary.BigEndian.Uint32(data[4:8])
	return true
}

// readCapacity16Response is the parsed READ CAPACITY (16) response.
type readCapacity16Response struct {
	lastLBA     uint64
	blockLength uint32
}

func parseReadCapacity16Response(data []byte, out *readCapacity16Response) bool {
	if len(data) < readCapacity16Size {
		return false
	}
	out.lastLBA = binary.BigEndian.Uint64(data[0:8])
	out.blockLength = binary.BigEndian.Uint32(data[8:12])
	return true
}

// requestSenseResponse is the parsed fixed-format REQUEST SENSE response.
type requestSenseResponse struct {
	senseKey uint8
	asc      uint8
	ascq     uint8
}

func parseRequestSenseResponse(data []byte, out *requestSenseResponse) bool {
	if len(data) < 14 {
		return false
	}
	out.senseKey = data[2] & 0x0F
	out.asc = data[12]
	out.ascq = data[13]
	return true
}

// reportSupportedOperationCodesResponse is the parsed "one command" format
// response to REPORT SUPPORTED OPERATION CODES.
type reportSupportedOperationCodesResponse struct {
	supported bool
	cdbLength uint16
}

func parseReportSupportedOperationCodesResponse(data []byte, out *reportSupportedOperationCodesResponse) bool {
	if len(data) < reportSupportedOpCodesOneCommandSize {
		return false
	}
	support := data[1] & 0x07
	out.supported = support == 0x03 || support == 0x05
	out.cdbLength = binary.BigEndian.Uint16(data[2:4])
	return true
}

func trimPadding(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == ' ' || b[end-1] == 0) {
		end--
	}
	return string(b[:end])
}
