package scsi

// SCSI operation codes used by the block device facade.
const (
	opTestUnitReady     = 0x00
	opRequestSense      = 0x03
	opInquiry           = 0x12
	opReadCapacity10    = 0x25
	opRead10            = 0x28
	opWrite10           = 0x2A
	opRead16            = 0x88
	opWrite16           = 0x8A
	opServiceActionIn16 = 0x9E
	opMaintenanceIn     = 0xA3
)

// Service action for SERVICE ACTION IN (16).
const serviceActionReadCapacity16 = 0x10

// Service action for MAINTENANCE IN, and the "one command" reporting
// option that restricts REPORT SUPPORTED OPERATION CODES to a single
// requested opcode.
const (
	serviceActionReportSupportedOpCodes = 0x0C
	reportingOptionOneCommand           = 0x01
)

// Response sizes.
const (
	inquiryResponseSize                  = 36
	readCapacity10Size                   = 8
	readCapacity16Size                   = 32
	requestSenseResponseSize             = 18
	reportSupportedOpCodesOneCommandSize = 4
)

// SCSI sense keys (byte 2, low nibble of the fixed-format sense response).
const (
	SenseNoSense        = 0x00
	SenseRecoveredError = 0x01
	SenseNotReady       = 0x02
	SenseMediumError    = 0x03
	SenseHardwareError  = 0x04
	SenseIllegalRequest = 0x05
	SenseUnitAttention  = 0x06
	SenseDataProtect    = 0x07
	SenseBlankCheck     = 0x08
	SenseAbortedCommand = 0x0B
)

// DefaultBlockSize is used when a device reports a zero block size (some
// emulated targets omit it until formatted).
const DefaultBlockSize = 512
