package msc

// USB Mass Storage class/subclass/protocol codes, as reported in the
// interface descriptor an identifier walks to find a BOT/SCSI interface.
const (
	ClassMSC         = 0x08 // Mass Storage Class
	SubclassSCSI     = 0x06 // SCSI Transparent Command Set
	ProtocolBulkOnly = 0x50 // Bulk-Only Transport (BOT)
)

// Bulk-Only Transport class-specific control requests.
const (
	RequestMassStorageReset = 0xFF // Reset the MSC device
	RequestGetMaxLUN        = 0xFE // Get maximum Logical Unit Number
)

// Command Block Wrapper (CBW) constants.
const (
	cbwSignature = 0x43425355 // "USBC"
	cbwSize      = 31

	cbwFlagDataOut = 0x00
	cbwFlagDataIn  = 0x80
)

// Command Status Wrapper (CSW) constants.
const (
	cswSignature = 0x53425355 // "USBS"
	cswSize      = 13

	cswStatusGood       = 0x00
	cswStatusFailed     = 0x01
	cswStatusPhaseError = 0x02
)

// MaxCDBLength is the widest CDB the CBWCB field can carry (16-byte SCSI
// CDBs, e.g. READ(16)/WRITE(16)).
const MaxCDBLength = 16
