package scsi

import "fmt"

// SenseKind classifies a decoded ASC/ASCQ pair into the conditions a
// BlockDevice caller is expected to handle distinctly.
type SenseKind int

// Sense kinds, selected per the Seagate SCSI Commands Reference ASC/ASCQ
// table; anything not in senseTable decodes to VendorSpecific.
const (
	SenseUnknown SenseKind = iota
	BecomingReady
	StartUnitRequired
	ManualInterventionRequired
	FormatInProgress
	SelfTestInProgress
	WriteError
	UnrecoveredReadError
	LogicalBlockAddressOutOfRange
	InvalidFieldInCDB
	LogicalUnitNotSupported
	VendorSpecific
)

func (k SenseKind) String() string {
	switch k {
	case BecomingReady:
		return "becoming ready"
	case StartUnitRequired:
		return "start unit required"
	case ManualInterventionRequired:
		return "manual intervention required"
	case FormatInProgress:
		return "format in progress"
	case SelfTestInProgress:
		return "self-test in progress"
	case WriteError:
		return "write error"
	case UnrecoveredReadError:
		return "unrecovered read error"
	case LogicalBlockAddressOutOfRange:
		return "logical block address out of range"
	case InvalidFieldInCDB:
		return "invalid field in CDB"
	case LogicalUnitNotSupported:
		return "logical unit not supported"
	case VendorSpecific:
		return "vendor specific"
	default:
		return "unknown"
	}
}

type ascqKey struct{ asc, ascq uint8 }

var senseTable = map[ascqKey]SenseKind{
	{0x04, 0x01}: BecomingReady,
	{0x04, 0x02}: StartUnitRequired,
	{0x04, 0x03}: ManualInterventionRequired,
	{0x04, 0x04}: FormatInProgress,
	{0x04, 0x09}: SelfTestInProgress,
	{0x0C, 0x00}: WriteError,
	{0x11, 0x00}: UnrecoveredReadError,
	{0x21, 0x00}: LogicalBlockAddressOutOfRange,
	{0x24, 0x00}: InvalidFieldInCDB,
	{0x25, 0x00}: LogicalUnitNotSupported,
}

func decodeSense(asc, ascq uint8) SenseKind {
	if kind, ok := senseTable[ascqKey{asc, ascq}]; ok {
		return kind
	}
	return VendorSpecific
}

// SenseCondition is a decoded REQUEST SENSE response.
type SenseCondition struct {
	Key  uint8
	ASC  uint8
	ASCQ uint8
	Kind SenseKind
}

func (s *SenseCondition) Error() string {
	return fmt.Sprintf("scsi: sense key %#x asc/ascq %02x/%02x: %s", s.Key, s.ASC, s.ASCQ, s.Kind)
}

// Error wraps a failed SCSI command: either a transport-layer error
// (Stall, Timeout, a malformed CSW, ...) or, when the transport reported
// CommandFailed, the decoded SenseCondition.
type Error struct {
	Op      string
	Sense   *SenseCondition
	Wrapped error
}

func (e *Error) Error() string {
	if e.Sense != nil {
		return fmt.Sprintf("scsi: %s: %s", e.Op, e.Sense.Error())
	}
	return fmt.Sprintf("scsi: %s: %s", e.Op, e.Wrapped.Error())
}

func (e *Error) Unwrap() error {
	if e.Sense != nil {
		return e.Sense
	}
	return e.Wrapped
}
