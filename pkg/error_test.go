package pkg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransferStatus_String(t *testing.T) {
	tests := []struct {
		status TransferStatus
		want   string
	}{
		{TransferStatusSuccess, "success"},
		{TransferStatusError, "error"},
		{TransferStatusStall, "stall"},
		{TransferStatusNAK, "nak"},
		{TransferStatusTimeout, "timeout"},
		{TransferStatusCancelled, "cancelled"},
		{TransferStatusOverrun, "overrun"},
		{TransferStatusUnderrun, "underrun"},
		{TransferStatus(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestTransferStatus_Error(t *testing.T) {
	tests := []struct {
		status  TransferStatus
		wantErr error
	}{
		{TransferStatusSuccess, nil},
		{TransferStatusStall, ErrStall},
		{TransferStatusNAK, ErrNAK},
		{TransferStatusTimeout, ErrTimeout},
		{TransferStatusCancelled, ErrCancelled},
		{TransferStatusOverrun, ErrOverrun},
		{TransferStatusUnderrun, ErrUnderrun},
		{TransferStatusError, ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			err := tt.status.Error()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSentinelErrors(t *testing.T) {
	errs := []error{
		ErrStall,
		ErrNAK,
		ErrTimeout,
		ErrCancelled,
		ErrOverrun,
		ErrUnderrun,
		ErrCRC,
		ErrBitStuff,
		ErrProtocol,
		ErrNoDevice,
		ErrNotConfigured,
		ErrInvalidEndpoint,
		ErrInvalidState,
		ErrInvalidRequest,
		ErrBufferTooSmall,
		ErrNotSupported,
		ErrBusy,
		ErrNoMemory,
		ErrBandwidth,
		ErrFrameOverrun,
		ErrAllPipesInUse,
		ErrDataSeq,
		ErrTooManyDevices,
		ErrEnumerationFailed,
		ErrNoAddress,
		ErrCommandFailed,
		ErrShortCSW,
	}

	for i, err1 := range errs {
		assert.NotNil(t, err1, "error %d is nil", i)
		for j, err2 := range errs {
			if i != j {
				assert.False(t, errors.Is(err1, err2), "error %d and %d are equal", i, j)
			}
		}
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err     error
		wantMsg string
	}{
		{ErrStall, "endpoint stalled"},
		{ErrNAK, "NAK received"},
		{ErrTimeout, "transfer timeout"},
		{ErrNoDevice, "device not present"},
		{ErrBandwidth, "insufficient bandwidth"},
		{ErrCommandFailed, "command failed"},
		{ErrShortCSW, "short command status wrapper"},
	}

	for _, tt := range tests {
		t.Run(tt.wantMsg, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestHCIErrorKind(t *testing.T) {
	tests := []struct {
		kind    HCIErrorKind
		name    string
		wantErr error
	}{
		{HCIErrorNone, "none", nil},
		{HCIErrorNak, "nak", ErrNAK},
		{HCIErrorStall, "stall", ErrStall},
		{HCIErrorTimeout, "timeout", ErrTimeout},
		{HCIErrorOverflow, "overflow", ErrOverrun},
		{HCIErrorBitStuff, "bit-stuff", ErrBitStuff},
		{HCIErrorCRC, "crc", ErrCRC},
		{HCIErrorDataSeq, "data-sequence", ErrDataSeq},
		{HCIErrorBufferTooSmall, "buffer-too-small", ErrBufferTooSmall},
		{HCIErrorAllPipesInUse, "all-pipes-in-use", ErrAllPipesInUse},
		{HCIErrorProtocol, "protocol", ErrProtocol},
		{HCIErrorTooManyDevices, "too-many-devices", ErrTooManyDevices},
		{HCIErrorKind(99), "unknown", ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.kind.String())
			if tt.wantErr == nil {
				assert.NoError(t, tt.kind.Err())
				return
			}
			assert.ErrorIs(t, tt.kind.Err(), tt.wantErr)
		})
	}
}
