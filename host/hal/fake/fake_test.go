package fake_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/usbhost/host/hal"
	"github.com/ardnew/usbhost/host/hal/fake"
	"github.com/ardnew/usbhost/pkg"
)

func TestDeviceDetectDeliversConnect(t *testing.T) {
	ctrl := fake.New(2)
	defer ctrl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	events := ctrl.DeviceDetect(ctx)
	ctrl.Connect(hal.SpeedHigh)

	select {
	case status := <-events:
		assert.True(t, status.Present)
		assert.Equal(t, hal.SpeedHigh, status.Speed)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for device status")
	}
}

func TestControlTransferNoHandler(t *testing.T) {
	ctrl := fake.New(2)
	defer ctrl.Close()

	_, err := ctrl.ControlTransfer(context.Background(), 1, 8, &hal.SetupPacket{}, nil)
	assert.ErrorIs(t, err, pkg.ErrNotSupported)
}

func TestBulkInTogglesOnSuccess(t *testing.T) {
	ctrl := fake.New(2)
	defer ctrl.Close()
	ctrl.OnBulk = func(addr hal.DeviceAddress, endpoint uint8, data []byte, out bool) (int, error) {
		return len(data), nil
	}

	var tg hal.Toggle
	_, err := ctrl.BulkIn(context.Background(), 1, 1, 64, make([]byte, 8), hal.TransferBulk, &tg)
	require.NoError(t, err)
	assert.Equal(t, hal.Toggle(1), tg)
}

func TestBulkInHaltedReturnsStall(t *testing.T) {
	ctrl := fake.New(2)
	defer ctrl.Close()
	ctrl.Halt(1)

	_, err := ctrl.BulkIn(context.Background(), 1, 1, 64, make([]byte, 8), hal.TransferBulk, nil)
	assert.ErrorIs(t, err, pkg.ErrStall)

	require.NoError(t, ctrl.ClearHalt(1, 1))
	ctrl.OnBulk = func(addr hal.DeviceAddress, endpoint uint8, data []byte, out bool) (int, error) {
		return len(data), nil
	}
	_, err = ctrl.BulkIn(context.Background(), 1, 1, 64, make([]byte, 8), hal.TransferBulk, nil)
	assert.NoError(t, err)
}

func TestAllocInterruptPipeBoundedAndDelivers(t *testing.T) {
	ctrl := fake.New(1)
	defer ctrl.Close()

	pipe, err := ctrl.TryAllocInterruptPipe(1, 1, 8, 10)
	require.NoError(t, err)
	defer pipe.Close()

	_, err = ctrl.TryAllocInterruptPipe(2, 1, 8, 10)
	assert.ErrorIs(t, err, pkg.ErrAllPipesInUse)

	ctrl.DeliverInterrupt(pipe.Slot(), []byte{0x01})
	select {
	case payload := <-pipe.Data:
		assert.Equal(t, []byte{0x01}, payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for interrupt payload")
	}
}

func TestAllocInterruptPipeFreesAfterClose(t *testing.T) {
	ctrl := fake.New(1)
	defer ctrl.Close()

	pipe, err := ctrl.TryAllocInterruptPipe(1, 1, 8, 10)
	require.NoError(t, err)
	require.NoError(t, pipe.Close())

	_, err = ctrl.TryAllocInterruptPipe(2, 1, 8, 10)
	assert.NoError(t, err)
}

func TestSetDeviceAddress(t *testing.T) {
	ctrl := fake.New(1)
	defer ctrl.Close()

	err := ctrl.SetDeviceAddress(context.Background(), 5)
	assert.NoError(t, err)
}
