package host

import (
	"context"

	"github.com/ardnew/usbhost/host/hal"
)

// InterruptStream wraps a hal.InterruptPipe as a sequence of interrupt
// packets taken one Next call at a time. Close releases the pool slot the
// pipe holds; a cancelled context only ends the pending Next call.
// Hub status-change polling is the first consumer; any class driver that
// needs a periodic interrupt IN endpoint (HID, CDC notifications, ...) can
// build on the same wrapper instead of reading hal.InterruptPipe directly.
type InterruptStream struct {
	pipe hal.InterruptPipe
}

// newInterruptStream wraps an already-allocated interrupt pipe.
func newInterruptStream(pipe hal.InterruptPipe) *InterruptStream {
	return &InterruptStream{pipe: pipe}
}

// Next blocks until the next interrupt payload arrives, ctx is done, or the
// pipe's channel is closed. ok is false in the latter two cases.
func (s *InterruptStream) Next(ctx context.Context) (payload []byte, ok bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case payload, ok = <-s.pipe.Data:
		return payload, ok
	}
}

// Close releases the pipe's pool slot, ending the stream. Idempotent.
func (s *InterruptStream) Close() error {
	return s.pipe.Close()
}
