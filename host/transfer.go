package host

import (
	"context"
	"sync"
)

// Pipe provides a buffered, bidirectional communication channel over two
// bulk endpoint handles on the same device: one IN, one OUT. It suits
// stream-oriented bulk protocols; host/class/msc does not use it and calls
// EndpointHandle.BulkTransfer directly for its framed CBW/CSW transfers.
type Pipe struct {
	in  *EndpointHandle
	out *EndpointHandle

	readBuf []byte
	readPos int
	readLen int

	writeBuf []byte

	mu sync.Mutex
}

// NewPipe wraps an IN/OUT endpoint handle pair into a Pipe. Both handles
// must belong to the same device and share maxPacketSize as their buffer
// size.
func NewPipe(in, out *EndpointHandle, maxPacketSize int) *Pipe {
	return &Pipe{
		in:       in,
		out:      out,
		readBuf:  make([]byte, maxPacketSize),
		writeBuf: make([]byte, maxPacketSize),
	}
}

// Read reads data from the IN endpoint, buffering any excess for the next
// call.
func (p *Pipe) Read(ctx context.Context, data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.readPos < p.readLen {
		n := copy(data, p.readBuf[p.readPos:p.readLen])
		p.readPos += n
		return n, nil
	}

	n, err := p.in.BulkTransfer(ctx, p.readBuf)
	if err != nil {
		return 0, err
	}

	p.readPos = 0
	p.readLen = n

	copied := copy(data, p.readBuf[:n])
	p.readPos = copied
	return copied, nil
}

// Write writes data to the OUT endpoint, fragmenting into maxPacketSize
// chunks as needed.
func (p *Pipe) Write(ctx context.Context, data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for len(data) > 0 {
		n := len(data)
		if n > len(p.writeBuf) {
			n = len(p.writeBuf)
		}

		copy(p.writeBuf, data[:n])
		written, err := p.out.BulkTransfer(ctx, p.writeBuf[:n])
		if err != nil {
			return total, err
		}

		total += written
		data = data[n:]
	}

	return total, nil
}

// Close releases both endpoint handles.
func (p *Pipe) Close() error {
	inErr := p.in.Close()
	outErr := p.out.Close()
	if inErr != nil {
		return inErr
	}
	return outErr
}
