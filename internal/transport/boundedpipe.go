package transport

import (
	"errors"
	"io"
	"sync"
)

// DefaultBoundedPipeCapacity is the capacity of the internal pipe bridging
// inbound WebSocket messages to the session's input stream — large enough
// to hold one full-size MQTT message without a partial read.
const DefaultBoundedPipeCapacity = 128 * 1024

// ErrPipeClosed is returned by Write once the pipe has been closed.
var ErrPipeClosed = errors.New("transport: bounded pipe closed")

// boundedPipe is a fixed-capacity ring buffer with blocking Read/Write,
// standing in for stdlib io.Pipe where io.Pipe's unbounded, fully
// synchronous rendezvous would let a slow reader stall the WebSocket read
// pump indefinitely. Write blocks while the buffer is full; Read blocks
// while it is empty. Both unblock on Close.
type boundedPipe struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	ring  []byte
	start int
	size  int

	closed bool
}

func newBoundedPipe(capacity int) *boundedPipe {
	if capacity <= 0 {
		capacity = DefaultBoundedPipeCapacity
	}
	p := &boundedPipe{ring: make([]byte, capacity)}
	p.notEmpty = sync.NewCond(&p.mu)
	p.notFull = sync.NewCond(&p.mu)
	return p
}

// Write copies data into the ring buffer, blocking in place while the
// buffer is full. A single Write may straddle several wakeups if the
// buffer fills partway through, but always writes every byte of data
// unless the pipe is closed first.
func (p *boundedPipe) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	written := 0
	for written < len(data) {
		if p.closed {
			return written, ErrPipeClosed
		}
		free := len(p.ring) - p.size
		if free == 0 {
			p.notFull.Wait()
			continue
		}
		n := len(data) - written
		if n > free {
			n = free
		}
		for i := 0; i < n; i++ {
			p.ring[(p.start+p.size+i)%len(p.ring)] = data[written+i]
		}
		p.size += n
		written += n
		p.notEmpty.Signal()
	}
	return written, nil
}

// Read copies up to len(out) buffered bytes, blocking while the buffer is
// empty and not yet closed.
func (p *boundedPipe) Read(out []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.size == 0 {
		if p.closed {
			return 0, io.EOF
		}
		p.notEmpty.Wait()
	}

	n := len(out)
	if n > p.size {
		n = p.size
	}
	for i := 0; i < n; i++ {
		out[i] = p.ring[(p.start+i)%len(p.ring)]
	}
	p.start = (p.start + n) % len(p.ring)
	p.size -= n
	p.notFull.Signal()
	return n, nil
}

// Close unblocks any pending Read or Write. Safe to call more than once.
func (p *boundedPipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.notEmpty.Broadcast()
	p.notFull.Broadcast()
	return nil
}
