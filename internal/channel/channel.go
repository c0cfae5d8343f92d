// Package channel implements a single-producer single-consumer byte ring over a
// fixed memory region. Two processes share a region by mapping the same file.
//
// Layout: capacity bytes of data followed by the head and tail offsets as
// little-endian uint32 values. The writer only advances head and the reader only
// advances tail, so one slot is always left empty to tell a full ring from an empty one.
package channel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// HeaderSize is the number of bytes after the data area
const HeaderSize = 8

var (
	// ErrInsufficientSpace is returned by Write when the message does not fit
	ErrInsufficientSpace = errors.New("insufficient space in channel")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("channel closed")
	// ErrTruncatedFrame is returned when a buffer ends inside a frame
	ErrTruncatedFrame = errors.New("truncated frame")
)

// Channel is one direction of a ring buffer
type Channel struct {
	buf      []byte
	capacity uint32
	head     *uint32
	tail     *uint32
	closer   func() error
	closed   atomic.Bool
}

// RegionSize returns the number of bytes a channel of capacity needs
func RegionSize(capacity int) int {
	return capacity + HeaderSize
}

// New wraps region, whose last HeaderSize bytes hold the offsets. The data area
// must be a non-zero multiple of 4 bytes.
func New(region []byte) (*Channel, error) {
	capacity := len(region) - HeaderSize
	if capacity <= 0 || capacity%4 != 0 {
		return nil, fmt.Errorf("invalid region size %d", len(region))
	}
	if uintptr(unsafe.Pointer(&region[0]))%4 != 0 {
		return nil, fmt.Errorf("region is not 4-byte aligned")
	}
	c := &Channel{
		buf:      region[:capacity],
		capacity: uint32(capacity),
		head:     (*uint32)(unsafe.Pointer(&region[capacity])),
		tail:     (*uint32)(unsafe.Pointer(&region[capacity+4])),
	}
	if h, t := atomic.LoadUint32(c.head), atomic.LoadUint32(c.tail); h >= c.capacity || t >= c.capacity {
		return nil, fmt.Errorf("corrupt offsets head=%d tail=%d", h, t)
	}
	return c, nil
}

// Capacity returns the size of the data area
func (c *Channel) Capacity() int { return int(c.capacity) }

func (c *Channel) used(head, tail uint32) uint32 {
	return (head + c.capacity - tail) % c.capacity
}

// GetFreeLength returns how many bytes Write accepts right now
func (c *Channel) GetFreeLength() int {
	head, tail := atomic.LoadUint32(c.head), atomic.LoadUint32(c.tail)
	return int(c.capacity - 1 - c.used(head, tail))
}

// Len returns how many bytes are waiting to be read
func (c *Channel) Len() int {
	return int(c.used(atomic.LoadUint32(c.head), atomic.LoadUint32(c.tail)))
}

// Write appends b in one piece or not at all
func (c *Channel) Write(b []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if len(b) > c.GetFreeLength() {
		return fmt.Errorf("%w: need %d bytes, %d free", ErrInsufficientSpace, len(b), c.GetFreeLength())
	}
	head := atomic.LoadUint32(c.head)
	n := copy(c.buf[head:], b)
	copy(c.buf, b[n:])
	atomic.StoreUint32(c.head, (head+uint32(len(b)))%c.capacity)
	return nil
}

// Read returns everything written since the last Read, or nil when the channel is empty
func (c *Channel) Read() []byte {
	if c.closed.Load() {
		return nil
	}
	head, tail := atomic.LoadUint32(c.head), atomic.LoadUint32(c.tail)
	n := c.used(head, tail)
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	if tail < head {
		copy(out, c.buf[tail:head])
	} else {
		k := copy(out, c.buf[tail:])
		copy(out[k:], c.buf[:head])
	}
	atomic.StoreUint32(c.tail, head)
	return out
}

// Close releases the region. Reads and writes fail afterwards.
func (c *Channel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.closer != nil {
		return c.closer()
	}
	return nil
}

// Frame prefixes payload with its total length, prefix included, as 4 little-endian bytes
func Frame(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out, uint32(len(out)))
	copy(out[4:], payload)
	return out
}

// SplitFrames returns the payloads of the frames in b
func SplitFrames(b []byte) ([][]byte, error) {
	var out [][]byte
	for len(b) > 0 {
		if len(b) < 4 {
			return out, fmt.Errorf("%w: %d bytes left", ErrTruncatedFrame, len(b))
		}
		size := int(binary.LittleEndian.Uint32(b))
		if size < 4 || size > len(b) {
			return out, fmt.Errorf("%w: frame of %d bytes, %d available", ErrTruncatedFrame, size, len(b))
		}
		out = append(out, b[4:size])
		b = b[size:]
	}
	return out, nil
}
