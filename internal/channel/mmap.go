//go:build unix

package channel

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Open maps the file at path as a channel of capacity bytes. With create set the file
// is created or truncated and the offsets start at zero; otherwise the file must
// already have the expected size.
func Open(path string, capacity int, create bool) (*Channel, error) {
	size := RegionSize(capacity)
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening channel file: %w", err)
	}
	defer f.Close()

	if create {
		if err := f.Truncate(int64(size)); err != nil {
			return nil, fmt.Errorf("sizing channel file: %w", err)
		}
	} else {
		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat channel file: %w", err)
		}
		if info.Size() != int64(size) {
			return nil, fmt.Errorf("channel file %s has %d bytes, want %d", path, info.Size(), size)
		}
	}

	region, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mapping channel file: %w", err)
	}
	c, err := New(region)
	if err != nil {
		_ = unix.Munmap(region)
		return nil, err
	}
	c.closer = func() error { return unix.Munmap(region) }
	return c, nil
}
