// Package memdisk provides a simulated disk held in memory.
package memdisk

import (
	"io"

	"github.com/pkg/errors"

	"github.com/keks/blockdev"
)

// DefaultBlockSize is the block size reported when none is configured.
const DefaultBlockSize = 512

// Disk is a block device backed by a byte slice. A Disk with size 0 grows
// as it is written; otherwise it never holds more than size bytes.
type Disk struct {
	data      []byte
	size      int64
	blockSize int64

	pos   int64
	opens int
}

// New returns a zeroed disk of size bytes. size 0 means an empty,
// unbounded disk.
func New(size int64) *Disk {
	return &Disk{
		data:      make([]byte, size),
		size:      size,
		blockSize: DefaultBlockSize,
	}
}

// NewFromBytes returns a disk bounded to and holding data.
func NewFromBytes(data []byte) *Disk {
	return &Disk{
		data:      data,
		size:      int64(len(data)),
		blockSize: DefaultBlockSize,
	}
}

// SetBlockSize sets the block size reported by IoctlGetBlockSize.
func (d *Disk) SetBlockSize(bs int64) {
	d.blockSize = bs
}

// Bytes returns the current contents.
func (d *Disk) Bytes() []byte {
	return d.data
}

// Position returns the current position.
func (d *Disk) Position() int64 {
	return d.pos
}

func (d *Disk) Open(desc *blockdev.Descriptor, path string, flags blockdev.Flag) (*blockdev.Descriptor, error) {
	d.opens++
	return desc, nil
}

func (d *Disk) Close() error {
	if d.opens == 0 {
		return blockdev.ErrNotOpen
	}

	d.opens--
	return nil
}

func (d *Disk) Read(p []byte) (int, error) {
	if d.pos >= int64(len(d.data)) {
		return 0, io.EOF
	}

	n := copy(p, d.data[d.pos:])
	d.pos += int64(n)

	return n, nil
}

func (d *Disk) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	end := d.pos + int64(len(p))
	if d.size > 0 && end > d.size {
		if d.pos >= d.size {
			return 0, errors.Wrapf(blockdev.ErrNoSpace, "write at %d", d.pos)
		}
		end = d.size
	}

	if end > int64(len(d.data)) {
		d.data = append(d.data, make([]byte, end-int64(len(d.data)))...)
	}

	n := copy(d.data[d.pos:end], p)
	d.pos += int64(n)

	return n, nil
}

func (d *Disk) Ioctl(req blockdev.Request, arg interface{}) error {
	switch req {
	case blockdev.IoctlGetSize:
		// a growing disk has no size to report
		if d.size == 0 {
			return blockdev.Unsupported(req)
		}
		return blockdev.StoreInt64(req, arg, d.Size())
	case blockdev.IoctlGetBlockSize:
		return blockdev.StoreInt64(req, arg, d.blockSize)
	case blockdev.IoctlSync:
		return nil
	default:
		return blockdev.Unsupported(req)
	}
}

func (d *Disk) Seek(off int64, whence blockdev.Whence) (int64, error) {
	pos, err := blockdev.Resolve(off, whence, d.pos, int64(len(d.data)))
	if err != nil {
		return 0, err
	}

	if d.size > 0 && pos > d.size {
		return 0, errors.Wrapf(blockdev.ErrPositionFault, "%d beyond size %d", pos, d.size)
	}

	d.pos = pos

	return pos, nil
}

// Size returns the current length of the disk. For bounded disks that is
// the bound.
func (d *Disk) Size() int64 {
	return int64(len(d.data))
}
