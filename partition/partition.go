// Package partition implements logical block devices layered on a window of
// a lower device.
package partition

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/keks/blockdev"
)

// HeaderSize is the size of the header in front of each formatted partition
// in bytes.
const HeaderSize = 4

var errUnbound = errors.New("partition: no lower device")

// Partition exposes [off, off+size) of its lower device as a device of its
// own. Every access to the lower device goes through the dispatcher.
type Partition struct {
	disp  blockdev.Dispatcher
	lower *blockdev.Descriptor

	off  int64
	size int64

	// header is set while the header at off still has to be parsed.
	header bool

	pos   int64
	opens int
}

// Window returns an unformatted partition of size bytes at off of lower.
// A nil lower is bound by Init from the descriptor's layering.
func Window(disp blockdev.Dispatcher, lower *blockdev.Descriptor, off, size int64) *Partition {
	return &Partition{
		disp:  disp,
		lower: lower,
		off:   off,
		size:  size,
	}
}

// Header returns a partition described by the header at off of lower. Init
// parses the header; a nil lower is bound from the descriptor's layering.
func Header(disp blockdev.Dispatcher, lower *blockdev.Descriptor, off int64) *Partition {
	return &Partition{
		disp:   disp,
		lower:  lower,
		off:    off,
		header: true,
	}
}

// New formats a partition of size bytes, header included, at off of lower.
func New(disp blockdev.Dispatcher, lower *blockdev.Descriptor, off, size int64) (*Partition, error) {
	p := &Partition{
		disp:  disp,
		lower: lower,
		off:   off,
		size:  size,
	}

	return p, p.format()
}

// Load opens the formatted partition at off of lower.
func Load(disp blockdev.Dispatcher, lower *blockdev.Descriptor, off int64) (*Partition, error) {
	p := &Partition{
		disp:   disp,
		lower:  lower,
		off:    off,
		header: true,
	}

	return p, p.parse()
}

// Init binds the lower device from d's layering, unless one was given, and
// parses the header if there is one.
func (p *Partition) Init(d *blockdev.Descriptor) error {
	if lower, ok := d.Lower(); ok {
		if p.lower != nil && p.lower != lower {
			return errors.Wrapf(blockdev.ErrLayered, "%s bound to %s, layered on %s", d.Name(), p.lower.Name(), lower.Name())
		}
		p.lower = lower
	}
	if p.lower == nil {
		return errors.Wrap(errUnbound, d.Name())
	}

	if p.header {
		if err := p.parse(); err != nil {
			return err
		}
	}

	// lower devices that do not know their size are taken on trust
	var lowerSize int64
	switch err := p.disp.Ioctl(p.lower, blockdev.IoctlGetSize, &lowerSize); {
	case err == nil:
		if p.off+p.size > lowerSize {
			return errors.Wrapf(blockdev.ErrPositionFault, "%s: [%d, %d) exceeds %s (%d bytes)",
				d.Name(), p.off, p.off+p.size, p.lower.Name(), lowerSize)
		}
	case !sizeUnknown(err):
		return errors.Wrapf(err, "%s: lower %s", d.Name(), p.lower.Name())
	}

	glog.V(1).Infof("partition: %s = %s[%d, %d)", d.Name(), p.lower.Name(), p.off, p.off+p.size)

	return nil
}

// Offset returns where the partition's data starts on the lower device.
func (p *Partition) Offset() int64 { return p.off }

// Size returns the partition's data size.
func (p *Partition) Size() int64 { return p.size }

func (p *Partition) Open(d *blockdev.Descriptor, path string, flags blockdev.Flag) (*blockdev.Descriptor, error) {
	if p.lower == nil {
		return nil, errUnbound
	}

	p.opens++
	return d, nil
}

func (p *Partition) Close() error {
	if p.opens == 0 {
		return blockdev.ErrNotOpen
	}

	p.opens--
	return nil
}

func (p *Partition) Read(dst []byte) (int, error) {
	if p.lower == nil {
		return 0, errUnbound
	}
	if p.pos >= p.size {
		return 0, io.EOF
	}

	if max := p.size - p.pos; max < int64(len(dst)) {
		dst = dst[:max]
	}

	n, err := transferAt(p.disp, p.lower, p.off+p.pos, dst, p.disp.Read)
	p.pos += int64(n)

	return n, err
}

func (p *Partition) Write(data []byte) (int, error) {
	if p.lower == nil {
		return 0, errUnbound
	}
	if len(data) == 0 {
		return 0, nil
	}
	if p.pos >= p.size {
		return 0, errors.Wrapf(blockdev.ErrNoSpace, "write at %d", p.pos)
	}

	if max := p.size - p.pos; max < int64(len(data)) {
		data = data[:max]
	}

	n, err := transferAt(p.disp, p.lower, p.off+p.pos, data, p.disp.Write)
	p.pos += int64(n)

	return n, err
}

// Ioctl answers IoctlGetSize itself and passes everything else to the lower
// device, positioned at the partition's current position.
func (p *Partition) Ioctl(req blockdev.Request, arg interface{}) error {
	if req == blockdev.IoctlGetSize {
		return blockdev.StoreInt64(req, arg, p.size)
	}
	if p.lower == nil {
		return errUnbound
	}

	_, err := transferAt(p.disp, p.lower, p.off+p.pos, nil, func(d *blockdev.Descriptor, _ []byte) (int, error) {
		return 0, p.disp.Ioctl(d, req, arg)
	})

	return err
}

func (p *Partition) Seek(off int64, whence blockdev.Whence) (int64, error) {
	pos, err := blockdev.Resolve(off, whence, p.pos, p.size)
	if err != nil {
		return 0, err
	}
	if pos > p.size {
		return 0, errors.Wrapf(blockdev.ErrPositionFault, "%d beyond size %d", pos, p.size)
	}

	p.pos = pos
	return pos, nil
}

func (p *Partition) parse() error {
	var size uint32
	err := binary.Read(readerFromDevice(p.disp, p.lower, p.off), binary.LittleEndian, &size)
	if err != nil {
		return errors.Wrapf(err, "partition header at %d", p.off)
	}
	if size < HeaderSize {
		return errors.Errorf("partition header at %d: size %d smaller than header", p.off, size)
	}

	p.size = int64(size)

	p.size -= HeaderSize
	p.off += HeaderSize
	p.header = false

	return nil
}

func (p *Partition) format() error {
	if p.size < HeaderSize || p.size > math.MaxUint32 {
		return errors.Errorf("partition at %d: size %d out of range", p.off, p.size)
	}

	hdr := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(hdr, uint32(p.size))
	if err := writeFull(writerToDevice(p.disp, p.lower, p.off), hdr); err != nil {
		return errors.Wrapf(err, "partition header at %d", p.off)
	}

	p.size -= HeaderSize
	p.off += HeaderSize

	return nil
}

func writeFull(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}

	return nil
}
