package partition

import (
	"io"

	"github.com/pkg/errors"

	"github.com/keks/blockdev"
)

// sizeUnknown reports whether err from IoctlGetSize only means the device
// does not know its size.
func sizeUnknown(err error) bool {
	return errors.Is(err, blockdev.ErrUnsupported) || errors.Is(err, blockdev.ErrNotImplemented)
}

type xferFunc func(*blockdev.Descriptor, []byte) (int, error)

// transferAt positions d at pos and runs xfer, holding d's exclusive section
// for both steps.
func transferAt(disp blockdev.Dispatcher, d *blockdev.Descriptor, pos int64, buf []byte, xfer xferFunc) (int, error) {
	d.Lock()
	defer d.Unlock()

	got, err := disp.Seek(d, pos, blockdev.SeekSet)
	if err != nil {
		return 0, err
	}
	if got != pos {
		return 0, blockdev.PositionFault(pos, got)
	}

	return xfer(d, buf)
}

func readerFromDevice(disp blockdev.Dispatcher, d *blockdev.Descriptor, off int64) io.Reader {
	return funcReader(func(data []byte) (int, error) {
		n, err := transferAt(disp, d, off, data, disp.Read)
		off += int64(n)
		return n, err
	})
}

func writerToDevice(disp blockdev.Dispatcher, d *blockdev.Descriptor, off int64) io.Writer {
	return funcWriter(func(data []byte) (int, error) {
		n, err := transferAt(disp, d, off, data, disp.Write)
		off += int64(n)
		return n, err
	})
}

type funcReader func([]byte) (int, error)

func (r funcReader) Read(buf []byte) (int, error) {
	return r(buf)
}

type funcWriter func([]byte) (int, error)

func (w funcWriter) Write(data []byte) (int, error) {
	return w(data)
}
