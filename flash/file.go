package flash

import (
	"bytes"
	"io"
	"os"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/keks/blockdev"
)

var errUnbound = errors.New("flash: backing file not bound")

// File is a flash device whose contents live in a file on the host. The
// backing file is resolved by Init.
type File struct {
	backing   string
	size      int64
	blockSize int64

	f     *os.File
	pos   int64
	opens int
}

// Init opens the backing file, creating it if needed. Space the file does
// not cover yet is erased.
func (fl *File) Init(d *blockdev.Descriptor) error {
	f, err := os.OpenFile(fl.backing, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return &os.PathError{Op: "Init", Path: fl.backing, Err: err}
	}

	if fl.size == 0 {
		fl.size = info.Size()
	}
	if fl.size == 0 {
		f.Close()
		return &os.PathError{Op: "Init", Path: fl.backing, Err: errors.New("no size configured and backing file is empty")}
	}

	if info.Size() < fl.size {
		if err := erase(f, info.Size(), fl.size-info.Size()); err != nil {
			f.Close()
			return &os.PathError{Op: "Init", Path: fl.backing, Err: err}
		}
	}

	if glog.V(2) {
		glog.Info("flash ", d.Name(), ": backing ", fl.backing)
		glog.Info("     size: ", fl.size)
		glog.Info("    block: ", fl.blockSize)
	}

	fl.f = f
	return nil
}

// Detach closes the backing file, if Init opened one. The device is
// unusable afterwards.
func (fl *File) Detach() error {
	if fl.f == nil {
		return nil
	}

	f := fl.f
	fl.f = nil

	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (fl *File) Open(d *blockdev.Descriptor, path string, flags blockdev.Flag) (*blockdev.Descriptor, error) {
	if fl.f == nil {
		return nil, errUnbound
	}

	fl.opens++
	return d, nil
}

func (fl *File) Close() error {
	if fl.opens == 0 {
		return blockdev.ErrNotOpen
	}

	fl.opens--
	return nil
}

func (fl *File) Read(p []byte) (int, error) {
	if fl.f == nil {
		return 0, errUnbound
	}
	if fl.pos >= fl.size {
		return 0, io.EOF
	}
	if rem := fl.size - fl.pos; int64(len(p)) > rem {
		p = p[:rem]
	}

	if glog.V(2) {
		glog.Infof("flash: reading %v bytes from offset %#x", len(p), fl.pos)
	}

	n, err := fl.f.ReadAt(p, fl.pos)
	if err != nil && err != io.EOF && n == 0 {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}

	fl.pos += int64(n)
	return n, nil
}

func (fl *File) Write(p []byte) (int, error) {
	if fl.f == nil {
		return 0, errUnbound
	}
	if len(p) == 0 {
		return 0, nil
	}
	if fl.pos >= fl.size {
		return 0, errors.Wrapf(blockdev.ErrNoSpace, "write at %d", fl.pos)
	}
	if rem := fl.size - fl.pos; int64(len(p)) > rem {
		p = p[:rem]
	}

	if glog.V(2) {
		glog.Infof("flash: writing %v bytes to address %#x", len(p), fl.pos)
	}

	n, err := fl.f.WriteAt(p, fl.pos)
	if err != nil && n == 0 {
		return 0, err
	}

	fl.pos += int64(n)
	return n, nil
}

func (fl *File) Ioctl(req blockdev.Request, arg interface{}) error {
	switch req {
	case blockdev.IoctlGetSize:
		return blockdev.StoreInt64(req, arg, fl.size)
	case blockdev.IoctlGetBlockSize:
		return blockdev.StoreInt64(req, arg, fl.blockSize)
	case blockdev.IoctlSync:
		if fl.f == nil {
			return errUnbound
		}
		return fl.f.Sync()
	case blockdev.IoctlErase:
		if fl.f == nil {
			return errUnbound
		}
		if fl.pos >= fl.size {
			return errors.Wrapf(blockdev.ErrPositionFault, "erase at %d", fl.pos)
		}
		start := fl.pos - fl.pos%fl.blockSize
		length := fl.blockSize
		if start+length > fl.size {
			length = fl.size - start
		}
		return erase(fl.f, start, length)
	default:
		return blockdev.Unsupported(req)
	}
}

func (fl *File) Seek(off int64, whence blockdev.Whence) (int64, error) {
	pos, err := blockdev.Resolve(off, whence, fl.pos, fl.size)
	if err != nil {
		return 0, err
	}
	if pos > fl.size {
		return 0, errors.Wrapf(blockdev.ErrPositionFault, "%d beyond size %d", pos, fl.size)
	}

	fl.pos = pos
	return pos, nil
}

// erase sets length bytes starting at off to Erased.
func erase(w io.WriterAt, off, length int64) error {
	const chunk = 4096

	blank := bytes.Repeat([]byte{Erased}, chunk)
	for length > 0 {
		n := int64(chunk)
		if n > length {
			n = length
		}
		if _, err := w.WriteAt(blank[:n], off); err != nil {
			return err
		}
		off += n
		length -= n
	}

	return nil
}
