// Package bridge adapts file-shaped operations onto block devices.
//
// Block devices keep a single position that every user of the device shares,
// so a file tracks its own offset and the bridge positions the device before
// each transfer.
package bridge

import (
	"math"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/keks/blockdev"
)

// Name is the name the bridge is known by in the file-system driver table.
const Name = "BLOCKDEV"

// ErrClosed indicates an operation on a closed file.
var ErrClosed = errors.New("file already closed")

// FileTable maps file names to the names of the devices backing them.
type FileTable map[string]string

// Bridge exposes open/close/read/write/ioctl on files backed by block
// devices.
type Bridge struct {
	disp  blockdev.Resolver
	files FileTable
}

// New returns a bridge that resolves files through files and reaches devices
// through disp.
func New(disp blockdev.Resolver, files FileTable) *Bridge {
	return &Bridge{
		disp:  disp,
		files: files,
	}
}

// Open binds the named file to its device. No device operation happens.
func (b *Bridge) Open(name string) (*File, error) {
	devName, ok := b.files[name]
	if !ok {
		return nil, errors.Wrapf(blockdev.ErrNotFound, "file %q", name)
	}

	dev, err := b.disp.Lookup(devName)
	if err != nil {
		return nil, errors.Wrapf(err, "file %q", name)
	}

	glog.V(1).Infof("bridge: open %s on %s", name, devName)

	return &File{
		name: name,
		dev:  dev,
	}, nil
}

// Close releases the binding. The device stays open for other files.
func (b *Bridge) Close(f *File) error {
	if f.dev == nil {
		return errors.Wrap(ErrClosed, f.name)
	}

	glog.V(1).Infof("bridge: close %s", f.name)

	f.dev = nil

	return nil
}

// Read reads up to len(p) bytes at the file's offset and advances the offset
// by the count read.
func (b *Bridge) Read(f *File, p []byte) (int, error) {
	return b.transfer(f, p, "read", b.disp.Read)
}

// Write writes up to len(p) bytes at the file's offset and advances the
// offset by the count written.
func (b *Bridge) Write(f *File, p []byte) (int, error) {
	return b.transfer(f, p, "write", b.disp.Write)
}

// Ioctl forwards req to the file's device.
func (b *Bridge) Ioctl(f *File, req blockdev.Request, arg interface{}) error {
	if f.dev == nil {
		return errors.Wrap(ErrClosed, f.name)
	}

	return b.disp.Ioctl(f.dev, req, arg)
}

type xferFunc func(*blockdev.Descriptor, []byte) (int, error)

// transfer positions the device at the file's offset and runs xfer. Any
// failure to reach the offset moves no bytes and leaves the offset alone.
func (b *Bridge) transfer(f *File, p []byte, op string, xfer xferFunc) (int, error) {
	dev := f.dev
	if dev == nil {
		return 0, errors.Wrap(ErrClosed, f.name)
	}

	if f.off > math.MaxInt64 {
		return 0, errors.Wrapf(blockdev.ErrPositionFault, "%s %s: offset %d out of range", op, f.name, f.off)
	}
	want := int64(f.off)

	dev.Lock()
	defer dev.Unlock()

	got, err := b.disp.Seek(dev, want, blockdev.SeekSet)
	if err != nil {
		glog.Warningf("bridge: %s %s: seek %s to %d: %v", op, f.name, dev.Name(), want, err)
		return 0, errors.Wrapf(err, "%s %s", op, f.name)
	}
	if got != want {
		glog.Warningf("bridge: %s %s: seek %s to %d reached %d", op, f.name, dev.Name(), want, got)
		return 0, errors.Wrapf(blockdev.PositionFault(want, got), "%s %s", op, f.name)
	}

	n, err := xfer(dev, p)
	if n > 0 {
		f.off += uint64(n)
	}

	if glog.V(2) {
		glog.Infof("bridge: %s %s: %d/%d bytes at %d", op, f.name, n, len(p), want)
	}

	return n, err
}
