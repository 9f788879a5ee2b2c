package bridge

import (
	"io"

	"github.com/keks/blockdev"
)

// File is an open file: a device and the offset of the next transfer.
type File struct {
	name string

	// dev is borrowed from the registry. nil once closed.
	dev *blockdev.Descriptor
	off uint64
}

// Name returns the name the file was opened by.
func (f *File) Name() string { return f.name }

// Offset returns the offset of the next transfer.
func (f *File) Offset() uint64 { return f.off }

// Device returns the backing device, or nil after Close.
func (f *File) Device() *blockdev.Descriptor { return f.dev }

// Stream returns f as an io.ReadWriter driven through b.
func (b *Bridge) Stream(f *File) io.ReadWriter {
	return stream{
		funcReader(func(p []byte) (int, error) { return b.Read(f, p) }),
		funcWriter(func(p []byte) (int, error) { return b.Write(f, p) }),
	}
}

type stream struct {
	io.Reader
	io.Writer
}

type funcReader func([]byte) (int, error)

func (r funcReader) Read(buf []byte) (int, error) {
	return r(buf)
}

type funcWriter func([]byte) (int, error)

func (w funcWriter) Write(data []byte) (int, error) {
	return w(data)
}
