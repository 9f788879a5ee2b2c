package memdisk

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keks/blockdev"
)

func TestUnbounded(t *testing.T) {
	r := require.New(t)
	d := New(0)

	n, err := d.Write([]byte("test"))
	r.NoError(err)
	r.Equal(4, n)
	r.Equal(int64(4), d.Position())

	// writing past the end fills the gap with zeros
	pos, err := d.Seek(2, blockdev.SeekEnd)
	r.NoError(err)
	r.Equal(int64(6), pos)

	n, err = d.Write([]byte("xy"))
	r.NoError(err)
	r.Equal(2, n)
	r.Equal([]byte("test\x00\x00xy"), d.Bytes())

	_, err = d.Seek(0, blockdev.SeekSet)
	r.NoError(err)

	buf := make([]byte, 16)
	n, err = d.Read(buf)
	r.NoError(err)
	r.Equal(8, n)

	n, err = d.Read(buf)
	r.Equal(io.EOF, err)
	r.Equal(0, n)
}

func TestBounded(t *testing.T) {
	r := require.New(t)
	d := New(8)

	_, err := d.Seek(6, blockdev.SeekSet)
	r.NoError(err)

	// clamped, not failed
	n, err := d.Write([]byte("test"))
	r.NoError(err)
	r.Equal(2, n)
	r.Equal(int64(8), d.Position())

	n, err = d.Write([]byte("test"))
	r.True(errors.Is(err, blockdev.ErrNoSpace))
	r.Equal(0, n)

	_, err = d.Seek(9, blockdev.SeekSet)
	r.True(errors.Is(err, blockdev.ErrPositionFault))
	r.Equal(int64(8), d.Position())

	_, err = d.Seek(-1, blockdev.SeekSet)
	r.True(errors.Is(err, blockdev.ErrPositionFault))

	pos, err := d.Seek(-2, blockdev.SeekEnd)
	r.NoError(err)
	r.Equal(int64(6), pos)

	buf := make([]byte, 4)
	n, err = d.Read(buf)
	r.NoError(err)
	r.Equal(2, n)
	r.Equal([]byte("te"), buf[:n])
}

func TestIoctl(t *testing.T) {
	r := require.New(t)
	d := NewFromBytes(make([]byte, 4096))
	d.SetBlockSize(1024)

	var v int64
	r.NoError(d.Ioctl(blockdev.IoctlGetSize, &v))
	r.Equal(int64(4096), v)
	r.NoError(d.Ioctl(blockdev.IoctlGetBlockSize, &v))
	r.Equal(int64(1024), v)
	r.NoError(d.Ioctl(blockdev.IoctlSync, nil))

	r.True(errors.Is(d.Ioctl(blockdev.IoctlGetSize, nil), blockdev.ErrUnsupported))
	r.True(errors.Is(d.Ioctl(blockdev.IoctlErase, nil), blockdev.ErrUnsupported))
	r.True(errors.Is(d.Ioctl(blockdev.IoctlUserBase+1, nil), blockdev.ErrUnsupported))
}

func TestUnboundedSize(t *testing.T) {
	r := require.New(t)
	d := New(0)

	var v int64
	r.True(errors.Is(d.Ioctl(blockdev.IoctlGetSize, &v), blockdev.ErrUnsupported))

	_, err := d.Write([]byte("test"))
	r.NoError(err)
	r.True(errors.Is(d.Ioctl(blockdev.IoctlGetSize, &v), blockdev.ErrUnsupported))
	r.Equal(int64(4), d.Size())
}

func TestOpenClose(t *testing.T) {
	r := require.New(t)
	d := New(0)
	desc := blockdev.NewDescriptor("ram/0", d)

	r.True(errors.Is(d.Close(), blockdev.ErrNotOpen))

	got, err := d.Open(desc, "", blockdev.FlagReadWrite)
	r.NoError(err)
	r.True(got == desc)

	r.NoError(d.Close())
	r.True(errors.Is(d.Close(), blockdev.ErrNotOpen))
}
