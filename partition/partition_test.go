package partition

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keks/blockdev"
	"github.com/keks/blockdev/memdisk"
	"github.com/keks/blockdev/registry"
)

func newDisk(t *testing.T, size int64) (*registry.Registry, *memdisk.Disk, *blockdev.Descriptor) {
	reg := registry.New()
	disk := memdisk.New(size)
	d := blockdev.NewDescriptor("disk", disk)
	require.NoError(t, reg.Register(d))

	return reg, disk, d
}

func layer(t *testing.T, reg *registry.Registry, lower *blockdev.Descriptor, name string, p *Partition) *blockdev.Descriptor {
	d := blockdev.NewDescriptor(name, p)
	require.NoError(t, blockdev.Stack(d, lower))
	require.NoError(t, reg.Register(d))

	return d
}

func TestWindow(t *testing.T) {
	type testcase struct {
		name string
		off  int64
		size int64
		ops  []op
	}

	mktest := func(tc testcase) func(*testing.T) {
		return func(t *testing.T) {
			reg, _, disk := newDisk(t, 4096)
			p := Window(reg, nil, tc.off, tc.size)
			layer(t, reg, disk, "disk/p0", p)
			require.NoError(t, reg.Init())

			for _, op := range tc.ops {
				op.Do(t, p)
			}
		}
	}

	var tcs = []testcase{
		{
			name: "set then get",
			off:  100,
			size: 1 << 10,
			ops: []op{
				writeOp{
					data: []byte("test"),
					off:  0,
					expN: 4,
				},
				readOp{
					off:  0,
					exp:  []byte("test"),
					expN: 4,
				},
				lowerOp{
					off: 100,
					exp: []byte("test"),
				},
				lowerOp{
					off: 96,
					exp: []byte{0, 0, 0, 0},
				},
			},
		},
		{
			name: "set long then get short",
			off:  100,
			size: 1 << 10,
			ops: []op{
				writeOp{
					data: []byte("testtest"),
					off:  0,
					expN: 8,
				},
				readOp{
					off:  0,
					exp:  []byte("test"),
					expN: 4,
				},
			},
		},
		{
			name: "write over window end",
			off:  100,
			size: 1 << 10,
			ops: []op{
				writeOp{
					data: []byte("test"),
					off:  (1 << 10) - 2,
					expN: 2,
				},
				readOp{
					off:     (1 << 10) - 2,
					expN:    2,
					exp:     []byte("te"),
					readlen: 4,
				},
				lowerOp{
					off: 100 + (1 << 10) - 2,
					exp: []byte{'t', 'e', 0, 0},
				},
			},
		},
		{
			name: "write at window end",
			off:  100,
			size: 1 << 10,
			ops: []op{
				writeOp{
					data:   []byte("test"),
					off:    1 << 10,
					expN:   0,
					expErr: blockdev.ErrNoSpace,
				},
			},
		},
		{
			name: "read after window end",
			off:  100,
			size: 1 << 10,
			ops: []op{
				writeOp{
					data: bytes.Repeat([]byte("test"), 1<<8),
					off:  0,
					expN: 1 << 10,
				},
				readOp{
					off:     1 << 10,
					expN:    0,
					expErr:  io.EOF,
					exp:     []byte(""),
					readlen: 4,
				},
			},
		},
		{
			name: "seek",
			off:  0,
			size: 16,
			ops: []op{
				seekOp{off: 4, whence: blockdev.SeekSet, exp: 4},
				seekOp{off: 4, whence: blockdev.SeekCur, exp: 8},
				seekOp{off: -1, whence: blockdev.SeekEnd, exp: 15},
				seekOp{off: 1, whence: blockdev.SeekEnd, expErr: blockdev.ErrPositionFault},
				seekOp{off: -20, whence: blockdev.SeekCur, expErr: blockdev.ErrPositionFault},
			},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, mktest(tc))
	}
}

func TestWindowsDoNotOverlap(t *testing.T) {
	r := require.New(t)
	reg, disk, d := newDisk(t, 64)

	a := Window(reg, nil, 0, 32)
	layer(t, reg, d, "disk/a", a)

	// the disk has its upper already; b names its lower itself
	b := Window(reg, d, 32, 32)
	bd := blockdev.NewDescriptor("disk/b", b)
	r.True(errors.Is(blockdev.Stack(bd, d), blockdev.ErrLayered))
	r.NoError(reg.Register(bd))
	r.NoError(reg.Init())

	n, err := a.Write(bytes.Repeat([]byte{'a'}, 40))
	r.NoError(err)
	r.Equal(32, n)

	n, err = b.Write(bytes.Repeat([]byte{'b'}, 40))
	r.NoError(err)
	r.Equal(32, n)

	exp := append(bytes.Repeat([]byte{'a'}, 32), bytes.Repeat([]byte{'b'}, 32)...)
	r.Equal(exp, disk.Bytes())
}

func TestWindowInit(t *testing.T) {
	r := require.New(t)
	reg, _, d := newDisk(t, 4096)

	layer(t, reg, d, "disk/fits", Window(reg, nil, 3072, 1024))
	r.NoError(reg.Register(blockdev.NewDescriptor("disk/over", Window(reg, d, 3073, 1024))))
	r.NoError(reg.Register(blockdev.NewDescriptor("disk/unbound", Window(reg, nil, 0, 16))))

	err := reg.Init()
	r.Error(err)
	r.True(errors.Is(err, blockdev.ErrPositionFault), "got %v", err)
	r.Contains(err.Error(), "no lower device")

	_, err = reg.Lookup("disk/fits")
	r.NoError(err)
	_, err = reg.Lookup("disk/over")
	r.True(errors.Is(err, blockdev.ErrNotFound))
	_, err = reg.Lookup("disk/unbound")
	r.True(errors.Is(err, blockdev.ErrNotFound))
}

func TestHeader(t *testing.T) {
	r := require.New(t)
	reg, disk, d := newDisk(t, 1024)
	r.NoError(reg.Init())

	p, err := New(reg, d, 16, 512)
	r.NoError(err)
	r.Equal(int64(20), p.Offset())
	r.Equal(int64(512-HeaderSize), p.Size())
	r.Equal(uint32(512), binary.LittleEndian.Uint32(disk.Bytes()[16:]))

	n, err := p.Write([]byte("payload"))
	r.NoError(err)
	r.Equal(7, n)
	r.Equal([]byte("payload"), disk.Bytes()[20:27])

	loaded, err := Load(reg, d, 16)
	r.NoError(err)
	r.Equal(p.Offset(), loaded.Offset())
	r.Equal(p.Size(), loaded.Size())

	// the same partition, set up through the registry
	hp := Header(reg, nil, 16)
	layer(t, reg, d, "disk/p0", hp)
	r.Equal(p.Size(), hp.Size())

	buf := make([]byte, 7)
	_, err = hp.Read(buf)
	r.NoError(err)
	r.Equal("payload", string(buf))

	_, err = New(reg, d, 0, HeaderSize-1)
	r.Error(err)
	_, err = Load(reg, d, 900)
	r.Error(err)
}

func TestIoctl(t *testing.T) {
	r := require.New(t)
	reg, disk, d := newDisk(t, 4096)
	disk.SetBlockSize(256)

	p := Window(reg, nil, 1000, 100)
	layer(t, reg, d, "disk/p0", p)
	r.NoError(reg.Init())

	var v int64
	r.NoError(p.Ioctl(blockdev.IoctlGetSize, &v))
	r.Equal(int64(100), v)
	r.NoError(p.Ioctl(blockdev.IoctlGetBlockSize, &v))
	r.Equal(int64(256), v)

	// forwarded requests see the lower device positioned inside the window
	_, err := p.Seek(10, blockdev.SeekSet)
	r.NoError(err)
	r.NoError(p.Ioctl(blockdev.IoctlSync, nil))
	r.Equal(int64(1010), disk.Position())

	r.True(errors.Is(p.Ioctl(blockdev.IoctlErase, nil), blockdev.ErrUnsupported))
	r.True(errors.Is(p.Ioctl(blockdev.IoctlGetSize, nil), blockdev.ErrUnsupported))
}

func TestOpenClose(t *testing.T) {
	r := require.New(t)
	reg, _, d := newDisk(t, 64)

	unbound := Window(reg, nil, 0, 16)
	_, err := unbound.Open(blockdev.NewDescriptor("x", unbound), "", blockdev.FlagRead)
	r.Error(err)

	p := Window(reg, nil, 0, 16)
	pd := layer(t, reg, d, "disk/p0", p)
	r.NoError(reg.Init())

	got, err := reg.Open(pd, "", blockdev.FlagReadWrite)
	r.NoError(err)
	r.True(got == pd)
	r.NoError(reg.Close(pd))
	r.True(errors.Is(reg.Close(pd), blockdev.ErrNotOpen))
}

func TestWindowOnGrowingDisk(t *testing.T) {
	r := require.New(t)
	reg, disk, d := newDisk(t, 0)

	p := Window(reg, nil, 16, 1024)
	layer(t, reg, d, "disk/p0", p)
	r.NoError(reg.Init())

	n, err := p.Write([]byte("grown"))
	r.NoError(err)
	r.Equal(5, n)
	r.Equal(int64(21), disk.Size())
	r.Equal([]byte("grown"), disk.Bytes()[16:])

	tbl, err := NewTable(reg, d)
	r.NoError(err)
	_, _, err = tbl.Allocate(4096)
	r.NoError(err)
}

// placeholder answers every request with ErrNotImplemented.
type placeholder struct{ blockdev.Device }

func (placeholder) Ioctl(blockdev.Request, interface{}) error {
	return blockdev.ErrNotImplemented
}

func TestSizeUnknown(t *testing.T) {
	r := require.New(t)
	reg := registry.New()
	d := blockdev.NewDescriptor("hd/0", placeholder{memdisk.New(0)})
	r.NoError(reg.Register(d))
	r.NoError(reg.Init())

	p := Window(reg, nil, 0, 64)
	layer(t, reg, d, "hd/0p0", p)

	tbl, err := NewTable(reg, d)
	r.NoError(err)
	id, _, err := tbl.Allocate(64)
	r.NoError(err)
	r.Equal(ID(TableHeaderSize), id)
}
