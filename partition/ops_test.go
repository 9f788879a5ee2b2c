package partition

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keks/blockdev"
	"github.com/keks/blockdev/memdisk"
)

type op interface {
	Do(*testing.T, *Partition)
}

type writeOp struct {
	data []byte
	off  int64

	expN   int
	expErr error
}

func (op writeOp) Do(t *testing.T, p *Partition) {
	r := require.New(t)

	_, err := p.Seek(op.off, blockdev.SeekSet)
	r.NoError(err)

	n, err := p.Write(op.data)
	t.Logf("writeOp, n: %d, err: %v", n, err)

	r.Equal(op.expN, n)
	if op.expErr == nil {
		r.NoError(err)
	} else {
		r.True(errors.Is(err, op.expErr), "got %v", err)
	}
}

type readOp struct {
	off     int64
	readlen int

	exp    []byte
	expN   int
	expErr error
}

func (op readOp) Do(t *testing.T, p *Partition) {
	r := require.New(t)
	if op.readlen == 0 {
		op.readlen = len(op.exp)
	}

	_, err := p.Seek(op.off, blockdev.SeekSet)
	r.NoError(err)

	buf := make([]byte, op.readlen)
	n, err := p.Read(buf)

	if op.expErr == nil {
		r.NoError(err)
	} else {
		r.True(errors.Is(err, op.expErr), "got %v", err)
	}
	r.Equal(op.expN, n)
	r.True(bytes.Equal(buf[:op.expN], op.exp))
}

type seekOp struct {
	off    int64
	whence blockdev.Whence

	exp    int64
	expErr error
}

func (op seekOp) Do(t *testing.T, p *Partition) {
	pos, err := p.Seek(op.off, op.whence)
	if op.expErr != nil {
		require.True(t, errors.Is(err, op.expErr), "got %v", err)
		return
	}
	require.NoError(t, err)
	require.Equal(t, op.exp, pos)
}

// lowerOp checks the bytes the lower disk holds at off.
type lowerOp struct {
	off int

	exp []byte
}

func (op lowerOp) Do(t *testing.T, p *Partition) {
	disk, ok := p.lower.Device().(*memdisk.Disk)
	require.True(t, ok, "lower is %T", p.lower.Device())

	got := disk.Bytes()[op.off : op.off+len(op.exp)]
	require.True(t, bytes.Equal(op.exp, got), "lower at %d: %q", op.off, got)
}
