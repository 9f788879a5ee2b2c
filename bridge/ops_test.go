package bridge

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type op interface {
	Do(*testing.T, *Bridge)
}

type openOp struct {
	name string
	f    **File

	expErr error
}

func (op openOp) Do(t *testing.T, b *Bridge) {
	f, err := b.Open(op.name)
	if op.expErr != nil {
		require.True(t, errors.Is(err, op.expErr), "open %s: got %v", op.name, err)
		return
	}
	require.NoError(t, err)
	require.Equal(t, uint64(0), f.Offset())

	*op.f = f
}

type closeOp struct {
	f **File

	expErr error
}

func (op closeOp) Do(t *testing.T, b *Bridge) {
	err := b.Close(*op.f)
	if op.expErr != nil {
		require.True(t, errors.Is(err, op.expErr), "got %v", err)
		return
	}
	require.NoError(t, err)
}

type writeOp struct {
	f    **File
	data []byte

	expN   int
	expOff uint64
	expErr error
}

func (op writeOp) Do(t *testing.T, b *Bridge) {
	r := require.New(t)

	n, err := b.Write(*op.f, op.data)
	t.Logf("writeOp, n: %d, err: %v", n, err)

	if op.expErr != nil {
		r.True(errors.Is(err, op.expErr), "got %v", err)
	} else {
		r.NoError(err)
	}
	r.Equal(op.expN, n)
	r.Equal(op.expOff, (*op.f).Offset())
}

type readOp struct {
	f       **File
	readlen int

	exp    []byte
	expN   int
	expOff uint64
	expErr error
}

func (op readOp) Do(t *testing.T, b *Bridge) {
	r := require.New(t)
	if op.readlen == 0 {
		op.readlen = len(op.exp)
	}

	buf := make([]byte, op.readlen)
	n, err := b.Read(*op.f, buf)
	t.Logf("readOp, n: %d, err: %v, buf: %q", n, err, buf[:n])

	if op.expErr != nil {
		r.True(errors.Is(err, op.expErr), "got %v", err)
	} else {
		r.NoError(err)
	}
	r.Equal(op.expN, n)
	r.True(bytes.Equal(buf[:op.expN], op.exp), "want %q, got %q", op.exp, buf[:op.expN])
	r.Equal(op.expOff, (*op.f).Offset())
}

type checkOp func(*testing.T)

func (op checkOp) Do(t *testing.T, b *Bridge) {
	op(t)
}
