package partition

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/keks/blockdev"
)

// TableHeaderSize is the size of the table header at the start of the
// device: the offset of the next free byte and the partition count.
const TableHeaderSize = 8 + 4

// ID identifies a partition by the offset of its header.
type ID int64

// TODO: free partitions again; Allocate only ever moves next forward.

// Table carves formatted partitions out of a device, one after the other.
type Table struct {
	l sync.Mutex

	disp  blockdev.Dispatcher
	lower *blockdev.Descriptor

	next  int64
	count uint32
}

// NewTable writes an empty table to lower.
func NewTable(disp blockdev.Dispatcher, lower *blockdev.Descriptor) (*Table, error) {
	t := &Table{
		disp:  disp,
		lower: lower,
		next:  TableHeaderSize,
	}

	return t, t.writeMeta()
}

// OpenTable reads the table stored on lower.
func OpenTable(disp blockdev.Dispatcher, lower *blockdev.Descriptor) (*Table, error) {
	t := &Table{
		disp:  disp,
		lower: lower,
	}

	meta := make([]byte, TableHeaderSize)
	if _, err := io.ReadFull(readerFromDevice(disp, lower, 0), meta); err != nil {
		return nil, errors.Wrap(err, "partition table")
	}

	t.next = int64(binary.LittleEndian.Uint64(meta))
	t.count = binary.LittleEndian.Uint32(meta[8:])

	if t.next < TableHeaderSize {
		return nil, errors.Errorf("partition table: bad next offset %d", t.next)
	}

	return t, nil
}

func (t *Table) writeMeta() error {
	meta := make([]byte, TableHeaderSize)

	binary.LittleEndian.PutUint64(meta, uint64(t.next))
	binary.LittleEndian.PutUint32(meta[8:], t.count)

	return writeFull(writerToDevice(t.disp, t.lower, 0), meta)
}

// Len returns the number of partitions allocated so far.
func (t *Table) Len() int {
	t.l.Lock()
	defer t.l.Unlock()

	return int(t.count)
}

// Allocate formats a new partition of size bytes, header included.
func (t *Table) Allocate(size int64) (ID, *Partition, error) {
	t.l.Lock()
	defer t.l.Unlock()

	var lowerSize int64
	switch err := t.disp.Ioctl(t.lower, blockdev.IoctlGetSize, &lowerSize); {
	case err == nil:
		if t.next+size > lowerSize {
			return 0, nil, errors.Wrapf(blockdev.ErrNoSpace, "%d bytes at %d on %s", size, t.next, t.lower.Name())
		}
	case !sizeUnknown(err):
		return 0, nil, err
	}

	id := ID(t.next)
	p, err := New(t.disp, t.lower, t.next, size)
	if err != nil {
		return 0, nil, err
	}

	t.next += size
	t.count++

	if err := t.writeMeta(); err != nil {
		return 0, nil, err
	}

	return id, p, nil
}

// Get opens the partition allocated under id.
func (t *Table) Get(id ID) (*Partition, error) {
	t.l.Lock()
	defer t.l.Unlock()

	if int64(id) < TableHeaderSize || int64(id) >= t.next {
		return nil, errors.Wrapf(blockdev.ErrNotFound, "partition %d", id)
	}

	return Load(t.disp, t.lower, int64(id))
}
