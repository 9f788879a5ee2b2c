package blockdev

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotFound indicates that no descriptor or binding matches the
	// addressed device or file.
	ErrNotFound = errors.New("device not found")

	// ErrUnsupported indicates an operation or ioctl request the driver
	// does not implement.
	ErrUnsupported = errors.New("unsupported request")

	// ErrNotImplemented is returned by placeholder drivers.
	ErrNotImplemented = errors.New("not implemented")

	// ErrPositionFault indicates that a seek could not reach the requested
	// position.
	ErrPositionFault = errors.New("position fault")

	// ErrExists indicates a second registration of the same name.
	ErrExists = errors.New("device already registered")

	// ErrNotOpen indicates Close on a device that is not open.
	ErrNotOpen = errors.New("device not open")

	// ErrNoSpace indicates a write at the end of a bounded device.
	ErrNoSpace = errors.New("no space left on device")

	// ErrLayered indicates an invalid layering request.
	ErrLayered = errors.New("invalid layering")

	// ErrInvalidWhence indicates an unknown whence value.
	ErrInvalidWhence = errors.New("invalid whence")
)

// Unsupported returns an ErrUnsupported annotated with req.
func Unsupported(req Request) error {
	return errors.Wrapf(ErrUnsupported, "request %#x", int32(req))
}

// PositionFault returns an ErrPositionFault annotated with the requested and
// the reached position.
func PositionFault(want, got int64) error {
	return errors.Wrapf(ErrPositionFault, "want %d, got %d", want, got)
}

// Resolve computes the absolute position of a seek on a device whose current
// position is cur and whose size is size. Negative results fail with
// ErrPositionFault.
func Resolve(off int64, whence Whence, cur, size int64) (int64, error) {
	var pos int64
	switch whence {
	case SeekSet:
		pos = off
	case SeekCur:
		pos = cur + off
	case SeekEnd:
		pos = size + off
	default:
		return 0, errors.Wrapf(ErrInvalidWhence, "%d", int(whence))
	}

	if pos < 0 {
		return 0, errors.Wrapf(ErrPositionFault, "negative position %d", pos)
	}

	return pos, nil
}
