package blockdev // import "github.com/keks/blockdev"

import (
	"io"
)

// Basic Types

// Whence selects the reference point of a Seek.
type Whence int

const (
	// SeekSet positions relative to the start of the device.
	SeekSet Whence = io.SeekStart
	// SeekCur positions relative to the current position.
	SeekCur Whence = io.SeekCurrent
	// SeekEnd positions relative to the end of the device.
	SeekEnd Whence = io.SeekEnd
)

func (w Whence) String() string {
	switch w {
	case SeekSet:
		return "SEEK_SET"
	case SeekCur:
		return "SEEK_CUR"
	case SeekEnd:
		return "SEEK_END"
	default:
		return "SEEK_?"
	}
}

// Flag holds the flags passed to Device.Open.
type Flag uint8

const (
	FlagRead Flag = 1 << iota
	FlagWrite
	FlagNonBlock

	FlagReadWrite = FlagRead | FlagWrite
)

// Request identifies an ioctl request.
type Request int32

const (
	// IoctlGetSize stores the device size in bytes in an *int64 argument.
	IoctlGetSize Request = iota + 1

	// IoctlGetBlockSize stores the device block size in bytes in an *int64 argument.
	IoctlGetBlockSize

	// IoctlSync commits cached writes to the backing store.
	IoctlSync

	// IoctlErase erases the block containing the current position.
	IoctlErase

	// reserved

	// IoctlUserBase is the lowest driver defined request.
	IoctlUserBase Request = 0x100
)

// Device Layer

// Device is the operation set every block driver supplies. The value
// implementing it is the driver's private state; nothing but the driver
// looks inside it.
//
// Read and Write move bytes at the device's current position and advance it.
// A short count is legal and is not an error. Operations never report an
// error after partially applying.
type Device interface {
	// Open prepares the device for use and returns the descriptor to use
	// from now on, usually d itself.
	Open(d *Descriptor, path string, flags Flag) (*Descriptor, error)
	Close() error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Ioctl(req Request, arg interface{}) error
	Seek(off int64, whence Whence) (int64, error)
}

// Initializer is implemented by drivers that have to bind a backing resource
// before the device becomes reachable. The registry calls Init exactly once.
type Initializer interface {
	Init(d *Descriptor) error
}

// Dispatch Layer

// Dispatcher forwards generic block operations to the driver behind a
// descriptor.
type Dispatcher interface {
	Read(d *Descriptor, p []byte) (int, error)
	Write(d *Descriptor, p []byte) (int, error)
	Ioctl(d *Descriptor, req Request, arg interface{}) error
	Seek(d *Descriptor, off int64, whence Whence) (int64, error)
}

// Resolver is a Dispatcher that can also look devices up by name.
type Resolver interface {
	Dispatcher
	Lookup(name string) (*Descriptor, error)
}
