// Package flash implements the flash block driver.
//
// Two implementations share the driver contract: Stub, which accepts Open and
// fails everything else with ErrNotImplemented, and File, which keeps the
// flash contents in a backing file on the host. Which one a device uses is
// decided by its configuration.
package flash

import (
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/keks/blockdev"
)

const (
	// DeviceName is the name of the first flash device.
	DeviceName = "hd/0"

	// DefaultBlockSize is the erase block size used when none is configured.
	DefaultBlockSize int64 = 512

	// Erased is the value of every byte of an erased block.
	Erased byte = 0xff
)

// Config describes one flash device.
type Config struct {
	Name string

	// Backing names the host file holding the flash contents. Empty selects
	// the placeholder driver.
	Backing string

	// Size is the flash size in bytes. 0 adopts the size of an existing
	// backing file.
	Size int64

	BlockSize int64
}

// New returns the driver selected by cfg.
func New(cfg Config) blockdev.Device {
	if cfg.Backing == "" {
		return &Stub{}
	}

	bs := cfg.BlockSize
	if bs <= 0 {
		bs = DefaultBlockSize
	}

	return &File{
		backing:   cfg.Backing,
		size:      cfg.Size,
		blockSize: bs,
	}
}

// Registrar is where flash devices are registered.
type Registrar interface {
	Register(*blockdev.Descriptor) error
}

// Register builds a descriptor per config and adds it to reg. A config
// without a name gets DeviceName. It returns the registered descriptors.
func Register(reg Registrar, cfgs ...Config) ([]*blockdev.Descriptor, error) {
	descs := make([]*blockdev.Descriptor, 0, len(cfgs))

	for _, cfg := range cfgs {
		name := cfg.Name
		if name == "" {
			name = DeviceName
		}

		d := blockdev.NewDescriptor(name, New(cfg))
		if err := reg.Register(d); err != nil {
			return descs, errors.Wrap(err, "flash")
		}

		glog.V(1).Infof("flash: %s registered (backing %q)", name, cfg.Backing)
		descs = append(descs, d)
	}

	return descs, nil
}

// Stub is the placeholder flash driver.
type Stub struct{}

func (*Stub) Open(d *blockdev.Descriptor, path string, flags blockdev.Flag) (*blockdev.Descriptor, error) {
	return d, nil
}

func (*Stub) Close() error {
	return blockdev.ErrNotImplemented
}

func (*Stub) Read(p []byte) (int, error) {
	return 0, blockdev.ErrNotImplemented
}

func (*Stub) Write(p []byte) (int, error) {
	return 0, blockdev.ErrNotImplemented
}

func (*Stub) Ioctl(req blockdev.Request, arg interface{}) error {
	return blockdev.ErrNotImplemented
}

func (*Stub) Seek(off int64, whence blockdev.Whence) (int64, error) {
	return 0, blockdev.ErrNotImplemented
}
