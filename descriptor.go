package blockdev

import (
	"sync"

	"github.com/pkg/errors"
)

// Descriptor binds a name to a driver and records how the device is layered.
// The driver is fixed at construction. Only the driver's own state and the
// layering links change afterwards.
type Descriptor struct {
	name string
	dev  Device

	// upper and lower are non-owning. nil means no device.
	upper *Descriptor
	lower *Descriptor

	// mu is the exclusive section around seek+transfer sequences.
	mu sync.Mutex
}

// NewDescriptor returns a descriptor named name driven by dev.
func NewDescriptor(name string, dev Device) *Descriptor {
	return &Descriptor{
		name: name,
		dev:  dev,
	}
}

// Name returns the name the device is addressed by.
func (d *Descriptor) Name() string {
	return d.name
}

// Device returns the driver behind the descriptor.
func (d *Descriptor) Device() Device {
	return d.dev
}

// Upper returns the device layered on top of d, if any.
func (d *Descriptor) Upper() (*Descriptor, bool) {
	return d.upper, d.upper != nil
}

// Lower returns the device d is layered on, if any.
func (d *Descriptor) Lower() (*Descriptor, bool) {
	return d.lower, d.lower != nil
}

// Lock enters the descriptor's exclusive section.
func (d *Descriptor) Lock() {
	d.mu.Lock()
}

// Unlock leaves the descriptor's exclusive section.
func (d *Descriptor) Unlock() {
	d.mu.Unlock()
}

func (d *Descriptor) String() string {
	return d.name
}

// Stack layers upper on top of lower. Both sides must be free and the result
// must not form a cycle.
func Stack(upper, lower *Descriptor) error {
	if upper == nil || lower == nil {
		return errors.Wrap(ErrLayered, "nil descriptor")
	}
	if upper == lower {
		return errors.Wrapf(ErrLayered, "%s on itself", upper.name)
	}
	if upper.lower != nil {
		return errors.Wrapf(ErrLayered, "%s already layered on %s", upper.name, upper.lower.name)
	}
	if lower.upper != nil {
		return errors.Wrapf(ErrLayered, "%s already below %s", lower.name, lower.upper.name)
	}

	for l := lower.lower; l != nil; l = l.lower {
		if l == upper {
			return errors.Wrapf(ErrLayered, "%s on %s forms a cycle", upper.name, lower.name)
		}
	}

	upper.lower = lower
	lower.upper = upper

	return nil
}

// Unstack removes the link between upper and the device below it.
func Unstack(upper *Descriptor) error {
	lower := upper.lower
	if lower == nil {
		return errors.Wrapf(ErrLayered, "%s is not layered", upper.name)
	}

	upper.lower = nil
	lower.upper = nil

	return nil
}
