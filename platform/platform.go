// Package platform brings up the block devices of a configuration: it
// builds every device, registers it, runs the init sweep and puts the bridge
// on top of the registry.
package platform

import (
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/keks/blockdev"
	"github.com/keks/blockdev/bridge"
	"github.com/keks/blockdev/config"
	"github.com/keks/blockdev/flash"
	"github.com/keks/blockdev/memdisk"
	"github.com/keks/blockdev/modbusdev"
	"github.com/keks/blockdev/partition"
	"github.com/keks/blockdev/registry"
)

// Platform is a running set of block devices.
type Platform struct {
	Registry *registry.Registry
	Bridge   *bridge.Bridge

	detach []detacher

	// descriptors layered on a lower device by add
	stacked []*blockdev.Descriptor
}

type detacher interface {
	Detach() error
}

// Build creates, registers and initializes the devices of cfg in reg, which
// must not have been initialized yet. cfg must have been validated and
// normalized.
//
// Devices whose init fails are left out and unlinked from their lower
// device; Build then returns the platform along with the combined init
// errors.
//
// If a device can not be built or registered, Build fails. The devices
// registered before it stay in reg, so a failed Build leaves reg unusable
// for another attempt.
func Build(cfg *config.Config, reg *registry.Registry) (*Platform, error) {
	p := &Platform{Registry: reg}

	for _, dc := range cfg.Devices {
		if err := p.add(dc); err != nil {
			p.Close()
			return nil, err
		}
	}

	initErr := reg.Init()
	if errors.Is(initErr, registry.ErrReinitialized) {
		p.Close()
		return nil, initErr
	}

	p.unstackDropped()

	p.Bridge = bridge.New(reg, cfg.FileTable())

	glog.Infof("platform: %d devices up, %d files", reg.Len(), len(cfg.Files))

	return p, initErr
}

func (p *Platform) add(dc config.DeviceConfig) error {
	if dc.Driver == config.DriverFlash {
		descs, err := flash.Register(p.Registry, flash.Config{
			Name:      dc.Name,
			Backing:   dc.Backing,
			Size:      dc.Size,
			BlockSize: dc.BlockSize,
		})
		for _, d := range descs {
			p.track(d.Device())
		}

		return err
	}

	var (
		dev   blockdev.Device
		lower *blockdev.Descriptor
	)
	if dc.Lower != "" {
		l, err := p.Registry.Lookup(dc.Lower)
		if err != nil {
			return errors.Wrapf(err, "device %q", dc.Name)
		}
		lower = l
	}

	switch dc.Driver {
	case config.DriverMemdisk:
		disk := memdisk.New(dc.Size)
		disk.SetBlockSize(dc.BlockSize)
		dev = disk

	case config.DriverPartition:
		// only the first partition on a device is layered on it, the
		// others name their lower device directly
		if lower == nil {
			return errors.Errorf("device %q: partition requires lower", dc.Name)
		}
		bind := lower
		if _, taken := lower.Upper(); !taken {
			bind = nil
		}

		if dc.Size == 0 {
			dev = partition.Header(p.Registry, bind, dc.Offset)
		} else {
			dev = partition.Window(p.Registry, bind, dc.Offset, dc.Size)
		}

	case config.DriverModbus:
		dev = modbusdev.New(modbusdev.Config{
			Endpoint:  dc.Endpoint,
			UnitID:    dc.UnitID,
			Address:   dc.Address,
			Registers: dc.Registers,
			Timeout:   dc.Timeout(),
		})

	default:
		return errors.Errorf("device %q: unknown driver %q", dc.Name, dc.Driver)
	}

	d := blockdev.NewDescriptor(dc.Name, dev)

	stacked := false
	if lower != nil {
		if _, taken := lower.Upper(); !taken {
			if err := blockdev.Stack(d, lower); err != nil {
				return errors.Wrapf(err, "device %q", dc.Name)
			}
			stacked = true
		}
	}

	if err := p.Registry.Register(d); err != nil {
		if stacked {
			err = multierr.Append(err, blockdev.Unstack(d))
		}
		return err
	}

	if stacked {
		p.stacked = append(p.stacked, d)
	}
	p.track(dev)

	return nil
}

// unstackDropped unlinks the layered devices the init sweep dropped, so
// their lower device has no upper again.
func (p *Platform) unstackDropped() {
	for _, d := range p.stacked {
		if reg, err := p.Registry.Lookup(d.Name()); err == nil && reg == d {
			continue
		}

		if err := blockdev.Unstack(d); err != nil {
			glog.Warningf("platform: unstack %s: %v", d.Name(), err)
			continue
		}
		glog.V(1).Infof("platform: %s dropped, unlinked from its lower device", d.Name())
	}
}

func (p *Platform) track(dev blockdev.Device) {
	if dt, ok := dev.(detacher); ok {
		p.detach = append(p.detach, dt)
	}
}

// Close releases the host resources held by the devices: backing files and
// network connections.
func (p *Platform) Close() error {
	var errs error
	for i := len(p.detach) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, p.detach[i].Detach())
	}
	p.detach = nil

	return errs
}
