// Package registry keeps the table of live block devices and dispatches
// generic block operations to their drivers.
package registry

import (
	"sync"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/keks/blockdev"
)

// ErrReinitialized is returned by a second call to Init.
var ErrReinitialized = errors.New("registry already initialized")

// Registry holds descriptors in registration order.
type Registry struct {
	l sync.Mutex

	devs   []*blockdev.Descriptor
	byName map[string]*blockdev.Descriptor

	initialized bool
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byName: make(map[string]*blockdev.Descriptor),
	}
}

// Register appends d. Names are unique; a duplicate leaves the table as it
// was. Devices registered after Init are initialized right away.
func (r *Registry) Register(d *blockdev.Descriptor) error {
	r.l.Lock()
	_, exists := r.byName[d.Name()]
	initialized := r.initialized
	r.l.Unlock()

	if exists {
		return errors.Wrap(blockdev.ErrExists, d.Name())
	}

	// drivers may dispatch to their lower device while setting up, so the
	// table must not be locked here.
	if initialized {
		if err := initDevice(d); err != nil {
			return err
		}
	}

	r.l.Lock()
	defer r.l.Unlock()

	if _, ok := r.byName[d.Name()]; ok {
		return errors.Wrap(blockdev.ErrExists, d.Name())
	}

	r.devs = append(r.devs, d)
	r.byName[d.Name()] = d

	glog.V(1).Infof("registry: registered %s (%d devices)", d.Name(), len(r.devs))

	return nil
}

// Init runs every driver's setup routine once, in registration order.
// Devices whose setup fails are dropped from the table; the failures are
// returned together. Init can not be repeated.
func (r *Registry) Init() error {
	r.l.Lock()
	if r.initialized {
		r.l.Unlock()
		return ErrReinitialized
	}
	r.initialized = true

	sweep := make([]*blockdev.Descriptor, len(r.devs))
	copy(sweep, r.devs)
	r.l.Unlock()

	var errs error
	for _, d := range sweep {
		err := initDevice(d)
		if err == nil {
			continue
		}

		glog.Warningf("registry: dropping %s: %v", d.Name(), err)
		errs = multierr.Append(errs, err)

		r.l.Lock()
		delete(r.byName, d.Name())
		r.l.Unlock()
	}

	r.l.Lock()
	defer r.l.Unlock()

	live := make([]*blockdev.Descriptor, 0, len(r.devs))
	for _, d := range r.devs {
		if r.byName[d.Name()] == d {
			live = append(live, d)
		}
	}
	r.devs = live

	return errs
}

func initDevice(d *blockdev.Descriptor) error {
	ini, ok := d.Device().(blockdev.Initializer)
	if !ok {
		return nil
	}

	return errors.Wrapf(ini.Init(d), "init %s", d.Name())
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.l.Lock()
	defer r.l.Unlock()

	return len(r.devs)
}

// Devices returns the registered devices in registration order.
func (r *Registry) Devices() []*blockdev.Descriptor {
	r.l.Lock()
	defer r.l.Unlock()

	out := make([]*blockdev.Descriptor, len(r.devs))
	copy(out, r.devs)

	return out
}

// Lookup returns the device registered under name.
func (r *Registry) Lookup(name string) (*blockdev.Descriptor, error) {
	r.l.Lock()
	defer r.l.Unlock()

	d, ok := r.byName[name]
	if !ok {
		return nil, errors.Wrap(blockdev.ErrNotFound, name)
	}

	return d, nil
}

// driver returns the driver of d if d itself is registered.
func (r *Registry) driver(d *blockdev.Descriptor) (blockdev.Device, error) {
	if d == nil {
		return nil, errors.Wrap(blockdev.ErrNotFound, "nil descriptor")
	}

	r.l.Lock()
	reg, ok := r.byName[d.Name()]
	r.l.Unlock()

	if !ok || reg != d {
		return nil, errors.Wrap(blockdev.ErrNotFound, d.Name())
	}

	return d.Device(), nil
}

// Open forwards to the driver's Open.
func (r *Registry) Open(d *blockdev.Descriptor, path string, flags blockdev.Flag) (*blockdev.Descriptor, error) {
	dev, err := r.driver(d)
	if err != nil {
		return nil, err
	}

	return dev.Open(d, path, flags)
}

// Close forwards to the driver's Close.
func (r *Registry) Close(d *blockdev.Descriptor) error {
	dev, err := r.driver(d)
	if err != nil {
		return err
	}

	return dev.Close()
}

// Read forwards to the driver's Read.
func (r *Registry) Read(d *blockdev.Descriptor, p []byte) (int, error) {
	dev, err := r.driver(d)
	if err != nil {
		return 0, err
	}

	return dev.Read(p)
}

// Write forwards to the driver's Write.
func (r *Registry) Write(d *blockdev.Descriptor, p []byte) (int, error) {
	dev, err := r.driver(d)
	if err != nil {
		return 0, err
	}

	return dev.Write(p)
}

// Ioctl forwards to the driver's Ioctl.
func (r *Registry) Ioctl(d *blockdev.Descriptor, req blockdev.Request, arg interface{}) error {
	dev, err := r.driver(d)
	if err != nil {
		return err
	}

	return dev.Ioctl(req, arg)
}

// Seek forwards to the driver's Seek.
func (r *Registry) Seek(d *blockdev.Descriptor, off int64, whence blockdev.Whence) (int64, error) {
	dev, err := r.driver(d)
	if err != nil {
		return 0, err
	}

	return dev.Seek(off, whence)
}
