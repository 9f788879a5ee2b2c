// Package modbusdev exposes a bank of Modbus holding registers as a block
// device. Each register holds two bytes, high byte first.
package modbusdev

import (
	"io"
	"time"

	"github.com/goburrow/modbus"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/keks/blockdev"
)

const (
	// MaxReadRegisters is the largest quantity a single read holding
	// registers request may ask for.
	MaxReadRegisters = 125

	// MaxWriteRegisters is the largest quantity a single write multiple
	// registers request may carry.
	MaxWriteRegisters = 123

	// RegisterSize is the number of bytes per register.
	RegisterSize = 2
)

var errUnbound = errors.New("modbusdev: not connected")

// Client is the part of a Modbus client the device needs. modbus.Client
// satisfies it.
type Client interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
}

type Config struct {
	Endpoint  string
	UnitID    uint8
	Address   uint16
	Registers uint16
	Timeout   time.Duration
}

// Device is a block device over Config.Registers holding registers starting
// at Config.Address.
type Device struct {
	cfg Config

	handler *modbus.TCPClientHandler
	client  Client

	pos   int64
	opens int
}

// New returns a device that connects to cfg.Endpoint on Init.
func New(cfg Config) *Device {
	return &Device{cfg: cfg}
}

// NewWithClient returns a device that talks through c.
func NewWithClient(cfg Config, c Client) *Device {
	return &Device{cfg: cfg, client: c}
}

func (dev *Device) size() int64 {
	return int64(dev.cfg.Registers) * RegisterSize
}

// Init connects to the endpoint unless the device already has a client.
func (dev *Device) Init(d *blockdev.Descriptor) error {
	if int(dev.cfg.Address)+int(dev.cfg.Registers) > 1<<16 {
		return errors.Errorf("modbusdev: registers %d+%d exceed the address space", dev.cfg.Address, dev.cfg.Registers)
	}
	if dev.client != nil {
		return nil
	}
	if dev.cfg.Endpoint == "" {
		return errors.New("modbusdev: endpoint required")
	}

	h := modbus.NewTCPClientHandler(dev.cfg.Endpoint)
	h.Timeout = dev.cfg.Timeout
	h.SlaveId = dev.cfg.UnitID

	if err := h.Connect(); err != nil {
		return errors.Wrapf(err, "modbusdev: connect %s", dev.cfg.Endpoint)
	}

	dev.handler = h
	dev.client = modbus.NewClient(h)

	glog.V(1).Infof("modbusdev: %s on %s unit %d, %d registers at %d",
		d.Name(), dev.cfg.Endpoint, dev.cfg.UnitID, dev.cfg.Registers, dev.cfg.Address)

	return nil
}

// Detach closes the connection opened by Init.
func (dev *Device) Detach() error {
	if dev.handler == nil {
		return nil
	}

	err := dev.handler.Close()
	dev.handler = nil
	dev.client = nil

	return err
}

func (dev *Device) Open(d *blockdev.Descriptor, path string, flags blockdev.Flag) (*blockdev.Descriptor, error) {
	if dev.client == nil {
		return nil, errUnbound
	}

	dev.opens++
	return d, nil
}

func (dev *Device) Close() error {
	if dev.opens == 0 {
		return blockdev.ErrNotOpen
	}

	dev.opens--
	return nil
}

// span clamps [pos, pos+n) to the device and to max registers and returns
// the first register and the register count it touches, along with the
// clamped byte count.
func (dev *Device) span(n int, max int64) (first, count int64, clamped int) {
	end := dev.pos + int64(n)
	if end > dev.size() {
		end = dev.size()
	}

	first = dev.pos / RegisterSize
	if limit := (first + max) * RegisterSize; end > limit {
		end = limit
	}

	count = (end+RegisterSize-1)/RegisterSize - first

	return first, count, int(end - dev.pos)
}

func (dev *Device) readRegisters(first, count int64) ([]byte, error) {
	raw, err := dev.client.ReadHoldingRegisters(dev.cfg.Address+uint16(first), uint16(count))
	if err != nil {
		return nil, errors.Wrapf(err, "read %d registers at %d", count, int64(dev.cfg.Address)+first)
	}
	if int64(len(raw)) < count*RegisterSize {
		return nil, errors.Errorf("read %d registers at %d: got %d bytes", count, int64(dev.cfg.Address)+first, len(raw))
	}

	return raw, nil
}

func (dev *Device) Read(p []byte) (int, error) {
	if dev.client == nil {
		return 0, errUnbound
	}
	if dev.pos >= dev.size() {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	first, count, n := dev.span(len(p), MaxReadRegisters)

	raw, err := dev.readRegisters(first, count)
	if err != nil {
		return 0, err
	}

	skip := dev.pos - first*RegisterSize
	copy(p[:n], raw[skip:])
	dev.pos += int64(n)

	return n, nil
}

func (dev *Device) Write(p []byte) (int, error) {
	if dev.client == nil {
		return 0, errUnbound
	}
	if len(p) == 0 {
		return 0, nil
	}
	if dev.pos >= dev.size() {
		return 0, errors.Wrapf(blockdev.ErrNoSpace, "write at %d", dev.pos)
	}

	first, count, n := dev.span(len(p), MaxWriteRegisters)
	skip := dev.pos - first*RegisterSize

	var buf []byte
	if skip != 0 || (skip+int64(n))%RegisterSize != 0 {
		// partial register at either edge
		raw, err := dev.readRegisters(first, count)
		if err != nil {
			return 0, err
		}
		buf = raw[:count*RegisterSize]
	} else {
		buf = make([]byte, count*RegisterSize)
	}

	copy(buf[skip:], p[:n])

	_, err := dev.client.WriteMultipleRegisters(dev.cfg.Address+uint16(first), uint16(count), buf)
	if err != nil {
		return 0, errors.Wrapf(err, "write %d registers at %d", count, int64(dev.cfg.Address)+first)
	}

	dev.pos += int64(n)

	return n, nil
}

func (dev *Device) Ioctl(req blockdev.Request, arg interface{}) error {
	switch req {
	case blockdev.IoctlGetSize:
		return blockdev.StoreInt64(req, arg, dev.size())
	case blockdev.IoctlGetBlockSize:
		return blockdev.StoreInt64(req, arg, RegisterSize)
	case blockdev.IoctlSync:
		return nil
	default:
		return blockdev.Unsupported(req)
	}
}

func (dev *Device) Seek(off int64, whence blockdev.Whence) (int64, error) {
	pos, err := blockdev.Resolve(off, whence, dev.pos, dev.size())
	if err != nil {
		return 0, err
	}
	if pos > dev.size() {
		return 0, errors.Wrapf(blockdev.ErrPositionFault, "%d beyond size %d", pos, dev.size())
	}

	dev.pos = pos
	return pos, nil
}
