package bridge

import (
	"github.com/keks/blockdev"
)

// spy wraps a device and records the positions it was sought to and the
// number of transfers it performed.
type spy struct {
	blockdev.Device

	seeks     []int64
	transfers int
	ioctls    []blockdev.Request
}

func (s *spy) Seek(off int64, whence blockdev.Whence) (int64, error) {
	pos, err := s.Device.Seek(off, whence)
	if err == nil {
		s.seeks = append(s.seeks, pos)
	}
	return pos, err
}

func (s *spy) Read(p []byte) (int, error) {
	s.transfers++
	return s.Device.Read(p)
}

func (s *spy) Write(p []byte) (int, error) {
	s.transfers++
	return s.Device.Write(p)
}

func (s *spy) Ioctl(req blockdev.Request, arg interface{}) error {
	s.ioctls = append(s.ioctls, req)
	return s.Device.Ioctl(req, arg)
}

// short moves at most max bytes per transfer.
type short struct {
	blockdev.Device
	max int
}

func (s *short) Read(p []byte) (int, error) {
	if len(p) > s.max {
		p = p[:s.max]
	}
	return s.Device.Read(p)
}

func (s *short) Write(p []byte) (int, error) {
	if len(p) > s.max {
		p = p[:s.max]
	}
	return s.Device.Write(p)
}

// drift reports a position off by delta from the one it was asked for,
// like a device that failed to reach the requested sector.
type drift struct {
	blockdev.Device
	delta int64
}

func (d *drift) Seek(off int64, whence blockdev.Whence) (int64, error) {
	pos, err := d.Device.Seek(off, whence)
	return pos + d.delta, err
}

// pattern returns n bytes of recognizable content.
func pattern(n int) []byte {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	out := make([]byte, n)
	for i := range out {
		out[i] = alphabet[i%len(alphabet)]
	}
	return out
}
