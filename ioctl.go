package blockdev

import (
	"github.com/pkg/errors"
)

// StoreInt64 stores v in arg, which must be a non-nil *int64. It is the reply
// path of the size-like ioctl requests.
func StoreInt64(req Request, arg interface{}, v int64) error {
	p, ok := arg.(*int64)
	if !ok || p == nil {
		return errors.Wrapf(ErrUnsupported, "request %#x wants *int64, got %T", int32(req), arg)
	}

	*p = v
	return nil
}
