package devices

import "github.com/pkg/errors"

var (
	ErrNoDevice        = errors.New("no such device")
	ErrNotPermitted    = errors.New("operation not permitted")
	ErrNotImplemented  = errors.New("function not implemented")
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCapacity means the device table is full. At boot this is fatal.
	ErrCapacity = errors.New("too many devices")
)
