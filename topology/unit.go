package topology

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
)

const (
	// Class codes are laid out class:subclass:progif:revision, one byte
	// each. These are the bridges created by EnumHostBus.
	ClassPCIHostBridge uint32 = 0x06000000
	ClassISABridge     uint32 = 0x06010000

	unknownUnitName = "unknown"
)

var (
	ErrDeviceAttached = errors.New("unit already has a device")
)

// Unit is a discovered piece of hardware. Identity fields and resources
// are fixed once enumeration finishes; only the device reference is set
// later, by the device registry.
type Unit struct {
	ID     int
	Bus    *Bus
	Number int

	ClassCode uint32
	UnitCode  uint32

	ClassName   string
	VendorName  string
	ProductName string

	Resources []*Resource

	dev atomic.Int64 //device number + 1, 0 when none
}

// Name is the most specific human readable name known for the unit.
func (u *Unit) Name() string {
	if u.ProductName != "" {
		return u.ProductName
	}
	if u.ClassName != "" {
		return u.ClassName
	}

	return unknownUnitName
}

// AttachDevice records the device created for this unit. Only the first
// device is recorded.
func (u *Unit) AttachDevice(devno int) error {
	if !u.dev.CompareAndSwap(0, int64(devno)+1) {
		return ErrDeviceAttached
	}

	return nil
}

// Device returns the device number attached to the unit, if any.
func (u *Unit) Device() (int, bool) {
	d := u.dev.Load()
	if d == 0 {
		return 0, false
	}

	return int(d - 1), true
}

func (u *Unit) String() string {
	return fmt.Sprintf("%s/%d %08X %08X %s", u.Bus, u.Number, u.ClassCode, u.UnitCode, u.Name())
}
