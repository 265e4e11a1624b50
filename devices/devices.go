// Package devices is the runtime device table. Drivers create devices while
// they are installed; the rest of the kernel then opens devices by name and
// dispatches I/O through their stable device numbers.
package devices

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/tcfw/kernel/services/go/devmgr/internal/log"
	"github.com/tcfw/kernel/services/go/devmgr/network"
	"github.com/tcfw/kernel/services/go/devmgr/topology"
)

// DevNo is a device's index in the table. It never changes once assigned.
type DevNo int

const (
	NoDev DevNo = -1

	// MaxDevices is the default table capacity.
	MaxDevices = 64

	// Placeholder at the end of a name is replaced with the first free ordinal.
	Placeholder = '#'
)

type Device struct {
	No      DevNo
	Name    string
	Driver  Driver
	Unit    *topology.Unit
	Private any

	refcnt atomic.Int32

	mu      sync.Mutex
	netif   *network.Interface
	receive ReceiveFunc
}

// RefCount is the number of opens not yet closed.
func (d *Device) RefCount() int {
	return int(d.refcnt.Load())
}

// Netif is the interface the device is attached to, if any.
func (d *Device) Netif() *network.Interface {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.netif
}

// Registry is a fixed capacity, append only device table. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	capacity int
	devs     []*Device
}

func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = MaxDevices
	}

	return &Registry{
		capacity: capacity,
		devs:     make([]*Device, 0, capacity),
	}
}

func (r *Registry) Capacity() int {
	return r.capacity
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.devs)
}

// Devices returns a snapshot of the table in device number order.
func (r *Registry) Devices() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]*Device(nil), r.devs...)
}

// Device returns the device with number devno, or nil.
func (r *Registry) Device(devno DevNo) *Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if devno < 0 || int(devno) >= len(r.devs) {
		return nil
	}

	return r.devs[devno]
}

// Make adds a device to the table. If name ends with Placeholder, the
// placeholder is replaced by the lowest ordinal giving a name not already in
// the table ("eth#" -> "eth0", "eth1", ...). Names without a placeholder are
// used as given, even if another device already has that name.
//
// When unit is not nil the unit's device reference is set to the new device
// unless an earlier device already claimed it.
func (r *Registry) Make(name string, driver Driver, unit *topology.Unit, private any) (DevNo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.devs) >= r.capacity {
		return NoDev, errors.Wrapf(ErrCapacity, "creating %s", name)
	}

	if strings.HasSuffix(name, string(Placeholder)) {
		name = r.resolveName(strings.TrimSuffix(name, string(Placeholder)))
	}

	dev := &Device{
		No:      DevNo(len(r.devs)),
		Name:    name,
		Driver:  driver,
		Unit:    unit,
		Private: private,
	}

	if unit != nil {
		if err := unit.AttachDevice(int(dev.No)); err != nil {
			log.Debugf("unit '%s' already has a device, %s not recorded on it", unit.Name(), name)
		}
	}

	r.devs = append(r.devs, dev)

	log.Debugf("registered device: %s", name)

	return dev.No, nil
}

// resolveName must be called with r.mu held.
func (r *Registry) resolveName(prefix string) string {
	for n := 0; ; n++ {
		name := prefix + strconv.Itoa(n)
		if r.lookup(name) == nil {
			return name
		}
	}
}

func (r *Registry) lookup(name string) *Device {
	for _, dev := range r.devs {
		if dev.Name == name {
			return dev
		}
	}

	return nil
}

// Find returns the number of the first device called name without opening
// it, or NoDev.
func (r *Registry) Find(name string) DevNo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if dev := r.lookup(name); dev != nil {
		return dev.No
	}

	return NoDev
}

// Open looks a device up by name and takes a reference on it.
func (r *Registry) Open(name string) DevNo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev := r.lookup(name)
	if dev == nil {
		return NoDev
	}

	dev.refcnt.Add(1)

	return dev.No
}

// Close drops a reference taken by Open.
func (r *Registry) Close(devno DevNo) error {
	dev := r.Device(devno)
	if dev == nil {
		return ErrNoDevice
	}

	for {
		n := dev.refcnt.Load()
		if n == 0 {
			return ErrNotPermitted
		}

		if dev.refcnt.CompareAndSwap(n, n-1) {
			return nil
		}
	}
}
