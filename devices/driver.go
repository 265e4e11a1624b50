package devices

import "github.com/tcfw/kernel/services/go/devmgr/network"

// BlockNo addresses a block on block devices. Character and network
// devices ignore it.
type BlockNo uint64

// Driver is the operation table of a device. Operations are optional: a
// driver implements the capability interfaces below for the operations it
// supports, and the registry checks for each one before dispatching.
type Driver interface {
	DriverName() string
}

type Ioctler interface {
	Ioctl(dev *Device, cmd int, args []byte) (int, error)
}

type Reader interface {
	Read(dev *Device, buf []byte, blkno BlockNo) (int, error)
}

type Writer interface {
	Write(dev *Device, buf []byte, blkno BlockNo) (int, error)
}

// Attacher binds a network device to an interface. The driver writes the
// device's hardware address into hwaddr.
type Attacher interface {
	Attach(dev *Device, hwaddr network.MacAddress) error
}

type Detacher interface {
	Detach(dev *Device) error
}

type Transmitter interface {
	Transmit(dev *Device, p *network.Packet) error
}

// ReceiveFunc is registered by the network stack on attach and is called
// by drivers, through Registry.Receive, for every inbound packet.
type ReceiveFunc func(netif *network.Interface, p *network.Packet) error

// Common ioctl commands.
const (
	IoctlGetDevSize  = 1 // device size in blocks
	IoctlGetBlkSize  = 2 // block size in bytes
	IoctlGetGeometry = 3
)
