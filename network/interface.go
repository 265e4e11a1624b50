// Package network holds the types the device layer shares with the network
// stack: the interface a device is attached to and the packet buffers
// exchanged with it.
package network

import (
	"fmt"
	"sync/atomic"
)

type InterfaceFlags uint

const (
	InterfaceFlagUp        InterfaceFlags = 1 << iota // interface is administratively up
	InterfaceFlagLowerUp                              //interface has a carrier signal
	InterfaceFlagBroadcast                            // interface supports broadcast access capability
	InterfaceFlagMulticast                            // interface supports multicast access capability
	InterfaceFlagLoopback
)

// Interface is the network stack's view of an attached device.
type Interface struct {
	Index int
	Name  string
	MTU   int
	Flags InterfaceFlags

	// HardwareAddr is filled in by the driver when the interface is attached
	HardwareAddr MacAddress

	Stats InterfaceStatistics
}

type InterfaceStatistics struct {
	TXPackets   atomic.Uint64
	TXErr       atomic.Uint64
	TXDrop      atomic.Uint64
	TXBroadcast atomic.Uint64
	TXMulticast atomic.Uint64 // excluding broadcast

	RXPackets atomic.Uint64
	RXErr     atomic.Uint64
	RXDrop    atomic.Uint64
}

func NewInterface(index int, name string, mtu int) *Interface {
	return &Interface{
		Index:        index,
		Name:         name,
		MTU:          mtu,
		HardwareAddr: make(MacAddress, MacAddressLength),
	}
}

func (i *Interface) String() string {
	return fmt.Sprintf("%s(%d) %s mtu %d", i.Name, i.Index, i.HardwareAddr, i.MTU)
}
