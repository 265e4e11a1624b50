package network

import (
	"sync"
	"sync/atomic"
)

const (
	DefaultFrameSize = 1518
)

var (
	getPacketCount      atomic.Uint64
	returnedPacketCount atomic.Uint64
)

// Packet is a frame passed between the network stack and a device.
type Packet struct {
	Frame     []byte
	SrcDevice *Interface

	//Done a callback set by the originating device to mark
	//when the frame can be reused (e.g. added back to a pool or ring buffer)
	Done func()
}

func (p *Packet) reset() {
	p.Frame = p.Frame[:0]
	p.SrcDevice = nil
}

// Ethernet views the frame as an ethernet header and payload.
func (p *Packet) Ethernet() Ethernet {
	return Ethernet(p.Frame)
}

var packetPool = sync.Pool{
	New: func() any {
		p := new(Packet)
		p.Frame = make([]byte, 0, DefaultFrameSize)

		return p
	},
}

// GetPacket takes an empty packet from the pool. Calling Done returns it.
func GetPacket() *Packet {
	p := packetPool.Get().(*Packet)
	p.Done = func() {
		packetPool.Put(p)
		returnedPacketCount.Add(1)
	}

	p.reset()

	getPacketCount.Add(1)

	return p
}

// NewPacket copies frame into a pooled packet.
func NewPacket(frame []byte) *Packet {
	p := GetPacket()
	p.Frame = append(p.Frame, frame...)

	return p
}

// DropPacket counts the drop against the source interface and releases p.
func DropPacket(p *Packet) {
	if p.SrcDevice != nil {
		p.SrcDevice.Stats.RXDrop.Add(1)
	}

	if p.Done != nil {
		p.Done()
	}
}

// OutstandingPackets is the number of pooled packets not yet released.
func OutstandingPackets() uint64 {
	return getPacketCount.Load() - returnedPacketCount.Load()
}
