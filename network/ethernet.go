package network

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

//
// MAC addresses
//

const (
	MacAddressLength = 6
)

var (
	BroadcastMacAddress = MacAddress{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
)

type MacAddress []byte

// IsMcast reports whether the group bit is set. Broadcast is a group
// address too.
func (m MacAddress) IsMcast() bool {
	return len(m) > 0 && m[0]&0x01 != 0
}

func (m MacAddress) IsBcast() bool {
	return bytes.Equal(m, BroadcastMacAddress)
}

func (m MacAddress) Equals(addr MacAddress) bool {
	return bytes.Equal(m, addr)
}

func (m MacAddress) String() string {
	if len(m) != MacAddressLength {
		return "<invalid>"
	}

	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// EtherType is the big endian protocol field after the addresses.
type EtherType uint16

//
// Ethernet Frame
//

const (
	EthernetFrameMinSize = MacAddressLength + MacAddressLength + 2
)

type Ethernet []byte

func (e Ethernet) Valid() bool {
	return len(e) >= EthernetFrameMinSize
}

func (e Ethernet) DstMacAddress() MacAddress {
	return MacAddress(e[0:6])
}

func (e Ethernet) SetDstMacAddress(addr MacAddress) {
	copy(e[0:], addr)
}

func (e Ethernet) SrcMacAddress() MacAddress {
	return MacAddress(e[6:12])
}

func (e Ethernet) SetSrcMacAddress(addr MacAddress) {
	copy(e[6:], addr)
}

func (e Ethernet) EtherType() EtherType {
	return EtherType(binary.BigEndian.Uint16(e[12:]))
}

func (e Ethernet) SetEtherType(t EtherType) {
	binary.BigEndian.PutUint16(e[12:], uint16(t))
}

func (e Ethernet) Payload() []byte {
	return e[14:]
}
