package network

import (
	"bytes"
	"testing"
)

func TestNewPacketCopiesFrame(t *testing.T) {
	frame := []byte{1, 2, 3, 4}
	p := NewPacket(frame)
	frame[0] = 9

	if !bytes.Equal(p.Frame, []byte{1, 2, 3, 4}) {
		t.Fatal("packet should hold a copy of the frame")
	}

	p.Done()
}

func TestDropPacketCountsAgainstSource(t *testing.T) {
	netif := NewInterface(1, "eth0", 1500)

	p := GetPacket()
	p.SrcDevice = netif
	DropPacket(p)

	if netif.Stats.RXDrop.Load() != 1 {
		t.Fatal("expected drop to be counted")
	}
}

func TestGetPacketIsReset(t *testing.T) {
	p := GetPacket()
	p.Frame = append(p.Frame, 1, 2, 3)
	p.SrcDevice = NewInterface(1, "eth0", 1500)
	p.Done()

	p = GetPacket()
	if len(p.Frame) != 0 || p.SrcDevice != nil {
		t.Fatal("pooled packet was not reset")
	}
	p.Done()
}
