package topology

import "fmt"

type BusType uint32

const (
	// BusTypeNone is never carried by a bus. Binding rules with an
	// unrecognised bus token keep this value and so never match.
	BusTypeNone BusType = iota
	BusTypeHost
	BusTypePCI
	BusTypeISA
)

func (t BusType) String() string {
	switch t {
	case BusTypeHost:
		return "host"
	case BusTypePCI:
		return "pci"
	case BusTypeISA:
		return "isa"
	default:
		return "none"
	}
}

// Bus is a node in the hardware tree. Buses other than the host bus are
// produced by a bridge unit on their parent bus.
type Bus struct {
	ID     int
	Type   BusType
	Number int

	Self   *Unit //bridge unit that produced this bus; nil for the host bus
	Parent *Bus

	Bridges []*Bus
	Units   []*Unit
}

func (b *Bus) String() string {
	if b == nil {
		return "nobus"
	}

	return fmt.Sprintf("%s%d", b.Type, b.Number)
}
