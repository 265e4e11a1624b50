package topology

import "github.com/pkg/errors"

// Prober discovers the units behind a bus. Implementations add units,
// resources and bridged buses to the store as they go.
type Prober interface {
	// PCIHostBridge returns the unit code of the PCI host bridge, or 0 when
	// the machine has no PCI.
	PCIHostBridge() uint32
	EnumPCI(s *Store, bus *Bus) error
	EnumISAPnP(s *Store, bus *Bus) error
}

// EnumHostBus creates the host bus and hands the bus family that is present
// to the prober.
func EnumHostBus(s *Store, p Prober) error {
	host := s.AddBus(nil, BusTypeHost, 0)

	if code := p.PCIHostBridge(); code != 0 {
		bridge := s.AddUnit(host, ClassPCIHostBridge, code, 0)
		root := s.AddBus(bridge, BusTypePCI, 0)

		return errors.Wrap(p.EnumPCI(s, root), "enumerating pci bus")
	}

	bridge := s.AddUnit(host, ClassISABridge, 0, 0)
	isa := s.AddBus(bridge, BusTypeISA, 0)

	return errors.Wrap(p.EnumISAPnP(s, isa), "enumerating isa pnp")
}
