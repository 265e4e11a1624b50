package probe

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/tcfw/kernel/services/go/devmgr/topology"
)

var (
	ErrBadResource = errors.New("unknown resource type")
	ErrBadBusType  = errors.New("unknown bus type")
)

// HexCode is a class or unit code written as hex digits, with or without a
// 0x prefix. Plain YAML integers would read 02000000 as decimal.
type HexCode uint32

func (h *HexCode) UnmarshalYAML(node *yaml.Node) error {
	s := strings.TrimPrefix(strings.ToLower(node.Value), "0x")
	if s == "" {
		*h = 0
		return nil
	}

	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return errors.Wrapf(err, "line %d: bad hex code %q", node.Line, node.Value)
	}

	*h = HexCode(v)

	return nil
}

type ResourceDesc struct {
	Type     string `yaml:"type"`
	Start    uint64 `yaml:"start"`
	Len      uint64 `yaml:"len"`
	Prefetch bool   `yaml:"prefetch"`
	ReadOnly bool   `yaml:"readonly"`
}

type BridgeDesc struct {
	Type   string      `yaml:"type"`
	Number int         `yaml:"number"`
	Units  []*UnitDesc `yaml:"units"`
}

type UnitDesc struct {
	Class     HexCode         `yaml:"class"`
	Unit      HexCode         `yaml:"unit"`
	Slot      *int            `yaml:"slot"`
	ClassName string          `yaml:"class-name"`
	Vendor    string          `yaml:"vendor"`
	Product   string          `yaml:"product"`
	Resources []*ResourceDesc `yaml:"resources"`
	Bridge    *BridgeDesc     `yaml:"bridge"`
}

// MachineDesc describes a machine. A non-zero HostBridge makes it a PCI
// machine enumerated from PCI; otherwise ISA is enumerated.
type MachineDesc struct {
	HostBridge HexCode     `yaml:"host-bridge"`
	PCI        []*UnitDesc `yaml:"pci"`
	ISA        []*UnitDesc `yaml:"isa"`
}

// Static is a prober that replays a machine description.
type Static struct {
	Desc  MachineDesc
	Namer Namer
}

func LoadStatic(path string) (*Static, error) {
	d, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading topology")
	}

	return ParseStatic(d)
}

func ParseStatic(d []byte) (*Static, error) {
	s := &Static{}

	if err := yaml.Unmarshal(d, &s.Desc); err != nil {
		return nil, errors.Wrap(err, "parsing topology")
	}

	return s, nil
}

func (p *Static) PCIHostBridge() uint32 {
	return uint32(p.Desc.HostBridge)
}

func (p *Static) EnumPCI(s *topology.Store, bus *topology.Bus) error {
	return p.addUnits(s, bus, p.Desc.PCI)
}

func (p *Static) EnumISAPnP(s *topology.Store, bus *topology.Bus) error {
	return p.addUnits(s, bus, p.Desc.ISA)
}

func (p *Static) addUnits(s *topology.Store, bus *topology.Bus, descs []*UnitDesc) error {
	for i, desc := range descs {
		number := i
		if desc.Slot != nil {
			number = *desc.Slot
		}

		unit := s.AddUnit(bus, uint32(desc.Class), uint32(desc.Unit), number)
		unit.ClassName = desc.ClassName
		unit.VendorName = desc.Vendor
		unit.ProductName = desc.Product

		for _, r := range desc.Resources {
			if err := addResource(unit, r); err != nil {
				return errors.Wrapf(err, "unit %s", unit)
			}
		}

		if p.Namer != nil {
			p.Namer.NameUnit(unit)
		}

		if desc.Bridge == nil {
			continue
		}

		t, err := parseBusType(desc.Bridge.Type, bus.Type)
		if err != nil {
			return errors.Wrapf(err, "unit %s", unit)
		}

		child := s.AddBus(unit, t, desc.Bridge.Number)
		if err := p.addUnits(s, child, desc.Bridge.Units); err != nil {
			return err
		}
	}

	return nil
}

func addResource(unit *topology.Unit, r *ResourceDesc) error {
	var t topology.ResourceType

	switch strings.ToLower(r.Type) {
	case "io":
		t = topology.ResourceIO
	case "mem":
		t = topology.ResourceMem
	case "irq":
		t = topology.ResourceIRQ
	case "dma":
		t = topology.ResourceDMA
	default:
		return errors.Wrapf(ErrBadResource, "%q", r.Type)
	}

	var flags topology.ResourceFlags
	if r.Prefetch {
		flags |= topology.ResourceFlagPrefetchable
	}
	if r.ReadOnly {
		flags |= topology.ResourceFlagReadOnly
	}

	n := r.Len
	if n == 0 && (t == topology.ResourceIRQ || t == topology.ResourceDMA) {
		n = 1
	}

	unit.AddResource(t, flags, r.Start, n)

	return nil
}

// parseBusType defaults to the parent bus type.
func parseBusType(s string, parent topology.BusType) (topology.BusType, error) {
	switch strings.ToLower(s) {
	case "":
		return parent, nil
	case "pci":
		return topology.BusTypePCI, nil
	case "isa":
		return topology.BusTypeISA, nil
	default:
		return topology.BusTypeNone, errors.Wrapf(ErrBadBusType, "%q", s)
	}
}
