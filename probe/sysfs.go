package probe

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jaypipes/ghw"
	"github.com/jaypipes/ghw/pkg/option"
	"github.com/jaypipes/ghw/pkg/pci/address"
	"github.com/jaypipes/pcidb"
	"github.com/pkg/errors"

	"github.com/tcfw/kernel/services/go/devmgr/internal/log"
	"github.com/tcfw/kernel/services/go/devmgr/topology"
)

const (
	pciDevicesPath = "sys/bus/pci/devices"
	pnpDevicesPath = "sys/bus/pnp/devices"

	// resource file flags, include/linux/ioport.h
	ioresourceIO       = 0x00000100
	ioresourceMem      = 0x00000200
	ioresourcePrefetch = 0x00002000
	ioresourceReadOnly = 0x00004000
	ioresourceMem64    = 0x00100000

	classBridgeMask uint32 = 0xFFFF0000
	classPCIBridge  uint32 = 0x06040000
)

// Sysfs probes the running Linux system. Root is the filesystem root the
// sysfs tree is read under, "/" normally.
type Sysfs struct {
	Root string
	DB   *pcidb.PCIDB

	devices []*ghw.PCIDevice
}

func NewSysfs(root string, db *pcidb.PCIDB) *Sysfs {
	if root == "" {
		root = "/"
	}

	return &Sysfs{Root: root, DB: db}
}

func (p *Sysfs) pciDevices() ([]*ghw.PCIDevice, error) {
	if p.devices != nil {
		return p.devices, nil
	}

	opts := []*option.Option{option.WithChroot(p.Root)}
	if p.DB != nil {
		opts = append(opts, option.WithPCIDB(p.DB))
	}

	info, err := ghw.PCI(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "could not retrieve PCI information")
	}

	devs := append([]*ghw.PCIDevice(nil), info.Devices...)
	sort.Slice(devs, func(i, j int) bool { return devs[i].Address < devs[j].Address })
	p.devices = devs

	return devs, nil
}

// PCIHostBridge returns the unit code of the bridge at 00:00.0, or 0 when
// the system has no PCI devices.
func (p *Sysfs) PCIHostBridge() uint32 {
	devs, err := p.pciDevices()
	if err != nil {
		log.WithError(err).Debug("no pci")
		return 0
	}

	if hb := hostBridge(devs); hb != nil {
		return pciUnitCode(hb)
	}

	return 0
}

// hostBridge picks the function standing for the host bridge: 00:00.0, or
// the first function when there is none at that address.
func hostBridge(devs []*ghw.PCIDevice) *ghw.PCIDevice {
	if len(devs) == 0 {
		return nil
	}

	for _, dev := range devs {
		addr := address.FromString(dev.Address)
		if addr != nil && addr.Bus == "00" && addr.Device == "00" && addr.Function == "0" {
			return dev
		}
	}

	return devs[0]
}

// EnumPCI adds every PCI function below root. Functions behind PCI-PCI
// bridges are placed on the bridge's secondary bus.
func (p *Sysfs) EnumPCI(s *topology.Store, root *topology.Bus) error {
	devs, err := p.pciDevices()
	if err != nil {
		return err
	}

	p.addPCIDevices(s, root, devs)

	return nil
}

// addPCIDevices skips the host bridge function, which already has its unit
// on the host bus.
func (p *Sysfs) addPCIDevices(s *topology.Store, root *topology.Bus, devs []*ghw.PCIDevice) {
	buses := map[uint64]*topology.Bus{uint64(root.Number): root}
	hb := hostBridge(devs)

	for _, dev := range devs {
		if dev == hb {
			continue
		}

		addr := address.FromString(dev.Address)
		if addr == nil {
			log.Warnf("skipping pci device with bad address %q", dev.Address)
			continue
		}

		busNo, _ := strconv.ParseUint(addr.Bus, 16, 8)
		bus, ok := buses[busNo]
		if !ok {
			log.Warnf("pci device %s is on unknown bus %02x", dev.Address, busNo)
			continue
		}

		devNo, _ := strconv.ParseUint(addr.Device, 16, 8)
		fnNo, _ := strconv.ParseUint(addr.Function, 16, 8)

		dir := filepath.Join(p.Root, pciDevicesPath, dev.Address)
		unit := s.AddUnit(bus, p.classCode(dir, dev), pciUnitCode(dev), int(devNo<<3|fnNo))
		nameFromPCIDevice(unit, dev)

		if err := readPCIResources(unit, dir); err != nil {
			log.WithError(err).Warnf("reading resources of %s", dev.Address)
		}

		if unit.ClassCode&classBridgeMask != classPCIBridge {
			continue
		}

		secondary, err := secondaryBus(dir)
		if err != nil {
			log.WithError(err).Warnf("reading secondary bus of bridge %s", dev.Address)
			continue
		}

		buses[secondary] = s.AddBus(unit, topology.BusTypePCI, int(secondary))
	}
}

// classCode combines the sysfs class and revision files, falling back to
// the ids ghw reports.
func (p *Sysfs) classCode(dir string, dev *ghw.PCIDevice) uint32 {
	class, err := readHexFile(filepath.Join(dir, "class"))
	if err != nil {
		class = 0
		if dev.Class != nil {
			class = parseHex(dev.Class.ID) << 16
		}
		if dev.Subclass != nil {
			class |= parseHex(dev.Subclass.ID) << 8
		}
		if dev.ProgrammingInterface != nil {
			class |= parseHex(dev.ProgrammingInterface.ID)
		}
	}

	rev, _ := readHexFile(filepath.Join(dir, "revision"))

	return class<<8 | rev&0xFF
}

func pciUnitCode(dev *ghw.PCIDevice) uint32 {
	var vendor, product uint32
	if dev.Vendor != nil {
		vendor = parseHex(dev.Vendor.ID)
	}
	if dev.Product != nil {
		product = parseHex(dev.Product.ID)
	}

	return vendor<<16 | product&0xFFFF
}

func nameFromPCIDevice(u *topology.Unit, dev *ghw.PCIDevice) {
	if dev.Vendor != nil && dev.Vendor.Name != "unknown" {
		u.VendorName = dev.Vendor.Name
	}
	if dev.Product != nil && dev.Product.Name != "unknown" {
		u.ProductName = dev.Product.Name
	}
	if dev.Subclass != nil && dev.Subclass.Name != "unknown" {
		u.ClassName = dev.Subclass.Name
	} else if dev.Class != nil && dev.Class.Name != "unknown" {
		u.ClassName = dev.Class.Name
	}
}

func parseHex(s string) uint32 {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(s), "0x"), 16, 32)
	if err != nil {
		return 0
	}

	return uint32(v)
}

func readHexFile(path string) (uint32, error) {
	d, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(string(d)), "0x"), 16, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing %s", path)
	}

	return uint32(v), nil
}

// readPCIResources reads the BARs from the resource file and the interrupt
// line from the irq file.
func readPCIResources(u *topology.Unit, dir string) error {
	f, err := os.Open(filepath.Join(dir, "resource"))
	if err != nil {
		return err
	}
	defer f.Close()

	if err := parseResourceFile(u, f); err != nil {
		return err
	}

	d, err := os.ReadFile(filepath.Join(dir, "irq"))
	if err != nil {
		return nil
	}

	if irq, err := strconv.Atoi(strings.TrimSpace(string(d))); err == nil && irq > 0 {
		u.AddResource(topology.ResourceIRQ, 0, uint64(irq), 1)
	}

	return nil
}

// parseResourceFile reads lines of "start end flags" in hex. Unused BARs
// are all zero.
func parseResourceFile(u *topology.Unit, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 3 {
			continue
		}

		start, err1 := strconv.ParseUint(fields[0], 0, 64)
		end, err2 := strconv.ParseUint(fields[1], 0, 64)
		flags, err3 := strconv.ParseUint(fields[2], 0, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return errors.Errorf("bad resource line %q", sc.Text())
		}

		if end == 0 || end < start {
			continue
		}

		var t topology.ResourceType
		switch {
		case flags&ioresourceIO != 0:
			t = topology.ResourceIO
		case flags&ioresourceMem != 0:
			t = topology.ResourceMem
		default:
			continue
		}

		var rflags topology.ResourceFlags
		if flags&ioresourcePrefetch != 0 {
			rflags |= topology.ResourceFlagPrefetchable
		}
		if flags&ioresourceReadOnly != 0 {
			rflags |= topology.ResourceFlagReadOnly
		}
		if flags&ioresourceMem64 != 0 {
			rflags |= topology.ResourceFlag64Bit
		}

		u.AddResource(t, rflags, start, end-start+1)
	}

	return sc.Err()
}

// secondaryBus reads the bus number a bridge produces from its pci_bus
// directory, which holds one entry named domain:bus.
func secondaryBus(dir string) (uint64, error) {
	entries, err := os.ReadDir(filepath.Join(dir, "pci_bus"))
	if err != nil {
		return 0, err
	}

	for _, e := range entries {
		_, bus, ok := strings.Cut(e.Name(), ":")
		if !ok {
			continue
		}

		return strconv.ParseUint(bus, 16, 8)
	}

	return 0, errors.New("bridge has no secondary bus")
}
