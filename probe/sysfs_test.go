package probe

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaypipes/ghw"
	"github.com/jaypipes/pcidb"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcfw/kernel/services/go/devmgr/topology"
)

func TestParseResourceFile(t *testing.T) {
	resource := strings.Join([]string{
		"0x00000000febc0000 0x00000000febdffff 0x0000000000040200",
		"0x000000000000c000 0x000000000000c03f 0x0000000000040101",
		"0x0000000000000000 0x0000000000000000 0x0000000000000000",
		"0x000000c000000000 0x000000c0000fffff 0x000000000014220c",
		"0x00000000feb80000 0x00000000febbffff 0x0000000000046200",
	}, "\n")

	u := &topology.Unit{}
	require.NoError(t, parseResourceFile(u, strings.NewReader(resource)))
	require.Len(t, u.Resources, 4)

	assert.Equal(t, topology.ResourceMem, u.Resources[0].Type)
	assert.Equal(t, uint64(0xfebc0000), u.Resources[0].Start)
	assert.Equal(t, uint64(0x20000), u.Resources[0].Len)

	assert.Equal(t, 0xc000, u.IOBase())
	assert.Equal(t, uint64(0x40), u.Resources[1].Len)

	assert.Equal(t, topology.ResourceFlagPrefetchable|topology.ResourceFlag64Bit, u.Resources[2].Flags)
	assert.Equal(t, topology.ResourceFlagPrefetchable|topology.ResourceFlagReadOnly, u.Resources[3].Flags)

	assert.Error(t, parseResourceFile(&topology.Unit{}, strings.NewReader("0xzz 0x1 0x200")))
}

func TestEISAID(t *testing.T) {
	code, err := EISAID("PNP0501")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x41d00501), code)

	for _, bad := range []string{"", "PNP050", "pnp0501", "PNP05G1"} {
		_, err := EISAID(bad)
		assert.True(t, errors.Is(err, ErrBadEISAID), bad)
	}
}

func TestParsePnPResources(t *testing.T) {
	res := "state = active\nio 0x3f8-0x3ff\nirq 4\ndma disabled\nmem 0xfed00000-0xfed003ff\n"

	u := &topology.Unit{}
	require.NoError(t, parsePnPResources(u, strings.NewReader(res)))
	require.Len(t, u.Resources, 3)

	assert.Equal(t, 0x3f8, u.IOBase())
	assert.Equal(t, uint64(8), u.Resources[0].Len)
	assert.Equal(t, 4, u.IRQ())
	assert.Equal(t, topology.NoResource, u.DMA())
	assert.Equal(t, uint64(0xfed00000), u.MemBase())
	assert.Equal(t, uint64(0x400), u.Resources[2].Len)

	assert.Error(t, parsePnPResources(&topology.Unit{}, strings.NewReader("io 0x400-0x3ff\n")))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSysfsEnumISAPnP(t *testing.T) {
	root := t.TempDir()
	pnp := filepath.Join(root, pnpDevicesPath)

	writeFile(t, filepath.Join(pnp, "00:01", "id"), "PNP0303 PNP030b\n")
	writeFile(t, filepath.Join(pnp, "00:01", "resources"), "state = active\nio 0x60-0x60\nio 0x64-0x64\nirq 1\n")
	writeFile(t, filepath.Join(pnp, "00:02", "id"), "bogus\n")
	writeFile(t, filepath.Join(pnp, "00:03", "id"), "PNP0501\n")

	s := topology.NewStore()
	bus := s.AddBus(nil, topology.BusTypeISA, 0)

	p := NewSysfs(root, nil)
	require.NoError(t, p.EnumISAPnP(s, bus))

	units := s.Units()
	require.Len(t, units, 2)

	kbd := units[0]
	assert.Equal(t, "PNP0303", kbd.ProductName)
	assert.Equal(t, 0x60, kbd.IOBase())
	assert.Equal(t, 0x64, int(kbd.Resource(topology.ResourceIO, 1).Start))
	assert.Equal(t, 1, kbd.IRQ())

	com := units[1]
	assert.Equal(t, uint32(0x41d00501), com.UnitCode)
	assert.Equal(t, 2, com.Number)
	assert.Empty(t, com.Resources)
}

func TestSysfsEnumISAPnPMissing(t *testing.T) {
	s := topology.NewStore()
	bus := s.AddBus(nil, topology.BusTypeISA, 0)

	require.NoError(t, NewSysfs(t.TempDir(), nil).EnumISAPnP(s, bus))
	assert.Empty(t, s.Units())
}

func TestSecondaryBus(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pci_bus", "0000:02"), 0o755))

	bus, err := secondaryBus(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), bus)

	_, err = secondaryBus(t.TempDir())
	assert.Error(t, err)
}

func pciDevice(addr, vendor, product, class, subclass string) *ghw.PCIDevice {
	return &ghw.PCIDevice{
		Address:              addr,
		Vendor:               &pcidb.Vendor{ID: vendor, Name: "unknown"},
		Product:              &pcidb.Product{VendorID: vendor, ID: product, Name: "unknown"},
		Class:                &pcidb.Class{ID: class, Name: "unknown"},
		Subclass:             &pcidb.Subclass{ID: subclass, Name: "unknown"},
		ProgrammingInterface: &pcidb.ProgrammingInterface{ID: "00", Name: "unknown"},
	}
}

func TestSysfsEnumPCISkipsHostBridge(t *testing.T) {
	root := t.TempDir()
	bridgeDir := filepath.Join(root, pciDevicesPath, "0000:00:1e.0")
	require.NoError(t, os.MkdirAll(filepath.Join(bridgeDir, "pci_bus", "0000:01"), 0o755))
	writeFile(t, filepath.Join(root, pciDevicesPath, "0000:00:02.0", "resource"), "")
	writeFile(t, filepath.Join(root, pciDevicesPath, "0000:00:02.0", "irq"), "11\n")

	p := NewSysfs(root, nil)
	p.devices = []*ghw.PCIDevice{
		pciDevice("0000:00:00.0", "8086", "1237", "06", "00"),
		pciDevice("0000:00:02.0", "8086", "100e", "02", "00"),
		pciDevice("0000:00:1e.0", "8086", "244e", "06", "04"),
		pciDevice("0000:01:00.0", "8086", "2922", "01", "06"),
	}

	s := topology.NewStore()
	require.NoError(t, topology.EnumHostBus(s, p))

	// host bridge, nic, pci bridge, sata
	units := s.Units()
	require.Len(t, units, 4)

	hb := units[0]
	assert.Equal(t, topology.BusTypeHost, hb.Bus.Type)
	assert.Equal(t, uint32(0x80861237), hb.UnitCode)
	for _, u := range units[1:] {
		assert.NotEqual(t, uint32(0x80861237), u.UnitCode, "host bridge enumerated twice")
	}

	nic := units[1]
	assert.Equal(t, topology.BusTypePCI, nic.Bus.Type)
	assert.Equal(t, uint32(0x02000000), nic.ClassCode)
	assert.Equal(t, uint32(0x8086100E), nic.UnitCode)
	assert.Equal(t, 2<<3, nic.Number)
	assert.Equal(t, 11, nic.IRQ())

	sata := units[3]
	assert.Equal(t, 1, sata.Bus.Number)
	assert.Same(t, units[2], sata.Bus.Self)

	var out bytes.Buffer
	s.Dump(&out)
	assert.Equal(t, 1, strings.Count(out.String(), "code 80861237"))
}

func TestHostBridgeFallsBackToFirst(t *testing.T) {
	assert.Nil(t, hostBridge(nil))

	first := pciDevice("0000:00:01.0", "1234", "1111", "06", "00")
	devs := []*ghw.PCIDevice{first, pciDevice("0000:00:02.0", "8086", "100e", "02", "00")}
	assert.Same(t, first, hostBridge(devs))
}
