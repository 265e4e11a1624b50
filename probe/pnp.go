package probe

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/tcfw/kernel/services/go/devmgr/internal/log"
	"github.com/tcfw/kernel/services/go/devmgr/topology"
)

var (
	ErrBadEISAID = errors.New("bad eisa id")
)

// EISAID compresses a PnP id such as PNP0501: three letters of five bits
// each followed by four hex digits.
func EISAID(id string) (uint32, error) {
	if len(id) != 7 {
		return 0, errors.Wrapf(ErrBadEISAID, "%q", id)
	}

	var code uint32
	for i := 0; i < 3; i++ {
		c := id[i]
		if c < 'A' || c > 'Z' {
			return 0, errors.Wrapf(ErrBadEISAID, "%q", id)
		}
		code = code<<5 | uint32(c-'@')
	}

	prod, err := strconv.ParseUint(id[3:], 16, 16)
	if err != nil {
		return 0, errors.Wrapf(ErrBadEISAID, "%q", id)
	}

	return code<<16 | uint32(prod), nil
}

// EnumISAPnP adds the devices the kernel's PnP layer found. Each device
// directory holds an id file and a resources file.
func (p *Sysfs) EnumISAPnP(s *topology.Store, bus *topology.Bus) error {
	dir := filepath.Join(p.Root, pnpDevicesPath)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "reading pnp devices")
	}

	for i, e := range entries {
		devDir := filepath.Join(dir, e.Name())

		d, err := os.ReadFile(filepath.Join(devDir, "id"))
		if err != nil {
			log.WithError(err).Warnf("reading id of pnp device %s", e.Name())
			continue
		}

		// a device may list several compatible ids, the first is its own
		ids := strings.Fields(string(d))
		if len(ids) == 0 {
			continue
		}

		code, err := EISAID(ids[0])
		if err != nil {
			log.WithError(err).Warnf("pnp device %s", e.Name())
			continue
		}

		unit := s.AddUnit(bus, 0, code, i)
		unit.ProductName = ids[0]

		f, err := os.Open(filepath.Join(devDir, "resources"))
		if err != nil {
			continue
		}
		err = parsePnPResources(unit, f)
		f.Close()
		if err != nil {
			log.WithError(err).Warnf("reading resources of pnp device %s", e.Name())
		}
	}

	return nil
}

// parsePnPResources reads lines such as "io 0x3f8-0x3ff", "irq 4" or
// "mem 0xfed00000-0xfed003ff". Disabled entries are skipped.
func parsePnPResources(u *topology.Unit, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 || fields[1] == "disabled" {
			continue
		}

		var t topology.ResourceType
		switch fields[0] {
		case "io":
			t = topology.ResourceIO
		case "mem":
			t = topology.ResourceMem
		case "irq":
			t = topology.ResourceIRQ
		case "dma":
			t = topology.ResourceDMA
		default:
			continue
		}

		lo, hi, isRange := strings.Cut(fields[1], "-")

		start, err := strconv.ParseUint(lo, 0, 64)
		if err != nil {
			return errors.Wrapf(err, "bad resource line %q", sc.Text())
		}

		n := uint64(1)
		if isRange {
			end, err := strconv.ParseUint(hi, 0, 64)
			if err != nil || end < start {
				return errors.Errorf("bad resource line %q", sc.Text())
			}
			n = end - start + 1
		}

		u.AddResource(t, 0, start, n)
	}

	return sc.Err()
}
