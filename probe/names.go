// Package probe discovers hardware and records it in a topology store.
// Static replays a YAML description of a machine; Sysfs walks a live Linux
// system.
package probe

import (
	"fmt"

	"github.com/jaypipes/pcidb"
	"github.com/pkg/errors"

	"github.com/tcfw/kernel/services/go/devmgr/topology"
)

// Namer fills in the human readable names of a unit.
type Namer interface {
	NameUnit(u *topology.Unit)
}

// PCINamer names PCI units from a pci.ids database. Unit codes are
// vendor:device and class codes class:subclass:progif:revision.
type PCINamer struct {
	db *pcidb.PCIDB
}

func NewPCINamer(db *pcidb.PCIDB) *PCINamer {
	return &PCINamer{db: db}
}

func (n *PCINamer) DB() *pcidb.PCIDB {
	return n.db
}

// LoadPCINamer reads the pci.ids database at path, or discovers the host's
// copy when path is empty.
func LoadPCINamer(path string) (*PCINamer, error) {
	var opts []*pcidb.WithOption
	if path != "" {
		opts = append(opts, pcidb.WithDirectPath(path))
	}

	db, err := pcidb.New(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading pci.ids")
	}

	return NewPCINamer(db), nil
}

// NameUnit sets any names the unit does not already carry. Units on other
// bus types are left alone.
func (n *PCINamer) NameUnit(u *topology.Unit) {
	if n == nil || n.db == nil || u.Bus == nil || u.Bus.Type != topology.BusTypePCI {
		return
	}

	vendorID := fmt.Sprintf("%04x", u.UnitCode>>16)
	productID := fmt.Sprintf("%04x", u.UnitCode&0xFFFF)

	if v, ok := n.db.Vendors[vendorID]; ok && u.VendorName == "" {
		u.VendorName = v.Name
	}

	if p, ok := n.db.Products[vendorID+productID]; ok && u.ProductName == "" {
		u.ProductName = p.Name
	}

	if u.ClassName == "" {
		u.ClassName = n.className(u.ClassCode)
	}
}

func (n *PCINamer) className(code uint32) string {
	class, ok := n.db.Classes[fmt.Sprintf("%02x", code>>24)]
	if !ok {
		return ""
	}

	subID := fmt.Sprintf("%02x", (code>>16)&0xFF)
	for _, sub := range class.Subclasses {
		if sub.ID == subID {
			return sub.Name
		}
	}

	return class.Name
}
