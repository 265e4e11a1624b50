// Package drivers resolves driver modules by name. Driver packages register
// themselves from init() and the installer loads them through a Loader by the
// names found in the policy file.
package drivers

import (
	"github.com/pkg/errors"

	"github.com/tcfw/kernel/services/go/devmgr/devices"
	"github.com/tcfw/kernel/services/go/devmgr/topology"
)

const (
	// DefaultEntry is the symbol resolved when a module name has no
	// explicit entry point.
	DefaultEntry = "install"

	// EntrySeparator splits "module!entry".
	EntrySeparator = "!"
)

var (
	ErrModuleNotFound = errors.New("module not found")
	ErrSymbolNotFound = errors.New("symbol not found")
	ErrBadEntry       = errors.New("entry point has the wrong signature")
)

// Host is what install routines get to work with.
type Host interface {
	Devices() *devices.Registry
	Topology() *topology.Store
}

// InstallFunc installs a driver for a unit matched by a binding.
type InstallFunc func(h Host, unit *topology.Unit) error

// LegacyInstallFunc installs a driver that has no hardware to match. opts is
// the value configured for the module.
type LegacyInstallFunc func(h Host, opts string) error

// Native is an entry point in a natively loaded module. Calls return the
// module's status code; negative means failure. The module creates its
// devices through h while the call runs.
type Native interface {
	CallUnit(h Host, unit *topology.Unit) int
	CallOptions(h Host, opts string) int
}

type Module interface {
	Lookup(symbol string) (any, error)
}

type Loader interface {
	Load(name string) (Module, error)
}
