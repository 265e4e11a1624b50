// Package devmgr is the device manager: it enumerates the hardware tree,
// matches units to driver modules using the configured bindings, installs
// those modules, and owns the device table the rest of the kernel uses.
package devmgr

import (
	"github.com/pkg/errors"

	"github.com/tcfw/kernel/services/go/devmgr/bindings"
	"github.com/tcfw/kernel/services/go/devmgr/config"
	"github.com/tcfw/kernel/services/go/devmgr/devices"
	"github.com/tcfw/kernel/services/go/devmgr/drivers"
	"github.com/tcfw/kernel/services/go/devmgr/internal/log"
	"github.com/tcfw/kernel/services/go/devmgr/topology"
)

// DriversSection lists modules installed without hardware matching.
const DriversSection = "drivers"

type Options struct {
	Config *config.Config
	Prober topology.Prober
	Loader drivers.Loader

	// MaxDevices is the device table capacity; devices.MaxDevices if 0.
	MaxDevices int
}

// Manager holds the topology, bindings and device table. Boot builds the
// first two once; the device table is then used concurrently.
type Manager struct {
	config *config.Config
	prober topology.Prober
	loader drivers.Loader

	topology *topology.Store
	devices  *devices.Registry
	bindings bindings.Table
}

func New(opts Options) *Manager {
	loader := opts.Loader
	if loader == nil {
		loader = drivers.Builtin()
	}

	return &Manager{
		config:   opts.Config,
		prober:   opts.Prober,
		loader:   loader,
		topology: topology.NewStore(),
		devices:  devices.NewRegistry(opts.MaxDevices),
	}
}

func (m *Manager) Topology() *topology.Store {
	return m.topology
}

func (m *Manager) Devices() *devices.Registry {
	return m.devices
}

func (m *Manager) Bindings() bindings.Table {
	return m.bindings
}

// Boot enumerates the host bus and installs drivers. A failed enumeration
// is logged and boot continues with whatever was found; only running out of
// device table space stops it.
func (m *Manager) Boot() error {
	if err := m.Enumerate(); err != nil {
		log.WithError(err).Warn("hardware enumeration incomplete")
	}

	return m.InstallDrivers()
}

// Enumerate builds the topology through the prober. Units found before an
// error stay in the store.
func (m *Manager) Enumerate() error {
	if m.prober == nil {
		return nil
	}

	err := topology.EnumHostBus(m.topology, m.prober)

	log.Infof("discovered %d units on %d buses", len(m.topology.Units()), len(m.topology.Buses()))

	return err
}

// InstallDrivers parses the bindings, installs drivers for matched units and
// then installs the legacy drivers.
func (m *Manager) InstallDrivers() error {
	m.bindings = bindings.Parse(m.config.FindSection(bindings.SectionName))
	log.Debugf("parsed %d bindings", len(m.bindings))

	if err := m.bindUnits(); err != nil {
		return err
	}

	if err := m.installLegacyDrivers(); err != nil {
		return err
	}

	log.Infof("installed %d devices", m.devices.Len())

	return nil
}

func (m *Manager) bindUnits() error {
	for _, unit := range m.topology.Units() {
		bind := m.bindings.Find(unit)
		if bind == nil {
			continue
		}

		if err := m.installDriver(unit, bind); err != nil {
			return err
		}
	}

	return nil
}

// installDriver returns an error only when the failure is fatal to boot.
func (m *Manager) installDriver(unit *topology.Unit, bind *bindings.Binding) error {
	sym, err := drivers.Entry(m.loader, bind.Module, drivers.DefaultEntry)
	if err != nil {
		log.WithError(err).Warnf("unable to load driver %s for unit '%s'", bind.Module, unit.Name())
		return nil
	}

	install, err := drivers.AsInstall(sym)
	if err != nil {
		log.WithError(err).Warnf("unable to load driver %s for unit '%s'", bind.Module, unit.Name())
		return nil
	}

	if err := install(m, unit); err != nil {
		if errors.Is(err, devices.ErrCapacity) {
			return errors.Wrapf(err, "installing driver %s", bind.Module)
		}

		log.WithError(err).Warnf("error installing driver %s for unit '%s'", bind.Module, unit.Name())
		return nil
	}

	log.Debugf("installed driver %s for unit '%s'", bind.Module, unit.Name())

	return nil
}

func (m *Manager) installLegacyDrivers() error {
	sect := m.config.FindSection(DriversSection)
	if sect == nil {
		return nil
	}

	for _, prop := range sect.Properties {
		sym, err := drivers.Entry(m.loader, prop.Name, drivers.DefaultEntry)
		if err != nil {
			log.WithError(err).Warnf("unable to load driver %s", prop.Name)
			continue
		}

		install, err := drivers.AsLegacyInstall(sym)
		if err != nil {
			log.WithError(err).Warnf("unable to load driver %s", prop.Name)
			continue
		}

		if err := install(m, prop.Value); err != nil {
			if errors.Is(err, devices.ErrCapacity) {
				return errors.Wrapf(err, "installing driver %s", prop.Name)
			}

			log.WithError(err).Warnf("error installing driver %s", prop.Name)
			continue
		}

		log.Debugf("installed driver %s", prop.Name)
	}

	return nil
}
