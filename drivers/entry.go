package drivers

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/tcfw/kernel/services/go/devmgr/topology"
)

// SplitEntry splits "module!entry" into the module name and the entry
// name, using defEntry when no entry is given.
func SplitEntry(module, defEntry string) (string, string) {
	name, entry, found := strings.Cut(module, EntrySeparator)
	if !found || entry == "" {
		return name, defEntry
	}

	return name, entry
}

// Entry loads module and resolves its entry point.
func Entry(l Loader, module, defEntry string) (any, error) {
	name, entry := SplitEntry(module, defEntry)

	mod, err := l.Load(name)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", name)
	}

	sym, err := mod.Lookup(entry)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s in %s", entry, name)
	}

	return sym, nil
}

// AsInstall adapts a resolved entry point to an InstallFunc.
func AsInstall(sym any) (InstallFunc, error) {
	switch fn := sym.(type) {
	case InstallFunc:
		return fn, nil
	case func(Host, *topology.Unit) error:
		return fn, nil
	case Native:
		return func(h Host, unit *topology.Unit) error {
			if rc := fn.CallUnit(h, unit); rc < 0 {
				return errors.Errorf("native install returned %d", rc)
			}
			return nil
		}, nil
	default:
		return nil, errors.Wrapf(ErrBadEntry, "%T", sym)
	}
}

// AsLegacyInstall adapts a resolved entry point to a LegacyInstallFunc.
func AsLegacyInstall(sym any) (LegacyInstallFunc, error) {
	switch fn := sym.(type) {
	case LegacyInstallFunc:
		return fn, nil
	case func(Host, string) error:
		return fn, nil
	case Native:
		return func(h Host, opts string) error {
			if rc := fn.CallOptions(h, opts); rc < 0 {
				return errors.Errorf("native install returned %d", rc)
			}
			return nil
		}, nil
	default:
		return nil, errors.Wrapf(ErrBadEntry, "%T", sym)
	}
}
