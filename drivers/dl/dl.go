// Package dl loads driver modules from shared objects.
//
// A native module exports C functions named after its entry points. Entries
// used by bindings take the unit's id, entries used for legacy drivers take
// the configured options. Both get a callback that adds a device to the
// device table and returns its number:
//
//	typedef int (*make_device_t)(const char *name, int unit);
//
//	int install(int unit, make_device_t make_device);
//	int install(const char *opts, make_device_t make_device);
//
// make_device takes -1 as unit for devices without hardware and returns a
// negative value when the device cannot be made. The callback is only valid
// while the entry runs. A negative return value from an entry reports failure.
package dl

import (
	"path/filepath"
	"strings"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"

	"github.com/tcfw/kernel/services/go/devmgr/devices"
	"github.com/tcfw/kernel/services/go/devmgr/drivers"
	"github.com/tcfw/kernel/services/go/devmgr/internal/log"
	"github.com/tcfw/kernel/services/go/devmgr/topology"
)

const moduleSuffix = ".so"

// Loader opens modules from a directory. Each module is opened once and
// stays loaded.
type Loader struct {
	dir   string
	flags int

	mu      sync.Mutex
	modules map[string]*Module
}

func NewLoader(dir string) *Loader {
	return &Loader{
		dir:     dir,
		flags:   purego.RTLD_NOW | purego.RTLD_LOCAL,
		modules: map[string]*Module{},
	}
}

func (l *Loader) path(name string) string {
	if !strings.HasSuffix(name, moduleSuffix) {
		name += moduleSuffix
	}
	if filepath.IsAbs(name) {
		return name
	}

	return filepath.Join(l.dir, name)
}

func (l *Loader) Load(name string) (drivers.Module, error) {
	path := l.path(name)

	l.mu.Lock()
	defer l.mu.Unlock()

	if mod, ok := l.modules[path]; ok {
		return mod, nil
	}

	handle, err := purego.Dlopen(path, l.flags)
	if err != nil {
		// dlopen does not distinguish a missing file from a bad one
		return nil, errors.Wrapf(drivers.ErrModuleNotFound, "dlopen %s: %s", path, err)
	}

	mod := &Module{name: strings.TrimSuffix(filepath.Base(path), moduleSuffix), path: path, handle: handle}
	l.modules[path] = mod

	return mod, nil
}

// Close unloads every module opened by the loader.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for path, mod := range l.modules {
		if err := purego.Dlclose(mod.handle); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "dlclose %s", path)
		}
		delete(l.modules, path)
	}

	return firstErr
}

type Module struct {
	name   string
	path   string
	handle uintptr
}

func (m *Module) Lookup(symbol string) (any, error) {
	sym, err := purego.Dlsym(m.handle, symbol)
	if err != nil {
		return nil, errors.Wrapf(drivers.ErrSymbolNotFound, "%s in %s: %s", symbol, m.path, err)
	}

	return &Entry{module: m.name, name: symbol, sym: sym}, nil
}

// Entry is a resolved C entry point. It satisfies drivers.Native.
type Entry struct {
	module string
	name   string
	sym    uintptr

	once   sync.Once
	unitFn func(int32, uintptr) int32
	optsFn func(string, uintptr) int32
}

func (e *Entry) bind() {
	e.once.Do(func() {
		purego.RegisterFunc(&e.unitFn, e.sym)
		purego.RegisterFunc(&e.optsFn, e.sym)
	})
}

func (e *Entry) CallUnit(h drivers.Host, unit *topology.Unit) int {
	e.bind()

	id := int32(-1)
	if unit != nil {
		id = int32(unit.ID)
	}

	return e.call(h, func(cb uintptr) int32 { return e.unitFn(id, cb) })
}

func (e *Entry) CallOptions(h drivers.Host, opts string) int {
	e.bind()

	return e.call(h, func(cb uintptr) int32 { return e.optsFn(opts, cb) })
}

func (e *Entry) call(h drivers.Host, fn func(cb uintptr) int32) int {
	cb := makeDeviceCallback()

	callMu.Lock()
	defer callMu.Unlock()

	callHost, callModule = h, e.module
	defer func() { callHost, callModule = nil, "" }()

	return int(fn(cb))
}

func (e *Entry) String() string {
	return e.module + "!" + e.name
}

// Driver is the driver of devices made by native modules. Their I/O is not
// dispatched through the device table.
type Driver struct {
	Module string
}

var _ devices.Driver = (*Driver)(nil)

func (d *Driver) DriverName() string {
	return d.Module
}

var (
	// callMu is held while an entry runs; callHost and callModule belong
	// to that call.
	callMu     sync.Mutex
	callHost   drivers.Host
	callModule string

	makeOnce sync.Once
	makeCB   uintptr
)

func makeDeviceCallback() uintptr {
	makeOnce.Do(func() {
		makeCB = purego.NewCallback(makeDevice)
	})

	return makeCB
}

// makeDevice runs on the goroutine of the entry call, with callMu held.
func makeDevice(name *byte, unitID int32) int32 {
	h := callHost
	if h == nil {
		return -1
	}

	var unit *topology.Unit
	if unitID >= 0 {
		if s := h.Topology(); s != nil {
			unit = s.Unit(int(unitID))
		}
		if unit == nil {
			log.Warnf("%s: make device for unknown unit %d", callModule, unitID)
			return -1
		}
	}

	devno, err := h.Devices().Make(goString(name), &Driver{Module: callModule}, unit, nil)
	if err != nil {
		log.WithError(err).Warnf("%s: make device", callModule)
		return -1
	}

	return int32(devno)
}

func goString(p *byte) string {
	if p == nil {
		return ""
	}

	var b []byte
	for ; *p != 0; p = (*byte)(unsafe.Add(unsafe.Pointer(p), 1)) {
		b = append(b, *p)
	}

	return string(b)
}
