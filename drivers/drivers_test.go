package drivers

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tcfw/kernel/services/go/devmgr/devices"
	"github.com/tcfw/kernel/services/go/devmgr/topology"
)

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) Load(name string) (Module, error) {
	args := m.Called(name)
	mod, _ := args.Get(0).(Module)
	return mod, args.Error(1)
}

type testHost struct {
	devs *devices.Registry
}

func (h *testHost) Devices() *devices.Registry { return h.devs }
func (h *testHost) Topology() *topology.Store { return nil }

type fakeNative struct {
	rc      int
	gotHost Host
	gotUnit int
	gotOpts string
}

func (f *fakeNative) CallUnit(h Host, unit *topology.Unit) int {
	f.gotHost = h
	f.gotUnit = unit.ID
	return f.rc
}

func (f *fakeNative) CallOptions(h Host, opts string) int {
	f.gotHost = h
	f.gotOpts = opts
	return f.rc
}

func TestSplitEntry(t *testing.T) {
	tests := []struct {
		in, mod, entry string
	}{
		{"netdrv", "netdrv", DefaultEntry},
		{"netdrv!probe", "netdrv", "probe"},
		{"netdrv!", "netdrv", DefaultEntry},
		{"a!b!c", "a", "b!c"},
	}

	for _, tt := range tests {
		mod, entry := SplitEntry(tt.in, DefaultEntry)
		assert.Equal(t, tt.mod, mod, tt.in)
		assert.Equal(t, tt.entry, entry, tt.in)
	}
}

func TestEntryResolvesSymbol(t *testing.T) {
	install := InstallFunc(func(Host, *topology.Unit) error { return nil })
	probe := InstallFunc(func(Host, *topology.Unit) error { return errors.New("probe") })

	l := &mockLoader{}
	l.On("Load", "netdrv").Return(Symbols{"install": install, "probe": probe}, nil)

	sym, err := Entry(l, "netdrv", DefaultEntry)
	require.NoError(t, err)
	fn, err := AsInstall(sym)
	require.NoError(t, err)
	assert.NoError(t, fn(nil, nil))

	sym, err = Entry(l, "netdrv!probe", DefaultEntry)
	require.NoError(t, err)
	fn, err = AsInstall(sym)
	require.NoError(t, err)
	assert.EqualError(t, fn(nil, nil), "probe")

	_, err = Entry(l, "netdrv!missing", DefaultEntry)
	assert.True(t, errors.Is(err, ErrSymbolNotFound))

	l.AssertNumberOfCalls(t, "Load", 3)
}

func TestEntryLoadFailure(t *testing.T) {
	l := &mockLoader{}
	l.On("Load", "nope").Return(nil, errors.Wrap(ErrModuleNotFound, "nope"))

	_, err := Entry(l, "nope!install", DefaultEntry)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModuleNotFound))
	l.AssertExpectations(t)
}

func TestRegistryLoader(t *testing.T) {
	r := NewRegistry()
	r.Register("loop", Symbols{"install": LegacyInstallFunc(func(Host, string) error { return nil })})
	r.Register("e1000", Symbols{})

	assert.Equal(t, []string{"e1000", "loop"}, r.Names())

	mod, err := r.Load("loop")
	require.NoError(t, err)
	_, err = mod.Lookup("install")
	require.NoError(t, err)

	_, err = r.Load("missing")
	assert.True(t, errors.Is(err, ErrModuleNotFound))
}

func TestChainFallsThrough(t *testing.T) {
	first := NewRegistry()
	second := NewRegistry()
	second.Register("ramdisk", Symbols{})

	mod, err := Chain(first, second).Load("ramdisk")
	require.NoError(t, err)
	assert.NotNil(t, mod)

	_, err = Chain(first, second).Load("none")
	assert.True(t, errors.Is(err, ErrModuleNotFound))

	// errors other than not found stop the chain
	broken := &mockLoader{}
	broken.On("Load", "ramdisk").Return(nil, errors.New("corrupt module"))
	_, err = Chain(broken, second).Load("ramdisk")
	assert.EqualError(t, err, "corrupt module")
}

func TestAsInstallKinds(t *testing.T) {
	unit := &topology.Unit{ID: 7}

	plain := func(Host, *topology.Unit) error { return nil }
	fn, err := AsInstall(plain)
	require.NoError(t, err)
	assert.NoError(t, fn(nil, unit))

	h := &testHost{devs: devices.NewRegistry(1)}
	native := &fakeNative{rc: 0}
	fn, err = AsInstall(native)
	require.NoError(t, err)
	assert.NoError(t, fn(h, unit))
	assert.Equal(t, 7, native.gotUnit)
	assert.Equal(t, Host(h), native.gotHost)

	native.rc = -5
	assert.EqualError(t, fn(nil, unit), "native install returned -5")

	_, err = AsInstall(LegacyInstallFunc(func(Host, string) error { return nil }))
	assert.True(t, errors.Is(err, ErrBadEntry))
	_, err = AsInstall("not a function")
	assert.True(t, errors.Is(err, ErrBadEntry))
}

func TestAsLegacyInstallKinds(t *testing.T) {
	var got string
	fn, err := AsLegacyInstall(func(_ Host, opts string) error { got = opts; return nil })
	require.NoError(t, err)
	require.NoError(t, fn(nil, "size=64"))
	assert.Equal(t, "size=64", got)

	h := &testHost{devs: devices.NewRegistry(1)}
	native := &fakeNative{rc: 1}
	fn, err = AsLegacyInstall(native)
	require.NoError(t, err)
	assert.NoError(t, fn(h, "mtu=1500"))
	assert.Equal(t, "mtu=1500", native.gotOpts)
	assert.Equal(t, Host(h), native.gotHost)

	_, err = AsLegacyInstall(InstallFunc(func(Host, *topology.Unit) error { return nil }))
	assert.True(t, errors.Is(err, ErrBadEntry))
}
