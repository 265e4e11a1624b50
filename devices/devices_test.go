package devices

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcfw/kernel/services/go/devmgr/topology"
)

type nullDriver struct{}

func (nullDriver) DriverName() string { return "null" }

func TestMakeResolvesPlaceholder(t *testing.T) {
	r := NewRegistry(8)

	d0, err := r.Make("eth#", nullDriver{}, nil, nil)
	require.NoError(t, err)
	d1, err := r.Make("eth#", nullDriver{}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, DevNo(0), d0)
	assert.Equal(t, DevNo(1), d1)
	assert.Equal(t, "eth0", r.Device(d0).Name)
	assert.Equal(t, "eth1", r.Device(d1).Name)

	// no placeholder: taken verbatim even though eth0 exists
	d2, err := r.Make("eth0", nullDriver{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "eth0", r.Device(d2).Name)

	// first free ordinal fills gaps left by verbatim names
	_, err = r.Make("hd1", nullDriver{}, nil, nil)
	require.NoError(t, err)
	d4, err := r.Make("hd#", nullDriver{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "hd0", r.Device(d4).Name)
	d5, err := r.Make("hd#", nullDriver{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "hd2", r.Device(d5).Name)

	// a lone placeholder resolves to a bare ordinal
	d6, err := r.Make("#", nullDriver{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "0", r.Device(d6).Name)
}

func TestMakeCapacity(t *testing.T) {
	r := NewRegistry(2)
	assert.Equal(t, 2, r.Capacity())

	_, err := r.Make("a", nullDriver{}, nil, nil)
	require.NoError(t, err)
	_, err = r.Make("b", nullDriver{}, nil, nil)
	require.NoError(t, err)

	devno, err := r.Make("c", nullDriver{}, nil, nil)
	assert.Equal(t, NoDev, devno)
	assert.True(t, errors.Is(err, ErrCapacity))
	assert.Equal(t, 2, r.Len())

	assert.Equal(t, MaxDevices, NewRegistry(0).Capacity())
}

func TestMakeBackfillsUnit(t *testing.T) {
	r := NewRegistry(4)
	unit := &topology.Unit{ProductName: "82540EM"}
	priv := &struct{ iobase int }{0xc000}

	devno, err := r.Make("eth#", nullDriver{}, unit, priv)
	require.NoError(t, err)

	got, ok := unit.Device()
	require.True(t, ok)
	assert.Equal(t, int(devno), got)

	dev := r.Device(devno)
	assert.Same(t, unit, dev.Unit)
	assert.Same(t, priv, dev.Private)
	assert.Equal(t, 0, dev.RefCount())

	// a second device on the same unit keeps the first reference
	second, err := r.Make("eth#", nullDriver{}, unit, nil)
	require.NoError(t, err)
	got, _ = unit.Device()
	assert.Equal(t, int(devno), got)
	assert.Same(t, unit, r.Device(second).Unit)
}

func TestOpenClose(t *testing.T) {
	r := NewRegistry(4)
	devno, err := r.Make("con", nullDriver{}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, NoDev, r.Open("missing"))

	assert.Equal(t, devno, r.Open("con"))
	assert.Equal(t, devno, r.Open("con"))
	require.NoError(t, r.Close(devno))
	assert.Equal(t, 1, r.Device(devno).RefCount())

	require.NoError(t, r.Close(devno))
	assert.True(t, errors.Is(r.Close(devno), ErrNotPermitted))
	assert.Equal(t, 0, r.Device(devno).RefCount())

	assert.True(t, errors.Is(r.Close(DevNo(3)), ErrNoDevice))
	assert.True(t, errors.Is(r.Close(NoDev), ErrNoDevice))
}

func TestCloseNeverOpened(t *testing.T) {
	r := NewRegistry(4)
	devno, err := r.Make("con", nullDriver{}, nil, nil)
	require.NoError(t, err)

	assert.True(t, errors.Is(r.Close(devno), ErrNotPermitted))
}

func TestFindDoesNotReference(t *testing.T) {
	r := NewRegistry(4)
	devno, err := r.Make("rd#", nullDriver{}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, devno, r.Find("rd0"))
	assert.Equal(t, NoDev, r.Find("rd1"))
	assert.Equal(t, 0, r.Device(devno).RefCount())
}

func TestConcurrentOpenClose(t *testing.T) {
	r := NewRegistry(4)
	devno, err := r.Make("con", nullDriver{}, nil, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Open("con")
				_ = r.Close(devno)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Device(devno).RefCount())
}

func TestDevicesSnapshot(t *testing.T) {
	r := NewRegistry(4)
	_, err := r.Make("a", nullDriver{}, nil, nil)
	require.NoError(t, err)

	snap := r.Devices()
	_, err = r.Make("b", nullDriver{}, nil, nil)
	require.NoError(t, err)

	assert.Len(t, snap, 1)
	assert.Len(t, r.Devices(), 2)
	assert.Nil(t, r.Device(2))
}
