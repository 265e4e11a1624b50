package partition

import (
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcfw/kernel/services/go/devmgr/devices"
)

const bs = 512

type memDisk struct {
	data []byte
}

func (d *memDisk) DriverName() string { return "mem" }

func (d *memDisk) Read(dev *devices.Device, buf []byte, blkno devices.BlockNo) (int, error) {
	off := int(blkno) * bs
	if off+len(buf) > len(d.data) {
		return 0, devices.ErrInvalidArgument
	}
	return copy(buf, d.data[off:]), nil
}

func (d *memDisk) Write(dev *devices.Device, buf []byte, blkno devices.BlockNo) (int, error) {
	off := int(blkno) * bs
	if off+len(buf) > len(d.data) {
		return 0, devices.ErrInvalidArgument
	}
	return copy(d.data[off:], buf), nil
}

func (d *memDisk) Ioctl(dev *devices.Device, cmd int, args []byte) (int, error) {
	switch cmd {
	case devices.IoctlGetDevSize:
		return len(d.data) / bs, nil
	case devices.IoctlGetBlkSize:
		return bs, nil
	}
	return 0, devices.ErrInvalidArgument
}

func putMBREntry(disk []byte, i int, boot bool, typ Type, start, count uint32) {
	e := disk[mbrPartitionTableOffset+i*mbrPartitionEntrySize:]
	if boot {
		e[0] = mbrBootable
	}
	e[4] = byte(typ)
	binary.LittleEndian.PutUint32(e[8:], start)
	binary.LittleEndian.PutUint32(e[12:], count)
	disk[510], disk[511] = mbrSignature1, mbrSignature2
}

func newDisk(t *testing.T, blocks int) (*devices.Registry, devices.DevNo, *memDisk) {
	t.Helper()

	disk := &memDisk{data: make([]byte, blocks*bs)}
	devs := devices.NewRegistry(16)
	devno, err := devs.Make("hd#", disk, nil, nil)
	require.NoError(t, err)

	return devs, devno, disk
}

func TestScanMBR(t *testing.T) {
	devs, devno, disk := newDisk(t, 64)
	putMBREntry(disk.data, 0, true, TypeFAT16, 1, 20)
	putMBREntry(disk.data, 2, false, TypeLinux, 32, 16)

	parts, err := Scan(devs, devno)
	require.NoError(t, err)
	require.Len(t, parts, 2)

	assert.Equal(t, Partition{Index: 0, Type: TypeFAT16, Bootable: true, Start: 1, Count: 20, BlockSize: bs}, parts[0])
	assert.Equal(t, 2, parts[1].Index)
	assert.Equal(t, "linux", parts[1].Type.String())

	p0 := devs.Find("hd0p0")
	p1 := devs.Find("hd0p1")
	require.NotEqual(t, devices.NoDev, p0)
	require.NotEqual(t, devices.NoDev, p1)

	n, err := devs.Ioctl(p1, devices.IoctlGetDevSize, nil)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, devno, devs.Device(p1).Driver.(*Driver).Parent())

	// block 3 of the second partition is block 35 of the disk
	buf := []byte("partition data")
	_, err = devs.Write(p1, buf, 3)
	require.NoError(t, err)
	assert.Equal(t, buf, disk.data[35*bs:35*bs+len(buf)])

	got := make([]byte, len(buf))
	_, err = devs.Read(p1, got, 3)
	require.NoError(t, err)
	assert.Equal(t, buf, got)

	_, err = devs.Read(p1, make([]byte, bs), 16)
	assert.True(t, errors.Is(err, ErrBounds))
	_, err = devs.Read(p1, make([]byte, 2*bs), 15)
	assert.True(t, errors.Is(err, ErrBounds))
}

func TestScanNoTable(t *testing.T) {
	devs, devno, _ := newDisk(t, 4)

	_, err := Scan(devs, devno)
	assert.True(t, errors.Is(err, ErrNoTable))
	assert.Equal(t, 1, devs.Len())

	_, err = Scan(devs, devices.DevNo(7))
	assert.True(t, errors.Is(err, devices.ErrNoDevice))
}

func TestScanSkipsOversizedPartition(t *testing.T) {
	devs, devno, disk := newDisk(t, 16)
	putMBREntry(disk.data, 0, false, TypeLinux, 1, 8)
	putMBREntry(disk.data, 1, false, TypeLinux, 9, 100)

	parts, err := Scan(devs, devno)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, 2, devs.Len())
}

func TestScanGPT(t *testing.T) {
	devs, devno, disk := newDisk(t, 128)
	putMBREntry(disk.data, 0, false, TypeGPTProtective, 1, 127)

	hdr := disk.data[bs:]
	copy(hdr, gptSignature)
	binary.LittleEndian.PutUint64(hdr[72:], 2)
	binary.LittleEndian.PutUint32(hdr[80:], 4)
	binary.LittleEndian.PutUint32(hdr[84:], 128)

	entry := func(i int, first, last uint64) {
		e := disk.data[2*bs+i*128:]
		e[0] = 0xAF // any non-zero type guid
		binary.LittleEndian.PutUint64(e[32:], first)
		binary.LittleEndian.PutUint64(e[40:], last)
	}
	entry(0, 34, 63)
	entry(2, 64, 127)

	parts, err := Scan(devs, devno)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, Partition{Index: 0, Type: TypeGPT, Start: 34, Count: 30, BlockSize: bs}, parts[0])
	assert.Equal(t, uint64(64), parts[1].Count)
	assert.NotEqual(t, devices.NoDev, devs.Find("hd0p1"))
}

func TestProtectiveWithoutHeader(t *testing.T) {
	devs, devno, disk := newDisk(t, 8)
	putMBREntry(disk.data, 0, false, TypeGPTProtective, 1, 7)

	_, err := Scan(devs, devno)
	assert.True(t, errors.Is(err, ErrNoTable))
}

func TestCHSAddress(t *testing.T) {
	chs := CHSAddress{0xFE, 0xFF, 0xFF}
	assert.Equal(t, uint8(0xFE), chs.Head())
	assert.Equal(t, uint8(63), chs.Sector())
	assert.Equal(t, uint16(1023), chs.Cylinder())
}
