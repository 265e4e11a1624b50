// Package partition finds the partitions on a block device and registers
// each one as a device of its own that translates block numbers onto the
// parent device.
package partition

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/tcfw/kernel/services/go/devmgr/devices"
	"github.com/tcfw/kernel/services/go/devmgr/internal/log"
)

const (
	DriverName = "partition"

	// NameSuffix is appended to the parent device name.
	NameSuffix = "p#"

	DefaultBlockSize = 512

	maxGPTEntries = 128
)

var (
	ErrNoTable = errors.New("no partition table")
	ErrBounds  = errors.New("block out of partition bounds")
)

// Type is an MBR partition type.
type Type uint8

const (
	TypeEmpty         Type = 0x00
	TypeFAT12         Type = 0x01
	TypeFAT16Small    Type = 0x04
	TypeExtended      Type = 0x05
	TypeFAT16         Type = 0x06
	TypeNTFS          Type = 0x07
	TypeFAT32         Type = 0x0B
	TypeFAT32LBA      Type = 0x0C
	TypeFAT16LBA      Type = 0x0E
	TypeExtendedLBA   Type = 0x0F
	TypeSanos         Type = 0xCC
	TypeLinuxSwap     Type = 0x82
	TypeLinux         Type = 0x83
	TypeGPTProtective Type = 0xEE
	TypeEFISystem     Type = 0xEF

	// TypeGPT marks partitions found in a GPT.
	TypeGPT Type = 0xFF
)

func (t Type) String() string {
	switch t {
	case TypeEmpty:
		return "empty"
	case TypeFAT12:
		return "fat12"
	case TypeFAT16Small, TypeFAT16, TypeFAT16LBA:
		return "fat16"
	case TypeFAT32, TypeFAT32LBA:
		return "fat32"
	case TypeExtended, TypeExtendedLBA:
		return "extended"
	case TypeNTFS:
		return "ntfs"
	case TypeSanos:
		return "dfs"
	case TypeLinuxSwap:
		return "linux-swap"
	case TypeLinux:
		return "linux"
	case TypeGPTProtective:
		return "gpt-protective"
	case TypeEFISystem:
		return "efi"
	case TypeGPT:
		return "gpt"
	default:
		return fmt.Sprintf("%02x", uint8(t))
	}
}

// Partition is a block range of a parent device.
type Partition struct {
	Index     int
	Type      Type
	Bootable  bool
	Start     uint64
	Count     uint64
	BlockSize int
}

func (p Partition) String() string {
	return fmt.Sprintf("#%d %s start %d count %d", p.Index, p.Type, p.Start, p.Count)
}

// Driver is the device driver of one partition.
type Driver struct {
	Partition

	devs   *devices.Registry
	parent devices.DevNo
}

func (d *Driver) DriverName() string { return DriverName }

func (d *Driver) Parent() devices.DevNo { return d.parent }

// translate maps a partition relative block to the parent device, checking
// the whole buffer fits in the partition.
func (d *Driver) translate(buf []byte, blkno devices.BlockNo) (devices.BlockNo, error) {
	blocks := (uint64(len(buf)) + uint64(d.BlockSize) - 1) / uint64(d.BlockSize)
	if uint64(blkno)+blocks > d.Count {
		return 0, ErrBounds
	}

	return blkno + devices.BlockNo(d.Start), nil
}

func (d *Driver) Read(dev *devices.Device, buf []byte, blkno devices.BlockNo) (int, error) {
	pblk, err := d.translate(buf, blkno)
	if err != nil {
		return 0, err
	}

	return d.devs.Read(d.parent, buf, pblk)
}

func (d *Driver) Write(dev *devices.Device, buf []byte, blkno devices.BlockNo) (int, error) {
	pblk, err := d.translate(buf, blkno)
	if err != nil {
		return 0, err
	}

	return d.devs.Write(d.parent, buf, pblk)
}

func (d *Driver) Ioctl(dev *devices.Device, cmd int, args []byte) (int, error) {
	switch cmd {
	case devices.IoctlGetDevSize:
		return int(d.Count), nil
	case devices.IoctlGetBlkSize:
		return d.BlockSize, nil
	default:
		return d.devs.Ioctl(d.parent, cmd, args)
	}
}

// Scan reads the partition table of devno and makes a device for each
// partition, named after the parent with NameSuffix. It returns the
// partitions that were registered.
func Scan(devs *devices.Registry, devno devices.DevNo) ([]Partition, error) {
	parent := devs.Device(devno)
	if parent == nil {
		return nil, devices.ErrNoDevice
	}

	bs, err := devs.Ioctl(devno, devices.IoctlGetBlkSize, nil)
	if err != nil || bs < MBRSize {
		bs = DefaultBlockSize
	}

	parts, err := readTable(devs, devno, bs)
	if err != nil {
		return nil, err
	}

	size := blockCount(devs, devno)

	made := parts[:0]
	for _, p := range parts {
		if size > 0 && p.Start+p.Count > size {
			log.Warnf("%s: partition %s extends past end of device", parent.Name, p)
			continue
		}

		drv := &Driver{Partition: p, devs: devs, parent: devno}

		pdevno, err := devs.Make(parent.Name+NameSuffix, drv, parent.Unit, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "making partition %d of %s", p.Index, parent.Name)
		}

		log.Debugf("%s: partition %s", devs.Device(pdevno).Name, p)
		made = append(made, p)
	}

	return made, nil
}

func readTable(devs *devices.Registry, devno devices.DevNo, bs int) ([]Partition, error) {
	block := make([]byte, bs)
	if _, err := devs.Read(devno, block, 0); err != nil {
		return nil, errors.Wrap(err, "reading mbr")
	}

	mbr := MBR(block)
	if !mbr.Valid() {
		return nil, ErrNoTable
	}

	if mbr.Protective() {
		return readGPT(devs, devno, bs)
	}

	var parts []Partition
	for i := 0; i < mbrPartitionEntries; i++ {
		e := mbr.Partition(i)
		if !e.Used() {
			continue
		}

		parts = append(parts, Partition{
			Index:     i,
			Type:      e.Type(),
			Bootable:  e.Bootable(),
			Start:     uint64(e.LBAStart()),
			Count:     uint64(e.SectorCount()),
			BlockSize: bs,
		})
	}

	return parts, nil
}

func readGPT(devs *devices.Registry, devno devices.DevNo, bs int) ([]Partition, error) {
	block := make([]byte, bs)
	if _, err := devs.Read(devno, block, 1); err != nil {
		return nil, errors.Wrap(err, "reading gpt header")
	}

	if !IsGPTHeader(block) {
		return nil, errors.Wrap(ErrNoTable, "protective mbr without gpt header")
	}

	hdr := GPTHeader(block)
	n, size := hdr.NumEntries(), hdr.EntrySize()
	if n > maxGPTEntries {
		n = maxGPTEntries
	}
	if size < 48 || size > uint32(bs) {
		return nil, errors.Errorf("bad gpt entry size %d", size)
	}

	table := make([]byte, (uint64(n)*uint64(size)+uint64(bs)-1)/uint64(bs)*uint64(bs))
	if _, err := devs.Read(devno, table, devices.BlockNo(hdr.EntriesLBA())); err != nil {
		return nil, errors.Wrap(err, "reading gpt entries")
	}

	var parts []Partition
	for i := uint32(0); i < n; i++ {
		e := GPTEntry(table[i*size : (i+1)*size])
		if !e.Used() || e.LastLBA() < e.FirstLBA() {
			continue
		}

		parts = append(parts, Partition{
			Index:     int(i),
			Type:      TypeGPT,
			Start:     e.FirstLBA(),
			Count:     e.LastLBA() - e.FirstLBA() + 1,
			BlockSize: bs,
		})
	}

	return parts, nil
}

// blockCount asks the device for its size in blocks, 0 when unknown.
func blockCount(devs *devices.Registry, devno devices.DevNo) uint64 {
	n, err := devs.Ioctl(devno, devices.IoctlGetDevSize, nil)
	if err != nil || n < 0 {
		return 0
	}

	return uint64(n)
}
