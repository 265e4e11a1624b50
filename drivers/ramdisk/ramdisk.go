// Package ramdisk is a block device backed by memory, optionally loaded
// from an image file.
package ramdisk

import (
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/tcfw/kernel/services/go/devmgr/devices"
	"github.com/tcfw/kernel/services/go/devmgr/drivers"
	"github.com/tcfw/kernel/services/go/devmgr/internal/log"
	"github.com/tcfw/kernel/services/go/devmgr/partition"
)

const (
	DriverName = "ramdisk"
	DeviceName = "rd#"

	BlockSize   = 512
	DefaultSize = 1 << 20
)

func init() {
	drivers.Register(DriverName, drivers.Symbols{
		drivers.DefaultEntry: drivers.LegacyInstallFunc(Install),
	})
}

type Ramdisk struct {
	mu       sync.RWMutex
	data     []byte
	readOnly bool
}

// Install creates a ramdisk and registers its partitions. Options: size
// (bytes, K/M/G suffixes allowed), image (file copied in at install) and
// ro.
func Install(h drivers.Host, opts string) error {
	o := drivers.ParseOptions(opts)

	size := o.Int("size", DefaultSize)

	var image []byte
	if path := o.String("image", ""); path != "" {
		d, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "reading ramdisk image")
		}
		image = d

		if !o.Has("size") || size < len(d) {
			size = len(d)
		}
	}

	rd, err := New(size)
	if err != nil {
		return err
	}
	copy(rd.data, image)
	rd.readOnly = o.Has("ro")

	devno, err := h.Devices().Make(DeviceName, rd, nil, nil)
	if err != nil {
		return err
	}

	name := h.Devices().Device(devno).Name
	log.Infof("%s: ramdisk %d blocks", name, rd.Blocks())

	parts, err := partition.Scan(h.Devices(), devno)
	switch {
	case errors.Is(err, partition.ErrNoTable):
	case errors.Is(err, devices.ErrCapacity):
		return err
	case err != nil:
		log.WithError(err).Warnf("%s: reading partition table", name)
	default:
		log.Debugf("%s: %d partitions", name, len(parts))
	}

	return nil
}

// New makes a zeroed ramdisk. The size is rounded up to whole blocks.
func New(size int) (*Ramdisk, error) {
	if size <= 0 {
		return nil, errors.Wrapf(devices.ErrInvalidArgument, "ramdisk size %d", size)
	}

	blocks := (size + BlockSize - 1) / BlockSize

	return &Ramdisk{data: make([]byte, blocks*BlockSize)}, nil
}

func (rd *Ramdisk) DriverName() string { return DriverName }

func (rd *Ramdisk) Blocks() int { return len(rd.data) / BlockSize }

func (rd *Ramdisk) span(n int, blkno devices.BlockNo) (int, error) {
	if uint64(blkno) >= uint64(rd.Blocks()) {
		return 0, errors.Wrapf(devices.ErrInvalidArgument, "block %d past end of ramdisk", blkno)
	}

	off := int(blkno) * BlockSize
	if off+n > len(rd.data) {
		return 0, errors.Wrapf(devices.ErrInvalidArgument, "transfer past end of ramdisk")
	}

	return off, nil
}

func (rd *Ramdisk) Read(dev *devices.Device, buf []byte, blkno devices.BlockNo) (int, error) {
	rd.mu.RLock()
	defer rd.mu.RUnlock()

	off, err := rd.span(len(buf), blkno)
	if err != nil {
		return 0, err
	}

	return copy(buf, rd.data[off:]), nil
}

func (rd *Ramdisk) Write(dev *devices.Device, buf []byte, blkno devices.BlockNo) (int, error) {
	if rd.readOnly {
		return 0, devices.ErrNotPermitted
	}

	rd.mu.Lock()
	defer rd.mu.Unlock()

	off, err := rd.span(len(buf), blkno)
	if err != nil {
		return 0, err
	}

	return copy(rd.data[off:], buf), nil
}

func (rd *Ramdisk) Ioctl(dev *devices.Device, cmd int, args []byte) (int, error) {
	switch cmd {
	case devices.IoctlGetDevSize:
		return rd.Blocks(), nil
	case devices.IoctlGetBlkSize:
		return BlockSize, nil
	default:
		return 0, devices.ErrInvalidArgument
	}
}
