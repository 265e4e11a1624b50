package partition

import "encoding/binary"

const (
	mbrSignature1 = 0x55
	mbrSignature2 = 0xAA

	mbrPartitionTableOffset = 0x01BE
	mbrPartitionEntrySize   = 16
	mbrPartitionEntries     = 4

	MBRSize = 512
)

// MBR is the first sector of a disk.
type MBR []byte

// Valid checks the length and the boot signature.
func (h MBR) Valid() bool {
	return len(h) >= MBRSize && h[510] == mbrSignature1 && h[511] == mbrSignature2
}

func (h MBR) DiskSignature() uint32 {
	return binary.LittleEndian.Uint32(h[0x01B8:])
}

// Partition returns entry i, 0 to 3.
func (h MBR) Partition(i int) MBRPartition {
	off := mbrPartitionTableOffset + i*mbrPartitionEntrySize
	return MBRPartition(h[off : off+mbrPartitionEntrySize])
}

// Protective reports whether the table is a GPT protective MBR.
func (h MBR) Protective() bool {
	for i := 0; i < mbrPartitionEntries; i++ {
		if h.Partition(i).Type() == TypeGPTProtective {
			return true
		}
	}

	return false
}

const (
	mbrBootable = 1 << 7
)

type MBRPartition []byte

func (p MBRPartition) Bootable() bool {
	return p[0]&mbrBootable != 0
}

func (p MBRPartition) FirstSectorCHS() CHSAddress {
	return CHSAddress(p[1:4])
}

func (p MBRPartition) Type() Type {
	return Type(p[4])
}

func (p MBRPartition) LastSectorCHS() CHSAddress {
	return CHSAddress(p[5:8])
}

func (p MBRPartition) LBAStart() uint32 {
	return binary.LittleEndian.Uint32(p[8:])
}

func (p MBRPartition) SectorCount() uint32 {
	return binary.LittleEndian.Uint32(p[12:])
}

// Used reports whether the entry describes a partition.
func (p MBRPartition) Used() bool {
	return p.Type() != TypeEmpty && p.SectorCount() != 0
}

// CHSAddress is the packed cylinder/head/sector form of a sector address.
type CHSAddress []byte

func (a CHSAddress) Head() uint8 {
	return a[0]
}

func (a CHSAddress) Sector() uint8 {
	return a[1] & 0x3F
}

func (a CHSAddress) Cylinder() uint16 {
	return uint16(a[1]&0xC0)<<2 | uint16(a[2])
}
