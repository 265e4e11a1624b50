package partition

import (
	"bytes"
	"encoding/binary"
)

const (
	gptSignature = "EFI PART"

	gptHeaderSize = 92
)

func IsGPTHeader(d []byte) bool {
	return len(d) >= gptHeaderSize && bytes.Equal(d[:len(gptSignature)], []byte(gptSignature))
}

// GPTHeader is the header stored in the second sector of a GPT disk.
type GPTHeader []byte

func (h GPTHeader) EntriesLBA() uint64 {
	return binary.LittleEndian.Uint64(h[72:])
}

func (h GPTHeader) NumEntries() uint32 {
	return binary.LittleEndian.Uint32(h[80:])
}

func (h GPTHeader) EntrySize() uint32 {
	return binary.LittleEndian.Uint32(h[84:])
}

type GPTEntry []byte

var zeroGUID [16]byte

func (e GPTEntry) TypeGUID() []byte {
	return e[0:16]
}

func (e GPTEntry) Used() bool {
	return !bytes.Equal(e.TypeGUID(), zeroGUID[:])
}

func (e GPTEntry) FirstLBA() uint64 {
	return binary.LittleEndian.Uint64(e[32:])
}

func (e GPTEntry) LastLBA() uint64 {
	return binary.LittleEndian.Uint64(e[40:])
}
