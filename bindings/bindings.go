// Package bindings turns the "bindings" policy section into masked match
// rules that select a driver module for a unit.
//
// Each property key reads "<bus> <kind> <signature>", for example
//
//	pci unit 8086100E: e1000
//	pci class 02000000/FFFF0000: netdrv!install
//	pci class 0200xxxx: netdrv!install
//
// A signature is a hex code with an optional "/mask". Without a mask every
// character is one nibble: hex digits must match, any other character is a
// don't-care nibble. The value is the module to load.
package bindings

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/tcfw/kernel/services/go/devmgr/config"
	"github.com/tcfw/kernel/services/go/devmgr/internal/log"
	"github.com/tcfw/kernel/services/go/devmgr/topology"
)

const (
	SectionName = "bindings"

	// a code or mask is 32 bits
	maxNibbles = 8
)

var (
	ErrBadSignature = errors.New("bad signature")
)

type BindType uint8

const (
	// BindNone is kept for unrecognised kind tokens and never matches.
	BindNone BindType = iota
	BindByClassCode
	BindByUnitCode
)

func (t BindType) String() string {
	switch t {
	case BindByClassCode:
		return "class"
	case BindByUnitCode:
		return "unit"
	default:
		return "none"
	}
}

var busTokens = map[string]topology.BusType{
	"host": topology.BusTypeHost,
	"pci":  topology.BusTypePCI,
	"isa":  topology.BusTypeISA,
}

var bindTokens = map[string]BindType{
	"class": BindByClassCode,
	"unit":  BindByUnitCode,
}

type Binding struct {
	BusType  topology.BusType
	BindType BindType
	Code     uint32
	Mask     uint32
	Module   string
}

// Matches reports whether u sits on a bus of the binding's type and its
// class or unit code matches the masked signature.
func (b *Binding) Matches(u *topology.Unit) bool {
	if u.Bus == nil || u.Bus.Type != b.BusType {
		return false
	}

	switch b.BindType {
	case BindByClassCode:
		return u.ClassCode&b.Mask == b.Code&b.Mask
	case BindByUnitCode:
		return u.UnitCode&b.Mask == b.Code&b.Mask
	default:
		return false
	}
}

func (b Binding) String() string {
	return fmt.Sprintf("%s %s %08X/%08X -> %s", b.BusType, b.BindType, b.Code, b.Mask, b.Module)
}

// Table is the ordered set of bindings. Order is the configuration order
// and decides which rule wins when several match.
type Table []Binding

// Parse builds the table from a policy section. A nil or empty section
// yields an empty table.
func Parse(sect *config.Section) Table {
	if sect.Size() == 0 {
		return nil
	}

	tab := make(Table, 0, sect.Size())

	for _, prop := range sect.Properties {
		bind, ok := parseKey(prop.Name)
		if !ok {
			continue
		}

		bind.Module = prop.Value
		tab = append(tab, bind)
	}

	return tab
}

// ParseSignature converts signature text into a code and a mask. A
// signature is either "S/M", hex code and explicit hex mask, or a run of
// nibbles where any non-hex character is a don't care nibble. Neither side
// may be longer than eight nibbles.
func ParseSignature(sig string) (code, mask uint32, err error) {
	codeText, maskText, explicit := strings.Cut(sig, "/")

	code, mask, err = parseNibbles(codeText)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "signature %q", sig)
	}

	if !explicit {
		return code, mask, nil
	}

	m, err := strconv.ParseUint(maskText, 16, 32)
	if err != nil || len(maskText) > maxNibbles {
		return 0, 0, errors.Wrapf(ErrBadSignature, "mask of %q", sig)
	}

	return code, mask & uint32(m), nil
}

func parseNibbles(s string) (code, mask uint32, err error) {
	if len(s) > maxNibbles {
		return 0, 0, errors.Wrapf(ErrBadSignature, "more than %d nibbles", maxNibbles)
	}

	for _, c := range s {
		digit, ok := hexDigit(c)

		code <<= 4
		mask <<= 4
		if ok {
			code |= digit
			mask |= 0xF
		}
	}

	return code, mask, nil
}

// parseKey splits "<bus> <kind> <signature>". The signature is the trailing
// whitespace free token; keys with anything after it are rejected.
func parseKey(key string) (Binding, bool) {
	var bind Binding

	fields := strings.Fields(key)
	if len(fields) < 3 {
		return bind, false
	}
	if len(fields) > 3 {
		log.Warnf("ignoring binding %q: signature must not contain spaces", key)
		return bind, false
	}

	code, mask, err := ParseSignature(fields[2])
	if err != nil {
		log.WithError(err).Warnf("ignoring binding %q", key)
		return bind, false
	}

	bind.BusType = busTokens[fields[0]]
	bind.BindType = bindTokens[fields[1]]
	bind.Code, bind.Mask = code, mask

	return bind, true
}

func hexDigit(c rune) (uint32, bool) {
	switch {
	case c >= '0' && c <= '9':
		return uint32(c - '0'), true
	case c >= 'a' && c <= 'f':
		return uint32(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return uint32(c-'A') + 10, true
	default:
		return 0, false
	}
}

// Find returns the first binding matching u, or nil.
func (t Table) Find(u *topology.Unit) *Binding {
	for i := range t {
		if t[i].Matches(u) {
			return &t[i]
		}
	}

	return nil
}
