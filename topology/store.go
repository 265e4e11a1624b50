// Package topology holds the hardware tree discovered at boot: buses,
// the units attached to them and the resources each unit claims.
//
// The store is built once by a single goroutine during enumeration and is
// read only afterwards.
package topology

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

type Store struct {
	mu sync.RWMutex

	host  *Bus
	buses []*Bus
	units []*Unit
}

func NewStore() *Store {
	return &Store{}
}

// AddBus creates a bus produced by the bridge unit owner. A nil owner
// creates a root bus; the first root bus becomes the host bus.
func (s *Store) AddBus(owner *Unit, t BusType, number int) *Bus {
	s.mu.Lock()
	defer s.mu.Unlock()

	bus := &Bus{
		ID:     len(s.buses),
		Type:   t,
		Number: number,
		Self:   owner,
	}

	if owner != nil {
		bus.Parent = owner.Bus
	}

	if bus.Parent != nil {
		bus.Parent.Bridges = append(bus.Parent.Bridges, bus)
	} else if s.host == nil {
		s.host = bus
	}

	s.buses = append(s.buses, bus)

	return bus
}

// AddUnit attaches a new unit to bus and to the global unit list.
func (s *Store) AddUnit(bus *Bus, classCode, unitCode uint32, number int) *Unit {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit := &Unit{
		ID:        len(s.units),
		Bus:       bus,
		Number:    number,
		ClassCode: classCode,
		UnitCode:  unitCode,
	}

	if bus != nil {
		bus.Units = append(bus.Units, unit)
	}

	s.units = append(s.units, unit)

	return unit
}

func (s *Store) HostBus() *Bus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.host
}

// Units returns the units in discovery order.
func (s *Store) Units() []*Unit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]*Unit(nil), s.units...)
}

func (s *Store) Buses() []*Bus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]*Bus(nil), s.buses...)
}

func (s *Store) Unit(id int) *Unit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id < 0 || id >= len(s.units) {
		return nil
	}

	return s.units[id]
}

func (s *Store) Bus(id int) *Bus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id < 0 || id >= len(s.buses) {
		return nil
	}

	return s.buses[id]
}

// LookupUnit returns the first unit after cursor whose masked unit code
// equals code. A nil cursor starts from the first unit, so passing the
// previous result iterates over every match.
func (s *Store) LookupUnit(cursor *Unit, code, mask uint32) *Unit {
	return s.lookup(cursor, func(u *Unit) bool { return u.UnitCode&mask == code })
}

// LookupUnitByClass is LookupUnit matching on the class code.
func (s *Store) LookupUnitByClass(cursor *Unit, code, mask uint32) *Unit {
	return s.lookup(cursor, func(u *Unit) bool { return u.ClassCode&mask == code })
}

func (s *Store) lookup(cursor *Unit, match func(*Unit) bool) *Unit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if cursor != nil {
		start = cursor.ID + 1
	}

	for i := start; i < len(s.units); i++ {
		if match(s.units[i]) {
			return s.units[i]
		}
	}

	return nil
}

// Dump writes the bus tree rooted at the host bus.
func (s *Store) Dump(w io.Writer) {
	host := s.HostBus()
	if host == nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	dumpBus(w, host, 0)
}

func dumpBus(w io.Writer, b *Bus, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(w, "%sbus %s\n", indent, b)

	for _, u := range b.Units {
		fmt.Fprintf(w, "%s  unit %d: class %08X code %08X %s", indent, u.Number, u.ClassCode, u.UnitCode, u.Name())
		for _, res := range u.Resources {
			fmt.Fprintf(w, " %s=%#x+%#x", res.Type, res.Start, res.Len)
		}
		fmt.Fprintln(w)

		for _, child := range b.Bridges {
			if child.Self == u {
				dumpBus(w, child, depth+2)
			}
		}
	}
}
