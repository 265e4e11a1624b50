package topology

type ResourceType uint16

const (
	ResourceIO ResourceType = iota + 1
	ResourceMem
	ResourceIRQ
	ResourceDMA
)

func (t ResourceType) String() string {
	switch t {
	case ResourceIO:
		return "io"
	case ResourceMem:
		return "mem"
	case ResourceIRQ:
		return "irq"
	case ResourceDMA:
		return "dma"
	default:
		return "unknown"
	}
}

type ResourceFlags uint16

const (
	ResourceFlagPrefetchable ResourceFlags = 1 << iota
	ResourceFlagReadOnly
	ResourceFlag64Bit
)

// NoResource is returned by the IRQ, IOBase and DMA accessors when the unit
// has no resource of that type.
const NoResource = -1

type Resource struct {
	Type  ResourceType
	Flags ResourceFlags
	Start uint64
	Len   uint64
}

// AddResource appends a resource claim to the unit.
func (u *Unit) AddResource(t ResourceType, flags ResourceFlags, start, n uint64) *Resource {
	res := &Resource{
		Type:  t,
		Flags: flags,
		Start: start,
		Len:   n,
	}

	u.Resources = append(u.Resources, res)

	return res
}

// Resource returns the nth (0 based) resource of type t in the order the
// resources were added, or nil.
func (u *Unit) Resource(t ResourceType, nth int) *Resource {
	for _, res := range u.Resources {
		if res.Type != t {
			continue
		}

		if nth == 0 {
			return res
		}
		nth--
	}

	return nil
}

func (u *Unit) IRQ() int {
	return u.firstStart(ResourceIRQ)
}

func (u *Unit) IOBase() int {
	return u.firstStart(ResourceIO)
}

func (u *Unit) DMA() int {
	return u.firstStart(ResourceDMA)
}

// MemBase returns the start of the first memory range, or 0 when the unit
// has none.
func (u *Unit) MemBase() uint64 {
	if res := u.Resource(ResourceMem, 0); res != nil {
		return res.Start
	}

	return 0
}

func (u *Unit) firstStart(t ResourceType) int {
	if res := u.Resource(t, 0); res != nil {
		return int(res.Start)
	}

	return NoResource
}
