package utils

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

const ringLenPrefix = 4

var (
	ErrRingFull      = errors.New("ring full")
	ErrFrameTooLarge = errors.New("frame larger than ring slot")
)

// Ring is a bounded MPSC queue of variable length frames. Each slot holds
// a length prefix followed by up to FrameSize bytes. Producers are
// serialised; there must be only one consumer.
type Ring struct {
	slots     uint64
	frameSize uint64
	slotSize  uint64

	head atomic.Uint64
	tail atomic.Uint64
	data []byte

	mu   sync.Mutex
	wake chan struct{}
}

func NewRing(frameSize, slots int) *Ring {
	if slots < 1 {
		slots = 1
	}

	slotSize := uint64(frameSize + ringLenPrefix)

	return &Ring{
		slots:     uint64(slots),
		frameSize: uint64(frameSize),
		slotSize:  slotSize,
		data:      make([]byte, uint64(slots)*slotSize),
		wake:      make(chan struct{}, 1),
	}
}

func (r *Ring) FrameSize() int { return int(r.frameSize) }

func (r *Ring) Cap() int { return int(r.slots) }

// Len is the number of frames waiting to be pulled.
func (r *Ring) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

func (r *Ring) slot(index uint64) []byte {
	from := (index % r.slots) * r.slotSize
	return r.data[from : from+r.slotSize : from+r.slotSize]
}

// Push copies d into the next free slot and wakes a waiting consumer.
func (r *Ring) Push(d []byte) error {
	if uint64(len(d)) > r.frameSize {
		return ErrFrameTooLarge
	}

	r.mu.Lock()
	head := r.head.Load()
	//if ring would be full
	if head+1-r.tail.Load() > r.slots {
		r.mu.Unlock()
		return ErrRingFull
	}

	b := r.slot(head)
	binary.NativeEndian.PutUint32(b, uint32(len(d)))
	n := copy(b[ringLenPrefix:], d)
	clear(b[ringLenPrefix+n:])

	r.head.Store(head + 1)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}

	return nil
}

// Peek returns the next unread frame without consuming it. The returned
// slice aliases the ring and is only valid until the frame is pulled.
func (r *Ring) Peek() []byte {
	tail := r.tail.Load()
	// if there's something to read
	if r.head.Load() == tail {
		return nil
	}

	b := r.slot(tail)
	n := binary.NativeEndian.Uint32(b)

	return b[ringLenPrefix : ringLenPrefix+n]
}

// PullTo copies the next unread frame into d and consumes it. It returns
// the frame length and false when the ring is empty. A frame longer than d
// is truncated.
func (r *Ring) PullTo(d []byte) (int, bool) {
	f := r.Peek()
	if f == nil {
		return 0, false
	}

	n := copy(d, f)
	r.tail.Add(1)

	return n, true
}

// Pull returns a copy of the next unread frame, or nil when empty.
func (r *Ring) Pull() []byte {
	f := r.Peek()
	if f == nil {
		return nil
	}

	d := append([]byte{}, f...)
	r.tail.Add(1)

	return d
}

// PullWait blocks until a frame is available or ctx is done.
func (r *Ring) PullWait(ctx context.Context) ([]byte, error) {
	for {
		if d := r.Pull(); d != nil {
			return d, nil
		}

		select {
		case <-r.wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
