// Package loop is a virtual network device that hands every transmitted
// frame back to its own interface.
package loop

import (
	"context"
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/tcfw/kernel/services/go/devmgr/devices"
	"github.com/tcfw/kernel/services/go/devmgr/drivers"
	"github.com/tcfw/kernel/services/go/devmgr/internal/log"
	"github.com/tcfw/kernel/services/go/devmgr/network"
	"github.com/tcfw/kernel/services/go/devmgr/utils"
)

const (
	DriverName = "loop"
	DeviceName = "loop#"

	DefaultMTU      = 1500
	DefaultQueueLen = 64

	ethernetHeaderLen = 14
)

func init() {
	drivers.Register(DriverName, drivers.Symbols{
		drivers.DefaultEntry: drivers.LegacyInstallFunc(Install),
	})
}

// Loop is one loopback device. Transmitted frames are queued on a ring and
// delivered to the attached interface by a receive goroutine.
type Loop struct {
	devs  *devices.Registry
	devno devices.DevNo
	mac   network.MacAddress
	mtu   int
	ring  *utils.Ring

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Install creates a loop device. Options: mtu, queue (ring length) and mac.
func Install(h drivers.Host, opts string) error {
	o := drivers.ParseOptions(opts)

	mac := network.MacAddress{0x02, 0, 0, 0, 0, 0}
	if s := o.String("mac", ""); s != "" {
		hw, err := net.ParseMAC(s)
		if err != nil || len(hw) != network.MacAddressLength {
			return errors.Wrapf(devices.ErrInvalidArgument, "loop mac %q", s)
		}
		mac = network.MacAddress(hw)
	}

	lo := New(h.Devices(), o.Int("mtu", DefaultMTU), o.Int("queue", DefaultQueueLen), mac)

	devno, err := h.Devices().Make(DeviceName, lo, nil, nil)
	if err != nil {
		return err
	}
	lo.devno = devno

	log.Infof("%s: loopback mtu %d hwaddr %s", h.Devices().Device(devno).Name, lo.mtu, lo.mac)

	return nil
}

func New(devs *devices.Registry, mtu, queueLen int, mac network.MacAddress) *Loop {
	if mtu <= 0 {
		mtu = DefaultMTU
	}

	return &Loop{
		devs:  devs,
		devno: devices.NoDev,
		mac:   mac,
		mtu:   mtu,
		ring:  utils.NewRing(mtu+ethernetHeaderLen, queueLen),
	}
}

func (l *Loop) DriverName() string { return DriverName }

func (l *Loop) MTU() int { return l.mtu }

func (l *Loop) Attach(dev *devices.Device, hwaddr network.MacAddress) error {
	copy(hwaddr, l.mac)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.receive(ctx, dev.No, l.done)

	return nil
}

func (l *Loop) Detach(dev *devices.Device) error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	<-done

	return nil
}

// Transmit queues a copy of the frame. The caller keeps ownership of p.
func (l *Loop) Transmit(dev *devices.Device, p *network.Packet) error {
	netif := dev.Netif()

	if !p.Ethernet().Valid() {
		if netif != nil {
			netif.Stats.TXErr.Add(1)
		}
		return errors.Wrapf(devices.ErrInvalidArgument, "short frame of %d bytes", len(p.Frame))
	}

	if err := l.ring.Push(p.Frame); err != nil {
		if netif != nil {
			netif.Stats.TXDrop.Add(1)
		}
		return err
	}

	if netif != nil {
		netif.Stats.TXPackets.Add(1)

		switch dst := p.Ethernet().DstMacAddress(); {
		case dst.IsBcast():
			netif.Stats.TXBroadcast.Add(1)
		case dst.IsMcast():
			netif.Stats.TXMulticast.Add(1)
		}
	}

	return nil
}

// receive hands queued frames to the registry until ctx is cancelled. The
// receive callback owns a packet it accepts.
func (l *Loop) receive(ctx context.Context, devno devices.DevNo, done chan struct{}) {
	defer close(done)

	for {
		frame, err := l.ring.PullWait(ctx)
		if err != nil {
			return
		}

		var netif *network.Interface
		if dev := l.devs.Device(devno); dev != nil {
			netif = dev.Netif()
		}

		p := network.NewPacket(frame)
		p.SrcDevice = netif

		if err := l.devs.Receive(devno, p); err != nil {
			log.WithError(err).Debug("loop: dropping frame")
			network.DropPacket(p)
			continue
		}

		if netif != nil {
			netif.Stats.RXPackets.Add(1)
		}
	}
}
