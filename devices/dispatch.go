package devices

import "github.com/tcfw/kernel/services/go/devmgr/network"

func (r *Registry) Ioctl(devno DevNo, cmd int, args []byte) (int, error) {
	dev := r.Device(devno)
	if dev == nil {
		return 0, ErrNoDevice
	}

	drv, ok := dev.Driver.(Ioctler)
	if !ok {
		return 0, ErrNotImplemented
	}

	return drv.Ioctl(dev, cmd, args)
}

func (r *Registry) Read(devno DevNo, buf []byte, blkno BlockNo) (int, error) {
	dev := r.Device(devno)
	if dev == nil {
		return 0, ErrNoDevice
	}

	drv, ok := dev.Driver.(Reader)
	if !ok {
		return 0, ErrNotImplemented
	}

	return drv.Read(dev, buf, blkno)
}

func (r *Registry) Write(devno DevNo, buf []byte, blkno BlockNo) (int, error) {
	dev := r.Device(devno)
	if dev == nil {
		return 0, ErrNoDevice
	}

	drv, ok := dev.Driver.(Writer)
	if !ok {
		return 0, ErrNotImplemented
	}

	return drv.Write(dev, buf, blkno)
}

// Attach binds a network device to netif. Inbound packets are handed to
// receive until the device is detached.
func (r *Registry) Attach(devno DevNo, netif *network.Interface, receive ReceiveFunc) error {
	dev := r.Device(devno)
	if dev == nil {
		return ErrNoDevice
	}

	drv, ok := dev.Driver.(Attacher)
	if !ok {
		return ErrNotImplemented
	}

	if netif == nil {
		return ErrInvalidArgument
	}

	if len(netif.HardwareAddr) < network.MacAddressLength {
		netif.HardwareAddr = make(network.MacAddress, network.MacAddressLength)
	}

	dev.mu.Lock()
	dev.netif = netif
	dev.receive = receive
	dev.mu.Unlock()

	return drv.Attach(dev, netif.HardwareAddr)
}

// Detach unbinds the device from its interface. The binding is cleared even
// if the driver reports an error.
func (r *Registry) Detach(devno DevNo) error {
	dev := r.Device(devno)
	if dev == nil {
		return ErrNoDevice
	}

	var err error
	if drv, ok := dev.Driver.(Detacher); ok {
		err = drv.Detach(dev)
	}

	dev.mu.Lock()
	dev.netif = nil
	dev.receive = nil
	dev.mu.Unlock()

	return err
}

func (r *Registry) Transmit(devno DevNo, p *network.Packet) error {
	dev := r.Device(devno)
	if dev == nil {
		return ErrNoDevice
	}

	drv, ok := dev.Driver.(Transmitter)
	if !ok {
		return ErrNotImplemented
	}

	return drv.Transmit(dev, p)
}

// Receive hands an inbound packet to the callback registered on attach.
func (r *Registry) Receive(devno DevNo, p *network.Packet) error {
	dev := r.Device(devno)
	if dev == nil {
		return ErrNoDevice
	}

	dev.mu.Lock()
	netif, receive := dev.netif, dev.receive
	dev.mu.Unlock()

	if receive == nil {
		return ErrNotImplemented
	}

	return receive(netif, p)
}
