package canbus

import (
	"net"

	"golang.org/x/sys/unix"
)

// socketChannel is a Channel over a raw SocketCAN socket.
type socketChannel struct {
	ifname  string
	ifindex int
	flags   OpenFlag
	rate    Datarate
	fd      int
	onbus   bool
}

func openSocketCAN(ifname string, flags OpenFlag) (Channel, error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, err
	}

	return &socketChannel{
		ifname:  ifname,
		ifindex: iface.Index,
		flags:   flags,
		rate:    DatarateDefault,
		fd:      -1,
	}, nil
}

func (c *socketChannel) SetBitrate(rate Datarate) error {
	if c.onbus {
		return ERR_ON_BUS
	}
	c.rate = rate
	return nil
}

func (c *socketChannel) GoOnBus() (err error) {
	if c.onbus {
		return ERR_ON_BUS
	}

	if c.flags&OpenConfigureDevice != 0 {
		if err = configureDevice(c.ifname, c.rate); err != nil {
			return err
		}
	}

	c.fd, err = unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return err
	}

	addr := &unix.SockaddrCAN{Ifindex: c.ifindex}
	if err = unix.Bind(c.fd, addr); err != nil {
		unix.Close(c.fd)
		c.fd = -1
		return err
	}

	// Read must poll, not block the ok loop
	if err = unix.SetNonblock(c.fd, true); err != nil {
		unix.Close(c.fd)
		c.fd = -1
		return err
	}

	c.onbus = true
	return nil
}

func (c *socketChannel) GoOffBus() error {
	if !c.onbus {
		return ERR_OFF_BUS
	}
	c.onbus = false

	err := unix.Close(c.fd)
	c.fd = -1
	return err
}

func (c *socketChannel) Read() (*Frame, error) {
	if !c.onbus {
		return nil, ERR_OFF_BUS
	}

	raw := make([]byte, FrameLength)
	n, err := unix.Read(c.fd, raw)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return nil, ERR_UNAVAILABLE
		}
		return nil, err
	}
	if n < FrameLength {
		return nil, ERR_SHORT_FRAME
	}

	return FrameFromByteArray(raw)
}

func (c *socketChannel) Send(msg *Frame) error {
	if !c.onbus {
		return ERR_OFF_BUS
	}

	raw, err := msg.ToByteArray()
	if err != nil {
		return err
	}

	_, err = unix.Write(c.fd, raw)
	return err
}

func (c *socketChannel) OnBus() bool {
	return c.onbus
}
