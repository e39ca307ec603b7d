package canbus

import (
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Netlink plumbing to configure a CAN network device: set the bit timing
// and flip the interface up or down. Both are rtnetlink RTM_NEWLINK
// requests and need CAP_NET_ADMIN.

const (
	iflaCANBittiming = 1 // IFLA_CAN_BITTIMING

	// struct can_bittiming: bitrate, sample_point, tq, prop_seg,
	// phase_seg1, phase_seg2, sjw, brp. All __u32.
	sizeofBittiming = 32
)

// configureDevice brings ifname down, applies the bit rate and brings it
// back up. Called from GoOnBus when OpenConfigureDevice is set.
func configureDevice(ifname string, rate Datarate) error {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return err
	}

	nl, err := openNetlink()
	if err != nil {
		return err
	}
	defer unix.Close(nl)

	if err := linkSetUp(nl, iface.Index, false); err != nil {
		return fmt.Errorf("link down %s: %w", ifname, err)
	}
	if err := linkSetBitrate(nl, iface.Index, uint32(rate)); err != nil {
		return fmt.Errorf("set bitrate %s: %w", ifname, err)
	}
	if err := linkSetUp(nl, iface.Index, true); err != nil {
		return fmt.Errorf("link up %s: %w", ifname, err)
	}
	return nil
}

func openNetlink() (int, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_ROUTE)
	if err != nil {
		return -1, err
	}
	if err = unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK}); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func linkSetUp(nl, ifindex int, up bool) error {
	var flags uint32
	if up {
		flags = unix.IFF_UP
	}
	return rtnlRequest(nl, ifindex, flags, unix.IFF_UP, nil)
}

func linkSetBitrate(nl, ifindex int, bitrate uint32) error {
	timing := make([]byte, sizeofBittiming)
	binary.LittleEndian.PutUint32(timing[0:4], bitrate)

	// IFLA_LINKINFO{ IFLA_INFO_KIND "can", IFLA_INFO_DATA{ IFLA_CAN_BITTIMING } }
	data := nlattr(iflaCANBittiming, timing)
	info := append(
		nlattr(unix.IFLA_INFO_KIND, []byte("can")),
		nlattr(unix.IFLA_INFO_DATA, data)...,
	)
	return rtnlRequest(nl, ifindex, 0, 0, nlattr(unix.IFLA_LINKINFO, info))
}

// rtnlRequest issues a single RTM_NEWLINK for ifindex and waits for the ack.
func rtnlRequest(nl, ifindex int, flags, change uint32, attrs []byte) error {
	req := make([]byte, unix.SizeofNlMsghdr+unix.SizeofIfInfomsg+len(attrs))

	binary.LittleEndian.PutUint32(req[0:4], uint32(len(req))) // nlmsg_len
	binary.LittleEndian.PutUint16(req[4:6], unix.RTM_NEWLINK) // nlmsg_type
	binary.LittleEndian.PutUint16(req[6:8], unix.NLM_F_REQUEST|unix.NLM_F_ACK)
	binary.LittleEndian.PutUint32(req[8:12], 1)  // nlmsg_seq
	binary.LittleEndian.PutUint32(req[12:16], 0) // nlmsg_pid

	ifi := req[unix.SizeofNlMsghdr:]
	ifi[0] = unix.AF_UNSPEC
	binary.LittleEndian.PutUint32(ifi[4:8], uint32(ifindex))
	binary.LittleEndian.PutUint32(ifi[8:12], flags)
	binary.LittleEndian.PutUint32(ifi[12:16], change)

	copy(req[unix.SizeofNlMsghdr+unix.SizeofIfInfomsg:], attrs)

	if err := unix.Sendto(nl, req, 0, &unix.SockaddrNetlink{Family: unix.AF_NETLINK}); err != nil {
		return err
	}

	resp := make([]byte, 4096)
	n, _, err := unix.Recvfrom(nl, resp, 0)
	if err != nil {
		return err
	}
	if n < unix.SizeofNlMsghdr+4 {
		return fmt.Errorf("short netlink response (%d bytes)", n)
	}

	typ := binary.LittleEndian.Uint16(resp[4:6])
	if typ != unix.NLMSG_ERROR {
		return fmt.Errorf("unexpected netlink message type 0x%x", typ)
	}

	// nlmsgerr.error: 0 is the ack, otherwise a negated errno
	code := int32(binary.LittleEndian.Uint32(resp[unix.SizeofNlMsghdr : unix.SizeofNlMsghdr+4]))
	if code != 0 {
		return unix.Errno(-code)
	}
	return nil
}

// nlattr encodes a single netlink attribute with 4 byte alignment.
func nlattr(kind uint16, data []byte) []byte {
	length := unix.SizeofRtAttr + len(data)
	buf := make([]byte, (length+3)&^3)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(length))
	binary.LittleEndian.PutUint16(buf[2:4], kind)
	copy(buf[4:], data)
	return buf
}
