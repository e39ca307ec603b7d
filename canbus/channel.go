package canbus

import (
	"errors"
	"fmt"
)

// Datarate is a CAN bit rate in bits per second.
type Datarate uint32

const (
	Datarate125K Datarate = 125000
	Datarate250K Datarate = 250000
	Datarate500K Datarate = 500000
	Datarate1M   Datarate = 1000000

	DatarateDefault = Datarate500K
)

type OpenFlag uint32

const (
	// OpenAllowVirtual falls back to a process local virtual channel when
	// the host has no matching CAN interface.
	OpenAllowVirtual OpenFlag = 1 << iota

	// OpenConfigureDevice sets the interface bit rate and brings it up on
	// GoOnBus. Requires CAP_NET_ADMIN.
	OpenConfigureDevice
)

var (
	ERR_UNAVAILABLE   = errors.New("no frame available")
	ERR_OFF_BUS       = errors.New("channel is not on bus")
	ERR_ON_BUS        = errors.New("channel is already on bus")
	ERR_NOT_SUPPORTED = errors.New("socketcan is not supported on this platform")
)

// Channel is a single CAN channel handle. The lifecycle is
// Open -> SetBitrate -> GoOnBus -> Read/Send... -> GoOffBus.
// Implementations are not safe for concurrent Read but allow Send from
// other goroutines.
type Channel interface {
	// SetBitrate records the bit rate to use. Must be called before GoOnBus.
	SetBitrate(rate Datarate) error

	// GoOnBus connects the channel to the bus.
	GoOnBus() error

	// GoOffBus disconnects and releases the underlying handle.
	GoOffBus() error

	// Read returns the next pending frame, or ERR_UNAVAILABLE when the
	// receive queue is empty. It never blocks.
	Read() (*Frame, error)

	// Send queues a frame for transmission.
	Send(msg *Frame) error

	OnBus() bool
}

// Open resolves CAN channel number n to the host interface "can<n>". With
// OpenAllowVirtual set, a missing interface is not an error: a virtual
// channel attached to the process local bus for n is returned instead.
func Open(n uint32, flags OpenFlag) (Channel, error) {
	ch, err := openSocketCAN(ifaceName(n), flags)
	if err != nil {
		if flags&OpenAllowVirtual != 0 {
			return Virtual(n).Open(), nil
		}
		return nil, err
	}
	return ch, nil
}

func ifaceName(n uint32) string {
	return fmt.Sprintf("can%d", n)
}
