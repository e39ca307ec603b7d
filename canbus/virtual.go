package canbus

import (
	"sync"
)

const virtualQueueDepth = 64

var (
	virtualMu    sync.Mutex
	virtualBuses = make(map[uint32]*VirtualBus)
)

// Virtual returns the process local bus for channel number n, creating it
// on first use. Every VirtualChannel opened from the same bus exchanges
// frames with the others, which is how tests and simulator peers talk to
// a reader that fell back from real hardware.
func Virtual(n uint32) *VirtualBus {
	virtualMu.Lock()
	defer virtualMu.Unlock()

	bus, ok := virtualBuses[n]
	if !ok {
		bus = &VirtualBus{
			n:       n,
			members: make(map[*VirtualChannel]struct{}),
		}
		virtualBuses[n] = bus
	}
	return bus
}

type VirtualBus struct {
	n       uint32
	mu      sync.RWMutex
	members map[*VirtualChannel]struct{}
}

// Open creates a new channel attached to the bus. The channel starts off
// bus; use the usual SetBitrate/GoOnBus sequence.
func (b *VirtualBus) Open() *VirtualChannel {
	return &VirtualChannel{
		bus:  b,
		rate: DatarateDefault,
		rx:   make(chan *Frame, virtualQueueDepth),
	}
}

func (b *VirtualBus) broadcast(from *VirtualChannel, msg *Frame) {
	cp := &Frame{
		ID:       msg.ID,
		Extended: msg.Extended,
		RTR:      msg.RTR,
		Data:     append([]byte(nil), msg.Data...),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for m := range b.members {
		if m == from {
			continue
		}
		select {
		case m.rx <- cp:
		default:
			// slow receiver, frame is dropped like a full hw queue
		}
	}
}

func (b *VirtualBus) attach(c *VirtualChannel) {
	b.mu.Lock()
	b.members[c] = struct{}{}
	b.mu.Unlock()
}

func (b *VirtualBus) detach(c *VirtualChannel) {
	b.mu.Lock()
	delete(b.members, c)
	b.mu.Unlock()
}

type VirtualChannel struct {
	bus   *VirtualBus
	mu    sync.Mutex
	rate  Datarate
	rx    chan *Frame
	onbus bool
}

func (c *VirtualChannel) SetBitrate(rate Datarate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.onbus {
		return ERR_ON_BUS
	}
	c.rate = rate
	return nil
}

// Rate reports the configured bit rate. Virtual channels only record it.
func (c *VirtualChannel) Rate() Datarate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

func (c *VirtualChannel) GoOnBus() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.onbus {
		return ERR_ON_BUS
	}
	c.onbus = true
	c.bus.attach(c)
	return nil
}

func (c *VirtualChannel) GoOffBus() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.onbus {
		return ERR_OFF_BUS
	}
	c.onbus = false
	c.bus.detach(c)
	return nil
}

func (c *VirtualChannel) Read() (*Frame, error) {
	c.mu.Lock()
	onbus := c.onbus
	c.mu.Unlock()
	if !onbus {
		return nil, ERR_OFF_BUS
	}

	select {
	case f := <-c.rx:
		return f, nil
	default:
		return nil, ERR_UNAVAILABLE
	}
}

func (c *VirtualChannel) Send(msg *Frame) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	onbus := c.onbus
	c.mu.Unlock()
	if !onbus {
		return ERR_OFF_BUS
	}

	c.bus.broadcast(c, msg)
	return nil
}

func (c *VirtualChannel) OnBus() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onbus
}
