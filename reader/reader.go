// Package reader implements the CAN reader node: open one channel,
// configure its bit rate, go on bus and poll frames, printing the
// identifier and DLC of everything received.
package reader

import (
	"fmt"
	"io"
	"os"
	"sync"

	"cannode/canbus"
	"cannode/node"
)

type Node struct {
	channelID uint32
	flags     canbus.OpenFlag
	rate      canbus.Datarate

	out  io.Writer
	gate *VersionGate

	channel canbus.Channel
	stats   Stats

	mu      sync.Mutex
	subs    map[uint64]chan *canbus.Frame
	nextSub uint64
}

func New(channelID uint32, flags canbus.OpenFlag, rate canbus.Datarate) *Node {
	return &Node{
		channelID: channelID,
		flags:     flags,
		rate:      rate,
		out:       os.Stdout,
		subs:      make(map[uint64]chan *canbus.Frame),
	}
}

// SetOutput redirects the per-frame console output, stdout by default.
func (n *Node) SetOutput(w io.Writer) {
	n.out = w
}

// SetVersionGate enables the firmware version handshake during init.
func (n *Node) SetVersionGate(g *VersionGate) {
	n.gate = g
}

// UseChannel forces a specific channel handle instead of opening one from
// the channel number. Used by simulator mode and tests.
func (n *Node) UseChannel(ch canbus.Channel) {
	n.channel = ch
}

func (n *Node) ChannelID() uint32 {
	return n.channelID
}

// Channel exposes the live handle, nil before init and after release.
func (n *Node) Channel() canbus.Channel {
	return n.channel
}

func (n *Node) Stats() StatsSnapshot {
	return n.stats.Snapshot()
}

// Subscribe registers an observer for received frames. Slow observers drop
// frames rather than stall the poll loop. The cancel func closes the channel.
func (n *Node) Subscribe(buffer int) (<-chan *canbus.Frame, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan *canbus.Frame, buffer)

	n.mu.Lock()
	id := n.nextSub
	n.nextSub++
	n.subs[id] = ch
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		if cur, ok := n.subs[id]; ok && cur == ch {
			delete(n.subs, id)
			close(cur)
		}
		n.mu.Unlock()
	}
	return ch, cancel
}

func (n *Node) publish(f *canbus.Frame) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- f:
		default:
		}
	}
}

// InitStateEvent opens the channel, applies the bit rate and goes on bus.
// Any failure activates a fault which routes to the error state.
func (n *Node) InitStateEvent(r *node.Runtime) {
	fmt.Fprintf(n.out, "%s: init state, channel %d\n", r.Name(), n.channelID)

	if n.channel == nil {
		ch, err := canbus.Open(n.channelID, n.flags)
		if err != nil {
			fmt.Fprintf(n.out, "%s: %v\n", r.Name(), err)
			r.ActivateFault(node.DTCConfig, err)
			return
		}
		n.channel = ch
	}

	if err := n.channel.SetBitrate(n.rate); err != nil {
		fmt.Fprintf(n.out, "%s: %v\n", r.Name(), err)
		r.ActivateFault(node.DTCConfig, err)
		return
	}

	if err := n.channel.GoOnBus(); err != nil {
		fmt.Fprintf(n.out, "%s: %v\n", r.Name(), err)
		r.ActivateFault(node.DTCBus, err)
		return
	}

	if n.gate != nil {
		if err := n.gate.Check(n.channel); err != nil {
			fmt.Fprintf(n.out, "%s: %v\n", r.Name(), err)
			r.ActivateFault(node.DTCConfig, err)
			return
		}
	}

	fmt.Fprintf(n.out, "%s: on bus at %d bit/s\n", r.Name(), n.rate)
}

// OkStateEvent reads one frame and prints its ID and DLC. An empty receive
// queue is not a fault; the next tick polls again.
func (n *Node) OkStateEvent(r *node.Runtime) {
	f, err := n.channel.Read()
	if err != nil {
		if err == canbus.ERR_UNAVAILABLE {
			return
		}
		fmt.Fprintf(n.out, "%s: %v\n", r.Name(), err)
		r.ActivateFault(node.DTCBus, err)
		return
	}

	fmt.Fprintf(n.out, "CAN frame - ID: 0x%X\n", f.ID)
	fmt.Fprintf(n.out, "DLC: %d\n", len(f.Data))

	n.stats.Record(f)
	n.publish(f)
}

// ErrorStateEvent disconnects the runtime, which triggers release.
func (n *Node) ErrorStateEvent(r *node.Runtime) {
	fmt.Fprintf(n.out, "%s: error state: %v\n", r.Name(), r.Fault())
	r.Disconnect()
}

// ReleaseStateEvent goes off bus and drops the channel handle.
func (n *Node) ReleaseStateEvent(r *node.Runtime) {
	fmt.Fprintf(n.out, "%s: release state\n", r.Name())

	if n.channel != nil {
		if n.channel.OnBus() {
			if err := n.channel.GoOffBus(); err != nil {
				fmt.Fprintf(n.out, "%s: %v\n", r.Name(), err)
			}
		}
		n.channel = nil
	}
}
