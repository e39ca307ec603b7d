package reader

import (
	"bytes"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"cannode/canbus"
	"cannode/node"
)

func newTestNode(channel uint32) (*Node, *canbus.VirtualChannel, *bytes.Buffer) {
	bus := canbus.Virtual(channel)

	n := New(channel, canbus.OpenAllowVirtual, canbus.Datarate500K)
	n.UseChannel(bus.Open())

	out := new(bytes.Buffer)
	n.SetOutput(out)

	peer := bus.Open()
	peer.GoOnBus()

	return n, peer, out
}

func TestReaderLifecycle(t *testing.T) {
	Convey("Init takes the channel on bus", t, func() {
		n, _, out := newTestNode(300)
		rt := node.NewRuntime("canreader", n)

		n.InitStateEvent(rt)

		So(rt.Fault(), ShouldBeNil)
		So(n.Channel().OnBus(), ShouldBeTrue)
		So(out.String(), ShouldContainSubstring, "on bus at 500000 bit/s")

		Convey("and release takes it back off", func() {
			n.ReleaseStateEvent(rt)
			So(n.Channel(), ShouldBeNil)
			So(out.String(), ShouldContainSubstring, "release state")
		})
	})

	Convey("Open failure during init activates a config fault", t, func() {
		// no interface with this number and no virtual fallback allowed
		n := New(4095, 0, canbus.Datarate500K)
		n.SetOutput(new(bytes.Buffer))
		rt := node.NewRuntime("canreader", n)

		n.InitStateEvent(rt)

		So(rt.Fault(), ShouldNotBeNil)
		So(rt.Fault().Code, ShouldEqual, node.DTCConfig)
	})
}

func TestReaderOkState(t *testing.T) {
	Convey("With the node on bus", t, func() {
		n, peer, out := newTestNode(301)
		rt := node.NewRuntime("canreader", n)
		n.InitStateEvent(rt)
		So(rt.Fault(), ShouldBeNil)

		Convey("an empty queue is quietly skipped", func() {
			before := out.Len()
			n.OkStateEvent(rt)

			So(rt.Fault(), ShouldBeNil)
			So(out.Len(), ShouldEqual, before)
		})

		Convey("a received frame prints ID and DLC", func() {
			So(peer.Send(&canbus.Frame{ID: 0x2A, Data: []byte{1, 2, 3}}), ShouldBeNil)
			n.OkStateEvent(rt)

			So(out.String(), ShouldContainSubstring, "CAN frame - ID: 0x2A")
			So(out.String(), ShouldContainSubstring, "DLC: 3")

			Convey("and shows up in the stats", func() {
				s := n.Stats()
				So(s.Frames, ShouldEqual, 1)
				So(s.Bytes, ShouldEqual, 3)
				So(s.LastID, ShouldEqual, uint32(0x2A))
				So(s.PerID[0x2A], ShouldEqual, 1)
			})
		})

		Convey("subscribers get the frame, slow ones drop", func() {
			sub, cancel := n.Subscribe(1)
			defer cancel()

			peer.Send(&canbus.Frame{ID: 0x10, Data: []byte{0xFF}})
			peer.Send(&canbus.Frame{ID: 0x11, Data: []byte{0xFE}})
			n.OkStateEvent(rt)
			n.OkStateEvent(rt) // second publish drops, buffer is full

			f := <-sub
			So(f.ID, ShouldEqual, uint32(0x10))
			So(len(sub), ShouldEqual, 0)
		})

		Convey("a read error activates a bus fault", func() {
			n.Channel().GoOffBus() // yank the bus out from underneath
			n.OkStateEvent(rt)

			So(rt.Fault(), ShouldNotBeNil)
			So(rt.Fault().Code, ShouldEqual, node.DTCBus)
		})
	})
}

func TestReaderRuntime(t *testing.T) {
	Convey("A full connect prints frames until disconnect", t, func() {
		n, peer, out := newTestNode(302)
		rt := node.NewRuntime("canreader", n)
		rt.SetTick(time.Millisecond)

		done := make(chan error, 1)
		go func() { done <- rt.Connect() }()

		// give init a moment, then feed frames
		time.Sleep(20 * time.Millisecond)
		peer.Send(&canbus.Frame{ID: 0x123, Data: []byte{9, 8, 7, 6}})

		So(waitFor(func() bool { return n.Stats().Frames == 1 }), ShouldBeTrue)

		rt.Disconnect()
		So(<-done, ShouldBeNil)

		So(out.String(), ShouldContainSubstring, "CAN frame - ID: 0x123")
		So(out.String(), ShouldContainSubstring, "DLC: 4")
		So(out.String(), ShouldContainSubstring, "release state")
	})
}

func TestVersionGate(t *testing.T) {
	Convey("With a peer that answers version requests", t, func() {
		answer := func(peer *canbus.VirtualChannel, reply string) {
			go func() {
				deadline := time.Now().Add(time.Second)
				for time.Now().Before(deadline) {
					f, err := peer.Read()
					if err != nil {
						time.Sleep(time.Millisecond)
						continue
					}
					if f.ID == 0x700 {
						peer.Send(&canbus.Frame{ID: 0x701, Data: []byte(reply)})
						return
					}
				}
			}()
		}

		gate := &VersionGate{Constraint: "~0.1.0", RequestID: 0x700}

		Convey("a satisfying version passes", func() {
			n, peer, _ := newTestNode(310)
			n.Channel().GoOnBus()
			answer(peer, "0.1.4")

			So(gate.Check(n.Channel()), ShouldBeNil)
		})

		Convey("DEV builds pass", func() {
			n, peer, _ := newTestNode(311)
			n.Channel().GoOnBus()
			answer(peer, "DEV")

			So(gate.Check(n.Channel()), ShouldBeNil)
		})

		Convey("a version outside the constraint fails", func() {
			n, peer, _ := newTestNode(312)
			n.Channel().GoOnBus()
			answer(peer, "1.0.0")

			err := gate.Check(n.Channel())
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "does not satisfy")
		})

		Convey("silence times out", func() {
			n, _, _ := newTestNode(313)
			n.Channel().GoOnBus()

			quick := &VersionGate{Constraint: "~0.1.0", RequestID: 0x700, Timeout: 20 * time.Millisecond}
			err := quick.Check(n.Channel())
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "no version reply")
		})
	})
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
