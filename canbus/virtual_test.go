package canbus

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestVirtualChannel(t *testing.T) {
	bus := Virtual(200)

	Convey("Lifecycle is enforced", t, func() {
		ch := bus.Open()

		Convey("reading off bus fails", func() {
			_, err := ch.Read()
			So(err, ShouldEqual, ERR_OFF_BUS)
		})

		Convey("bitrate can only change off bus", func() {
			So(ch.SetBitrate(Datarate250K), ShouldBeNil)
			So(ch.Rate(), ShouldEqual, Datarate250K)

			So(ch.GoOnBus(), ShouldBeNil)
			So(ch.SetBitrate(Datarate500K), ShouldEqual, ERR_ON_BUS)
			So(ch.GoOnBus(), ShouldEqual, ERR_ON_BUS)

			So(ch.GoOffBus(), ShouldBeNil)
			So(ch.GoOffBus(), ShouldEqual, ERR_OFF_BUS)
		})
	})

	Convey("Frames move between on-bus peers", t, func() {
		rx := bus.Open()
		tx := bus.Open()
		So(rx.GoOnBus(), ShouldBeNil)
		So(tx.GoOnBus(), ShouldBeNil)
		defer rx.GoOffBus()
		defer tx.GoOffBus()

		Convey("an empty queue reads as unavailable", func() {
			_, err := rx.Read()
			So(err, ShouldEqual, ERR_UNAVAILABLE)
		})

		Convey("a sent frame arrives at the peer only", func() {
			msg := &Frame{ID: 0x42, Data: []byte{1, 2, 3}}
			So(tx.Send(msg), ShouldBeNil)

			out, err := rx.Read()
			So(err, ShouldBeNil)
			So(out.ID, ShouldEqual, uint32(0x42))
			So(out.Data, ShouldResemble, []byte{1, 2, 3})

			// no echo back to the sender
			_, err = tx.Read()
			So(err, ShouldEqual, ERR_UNAVAILABLE)
		})

		Convey("invalid frames are rejected before broadcast", func() {
			So(tx.Send(&Frame{ID: 0x1000}), ShouldEqual, ERR_BAD_ID)
			_, err := rx.Read()
			So(err, ShouldEqual, ERR_UNAVAILABLE)
		})
	})

	Convey("Virtual returns the same bus per channel number", t, func() {
		So(Virtual(200), ShouldEqual, bus)
		So(Virtual(201), ShouldNotEqual, bus)
	})
}

func TestOpenFallsBackToVirtual(t *testing.T) {
	Convey("A missing interface with AllowVirtual yields a virtual channel", t, func() {
		// channel numbers this large never exist as real interfaces
		ch, err := Open(4093, OpenAllowVirtual)
		So(err, ShouldBeNil)
		So(ch, ShouldHaveSameTypeAs, &VirtualChannel{})
	})

	Convey("Without AllowVirtual the open error surfaces", t, func() {
		_, err := Open(4094, 0)
		So(err, ShouldNotBeNil)
	})
}
