package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/asdine/storm"
	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"cannode/canbus"
	"cannode/journal"
	"cannode/node"
	"cannode/reader"
)

func newTestMonitor(t *testing.T, channel uint32) (*Monitor, *canbus.VirtualChannel, *node.Runtime) {
	t.Helper()

	bus := canbus.Virtual(channel)
	rdr := reader.New(channel, canbus.OpenAllowVirtual, canbus.Datarate500K)
	rdr.UseChannel(bus.Open())
	rdr.SetOutput(nopWriter{})

	peer := bus.Open()
	peer.GoOnBus()

	rt := node.NewRuntime("monitor-test", rdr)

	return &Monitor{Reader: rdr}, peer, rt
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestGetStats(t *testing.T) {
	m, peer, rt := newTestMonitor(t, 400)

	m.Reader.InitStateEvent(rt)
	if rt.Fault() != nil {
		t.Fatal(rt.Fault())
	}

	peer.Send(&canbus.Frame{ID: 0x77, Data: []byte{1, 2}})
	m.Reader.OkStateEvent(rt)

	Convey("Stats render as JSON", t, func() {
		req := httptest.NewRequest("GET", "/stats", nil)
		rr := httptest.NewRecorder()
		m.Routes().ServeHTTP(rr, req)

		So(rr.Code, ShouldEqual, http.StatusOK)

		var payload StatsPayload
		So(json.Unmarshal(rr.Body.Bytes(), &payload), ShouldBeNil)
		So(payload.Channel, ShouldEqual, uint32(400))
		So(payload.Frames, ShouldEqual, 1)
		So(payload.LastID, ShouldEqual, uint32(0x77))
		So(payload.LastDLC, ShouldEqual, 2)
	})
}

func TestGetRecent(t *testing.T) {
	m, _, _ := newTestMonitor(t, 401)

	Convey("Without a journal recent is a 404", t, func() {
		req := httptest.NewRequest("GET", "/recent", nil)
		rr := httptest.NewRecorder()
		m.Routes().ServeHTTP(rr, req)

		So(rr.Code, ShouldEqual, http.StatusNotFound)
	})

	Convey("With a journal the tail comes back newest first", t, func() {
		db, err := storm.Open(filepath.Join(t.TempDir(), "test.db"))
		So(err, ShouldBeNil)
		defer db.Close()

		j, err := journal.New(db)
		So(err, ShouldBeNil)
		m.Journal = j

		for i := 1; i <= 4; i++ {
			j.Record(401, &canbus.Frame{ID: uint32(0x200 + i)})
		}

		req := httptest.NewRequest("GET", "/recent?n=2", nil)
		rr := httptest.NewRecorder()
		m.Routes().ServeHTTP(rr, req)

		So(rr.Code, ShouldEqual, http.StatusOK)

		var entries []journal.Entry
		So(json.Unmarshal(rr.Body.Bytes(), &entries), ShouldBeNil)
		So(len(entries), ShouldEqual, 2)
		So(entries[0].CANID, ShouldEqual, uint32(0x204))

		Convey("a bad count is rejected", func() {
			req := httptest.NewRequest("GET", "/recent?n=bogus", nil)
			rr := httptest.NewRecorder()
			m.Routes().ServeHTTP(rr, req)

			So(rr.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestStreamFrames(t *testing.T) {
	m, peer, rt := newTestMonitor(t, 402)
	rt.SetTick(time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- rt.Connect() }()
	defer func() {
		rt.Disconnect()
		<-done
	}()

	Convey("Frames stream over the websocket as JSON", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(m.StreamFrames))
		defer srv.Close()

		url := "ws" + strings.TrimPrefix(srv.URL, "http")
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		So(err, ShouldBeNil)
		defer conn.Close()

		peer.Send(&canbus.Frame{ID: 0x3AB, Data: []byte{0xCA, 0xFE}})

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var payload FramePayload
		So(conn.ReadJSON(&payload), ShouldBeNil)
		So(payload.ID, ShouldEqual, uint32(0x3AB))
		So(payload.IDHex, ShouldEqual, "0x3AB")
		So(payload.DLC, ShouldEqual, 2)
		So(payload.Data, ShouldResemble, []byte{0xCA, 0xFE})
	})
}
