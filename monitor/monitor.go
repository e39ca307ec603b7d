// Package monitor exposes the reader over HTTP: stats and the journal tail
// as JSON, plus a websocket stream of live frames.
package monitor

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"

	"cannode/journal"
	"cannode/reader"
)

const defaultRecent = 50

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Monitor struct {
	Reader  *reader.Node
	Journal *journal.Journal // nil when journaling is disabled
}

// Routes builds the /api subtree served by main.
func (m *Monitor) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/stats", m.GetStats)
	r.Get("/recent", m.GetRecent)
	return r
}

func (m *Monitor) GetStats(w http.ResponseWriter, r *http.Request) {
	payload := NewStatsPayload(m.Reader.ChannelID(), m.Reader.Stats())
	if err := render.Render(w, r, payload); err != nil {
		render.Render(w, r, ErrRender(err))
	}
}

func (m *Monitor) GetRecent(w http.ResponseWriter, r *http.Request) {
	if m.Journal == nil {
		render.Render(w, r, ErrNotFound)
		return
	}

	n := defaultRecent
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			render.Render(w, r, ErrInvalidRequest(errors.New("n must be a positive integer")))
			return
		}
		n = parsed
	}

	entries, err := m.Journal.Recent(n)
	if err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}

	if err := render.RenderList(w, r, NewEntryListPayload(entries)); err != nil {
		render.Render(w, r, ErrRender(err))
	}
}

// StreamFrames upgrades to a websocket and pushes every frame the reader
// sees as a JSON object until the client goes away.
func (m *Monitor) StreamFrames(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Print("upgrade:", err)
		return
	}
	defer c.Close()

	sub, cancel := m.Reader.Subscribe(64)
	defer cancel()

	// discard client messages, surface the close
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case f, ok := <-sub:
			if !ok {
				return
			}
			if err := c.WriteJSON(NewFramePayload(f)); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
