package monitor

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"cannode/canbus"
	"cannode/journal"
	"cannode/reader"
)

//---
// Response payloads
//---

type StatsPayload struct {
	Channel uint32 `json:"channel"`
	reader.StatsSnapshot
}

func NewStatsPayload(channel uint32, s reader.StatsSnapshot) *StatsPayload {
	return &StatsPayload{Channel: channel, StatsSnapshot: s}
}

func (p *StatsPayload) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type FramePayload struct {
	At       time.Time `json:"at"`
	ID       uint32    `json:"id"`
	IDHex    string    `json:"id_hex"`
	Extended bool      `json:"extended"`
	RTR      bool      `json:"rtr"`
	DLC      int       `json:"dlc"`
	Data     []byte    `json:"data"`
}

func NewFramePayload(f *canbus.Frame) *FramePayload {
	return &FramePayload{
		At:       time.Now(),
		ID:       f.ID,
		IDHex:    fmt.Sprintf("0x%X", f.ID),
		Extended: f.Extended,
		RTR:      f.RTR,
		DLC:      len(f.Data),
		Data:     append([]byte(nil), f.Data...),
	}
}

type EntryPayload struct {
	journal.Entry
}

func (p *EntryPayload) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func NewEntryListPayload(entries []journal.Entry) []render.Renderer {
	list := make([]render.Renderer, 0, len(entries))
	for i := range entries {
		list = append(list, &EntryPayload{entries[i]})
	}
	return list
}

//---
// Error responses
//---

type ErrResponse struct {
	Err            error `json:"-"`
	HTTPStatusCode int   `json:"-"`

	StatusText string `json:"status"`
	ErrorText  string `json:"error,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func ErrInvalidRequest(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     "Invalid request",
		ErrorText:      err.Error(),
	}
}

func ErrUnauthorized(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusUnauthorized,
		StatusText:     "Unauthorized",
		ErrorText:      err.Error(),
	}
}

func ErrPermissionDenied(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusForbidden,
		StatusText:     "Permission denied",
		ErrorText:      err.Error(),
	}
}

func ErrRender(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusUnprocessableEntity,
		StatusText:     "Error rendering response",
		ErrorText:      err.Error(),
	}
}

var ErrNotFound = &ErrResponse{HTTPStatusCode: http.StatusNotFound, StatusText: "Resource not found"}
