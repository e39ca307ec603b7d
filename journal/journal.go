// Package journal persists received frames to the node's bolt database so
// the monitor API can serve a tail of recent traffic.
package journal

import (
	"time"

	"github.com/asdine/storm"

	"cannode/canbus"
)

// Entry is one received frame as stored.
type Entry struct {
	Pk       int       `storm:"id,increment" json:"-"`
	At       time.Time `json:"at"`
	Channel  uint32    `json:"channel"`
	CANID    uint32    `storm:"index" json:"id"`
	Extended bool      `json:"extended"`
	RTR      bool      `json:"rtr"`
	DLC      int       `json:"dlc"`
	Data     []byte    `json:"data"`
}

type Journal struct {
	db *storm.DB
}

// New attaches a journal to an already open storm DB and prepares the
// Entry bucket.
func New(db *storm.DB) (*Journal, error) {
	if err := db.Init(&Entry{}); err != nil {
		return nil, err
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Record(channel uint32, f *canbus.Frame) error {
	e := &Entry{
		At:       time.Now(),
		Channel:  channel,
		CANID:    f.ID,
		Extended: f.Extended,
		RTR:      f.RTR,
		DLC:      len(f.Data),
		Data:     append([]byte(nil), f.Data...),
	}
	return j.db.Save(e)
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(n int) (entries []Entry, err error) {
	if n < 1 {
		n = 1
	}
	err = j.db.All(&entries, storm.Limit(n), storm.Reverse())
	if err == storm.ErrNotFound {
		return nil, nil
	}
	return entries, err
}

func (j *Journal) Count() (int, error) {
	return j.db.Count(&Entry{})
}

// Follow records everything arriving on sub until it is closed. Run it in
// its own goroutine against a reader subscription.
func (j *Journal) Follow(channel uint32, sub <-chan *canbus.Frame) {
	for f := range sub {
		j.Record(channel, f)
	}
}
