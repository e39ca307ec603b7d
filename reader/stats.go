package reader

import (
	"sync"
	"time"

	"cannode/canbus"
)

// Stats counts what has come off the wire since the node went on bus.
type Stats struct {
	mu       sync.Mutex
	frames   uint64
	bytes    uint64
	perID    map[uint32]uint64
	lastID   uint32
	lastDLC  int
	lastSeen time.Time
}

type StatsSnapshot struct {
	Frames   uint64            `json:"frames"`
	Bytes    uint64            `json:"bytes"`
	PerID    map[uint32]uint64 `json:"per_id"`
	LastID   uint32            `json:"last_id"`
	LastDLC  int               `json:"last_dlc"`
	LastSeen time.Time         `json:"last_seen"`
}

func (s *Stats) Record(f *canbus.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.perID == nil {
		s.perID = make(map[uint32]uint64)
	}
	s.frames++
	s.bytes += uint64(len(f.Data))
	s.perID[f.ID]++
	s.lastID = f.ID
	s.lastDLC = len(f.Data)
	s.lastSeen = time.Now()
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	per := make(map[uint32]uint64, len(s.perID))
	for id, n := range s.perID {
		per[id] = n
	}

	return StatsSnapshot{
		Frames:   s.frames,
		Bytes:    s.bytes,
		PerID:    per,
		LastID:   s.lastID,
		LastDLC:  s.lastDLC,
		LastSeen: s.lastSeen,
	}
}
