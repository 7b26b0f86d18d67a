// Package tracker keeps the last-known state the status UI reads:
// link state, per-source last positions and the cumulative collar fix
// count. Positions are not retained beyond last-known-per-source.
package tracker

import (
	"sync"
	"time"

	"github.com/mighkel/GdogTAK/internal/alpha"
)

// Entity is one currently-known tracked device.
type Entity struct {
	Source string
	LatDeg float64
	LonDeg float64
	SeenAt time.Time
}

// Snapshot is a point-in-time copy handed to the UI.
type Snapshot struct {
	State       string
	Status      string
	CollarCount uint64
	HasFix      bool
	LastLatDeg  float64
	LastLonDeg  float64
	Entities    []Entity
}

// Store is safe for concurrent use: the link engine writes from its
// dispatch queue while UI surfaces read.
type Store struct {
	mu sync.RWMutex

	state  alpha.LinkState
	status string

	collarCount uint64
	hasFix      bool
	lastLat     float64
	lastLon     float64

	lastSeen map[alpha.Source]Entity
}

func NewStore() *Store {
	return &Store{
		lastSeen: make(map[alpha.Source]Entity),
	}
}

// SetLinkState records the engine's current state and status line.
func (s *Store) SetLinkState(state alpha.LinkState, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.status = status
}

// Record folds in one decoded position.
func (s *Store) Record(p alpha.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeen[p.Source] = Entity{
		Source: p.Source.String(),
		LatDeg: p.LatDeg,
		LonDeg: p.LonDeg,
		SeenAt: p.ObservedAt,
	}
	if p.Source == alpha.SourceCollar {
		s.collarCount++
		s.hasFix = true
		s.lastLat = p.LatDeg
		s.lastLon = p.LonDeg
	}
}

// Snapshot returns a copy of the current state. Entities are ordered
// collar, handheld, contact.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		State:       s.state.String(),
		Status:      s.status,
		CollarCount: s.collarCount,
		HasFix:      s.hasFix,
		LastLatDeg:  s.lastLat,
		LastLonDeg:  s.lastLon,
	}
	for _, src := range []alpha.Source{alpha.SourceCollar, alpha.SourceHandheld, alpha.SourceContact} {
		if e, ok := s.lastSeen[src]; ok {
			snap.Entities = append(snap.Entities, e)
		}
	}
	return snap
}
