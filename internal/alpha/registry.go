package alpha

import (
	"bytes"
	"encoding/hex"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// CollarEntry is one tracked collar as reported by the registry
// broadcast. Raw keeps the verbatim 16-byte sub-record because the
// collar-relay keep-alive command reuses it untouched.
type CollarEntry struct {
	ID  [4]byte
	Raw [16]byte
}

const (
	registryRecordTag = 0x0A
	registryRecordLen = 0x10
)

// Registry accumulates collar identities from the periodic device
// registry broadcast. Entries are append-only within a session and
// deduplicated by identity, preserving the first-seen record bytes and
// arrival order (the keep-alive slot rotation depends on stable order).
type Registry struct {
	entries *orderedmap.OrderedMap[[4]byte, CollarEntry]
	log     *logrus.Logger
}

func NewRegistry(log *logrus.Logger) *Registry {
	return &Registry{
		entries: orderedmap.New[[4]byte, CollarEntry](),
		log:     log,
	}
}

// Ingest scans a registry broadcast for 0x0A 0x10 tagged 16-byte
// sub-records and folds them in. Returns the number of new entries.
func (r *Registry) Ingest(notification []byte) int {
	added := 0
	for i := 0; i+2+registryRecordLen <= len(notification); i++ {
		if notification[i] != registryRecordTag || notification[i+1] != registryRecordLen {
			continue
		}
		rec := notification[i+2 : i+2+registryRecordLen]
		if !validCollarID(rec[:4]) {
			i += 1 + registryRecordLen
			continue
		}

		var e CollarEntry
		copy(e.ID[:], rec[:4])
		copy(e.Raw[:], rec)

		if _, seen := r.entries.Get(e.ID); !seen {
			r.entries.Set(e.ID, e)
			added++
			if r.log != nil {
				r.log.WithFields(logrus.Fields{
					"collar_id": hex.EncodeToString(e.ID[:]),
					"known":     r.entries.Len(),
				}).Info("Registered collar from device registry broadcast")
			}
		}
		i += 1 + registryRecordLen
	}
	return added
}

// validCollarID rejects placeholder identities (all-zero and all-0xFF
// sub-records pad out the fixed-size broadcast).
func validCollarID(id []byte) bool {
	if bytes.Equal(id, []byte{0x00, 0x00, 0x00, 0x00}) {
		return false
	}
	if bytes.Equal(id, []byte{0xFF, 0xFF, 0xFF, 0xFF}) {
		return false
	}
	return true
}

// Len returns the number of known collars.
func (r *Registry) Len() int {
	return r.entries.Len()
}

// First returns the first-seen collar entry, if any.
func (r *Registry) First() (CollarEntry, bool) {
	if p := r.entries.Oldest(); p != nil {
		return p.Value, true
	}
	return CollarEntry{}, false
}

// Entries returns collars in first-seen order.
func (r *Registry) Entries() []CollarEntry {
	out := make([]CollarEntry, 0, r.entries.Len())
	for p := r.entries.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value)
	}
	return out
}
