package alpha

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Registry broadcast with five 16-byte sub-records: a real collar,
// all-zero padding, a second collar, all-0xFF padding, and a duplicate
// of the first collar.
const registryBroadcastHex = "c351000716020a1012345678a0a1a2a3a4a5a6a7a8a9aaab" +
	"0a1000000000000000000000000000000000" +
	"0a10deadbeefb0b1b2b3b4b5b6b7b8b9babb" +
	"0a10ffffffffffffffffffffffffffffffff" +
	"0a1012345678a0a1a2a3a4a5a6a7a8a9aaab"

func TestRegistryIngest(t *testing.T) {
	pkt := mustHex(t, registryBroadcastHex)
	require.True(t, IsRegistryPacket(pkt))

	r := NewRegistry(nil)
	added := r.Ingest(pkt)

	assert.Equal(t, 2, added, "padding and duplicate records must not register")
	assert.Equal(t, 2, r.Len())

	entries := r.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, [4]byte{0x12, 0x34, 0x56, 0x78}, entries[0].ID, "first-seen order")
	assert.Equal(t, [4]byte{0xDE, 0xAD, 0xBE, 0xEF}, entries[1].ID)

	// The verbatim record bytes feed the collar-relay command.
	assert.Equal(t, mustHex(t, "12345678a0a1a2a3a4a5a6a7a8a9aaab"), entries[0].Raw[:])
}

func TestRegistryIngestIsIdempotent(t *testing.T) {
	pkt := mustHex(t, registryBroadcastHex)
	r := NewRegistry(nil)

	require.Equal(t, 2, r.Ingest(pkt))
	assert.Equal(t, 0, r.Ingest(pkt), "re-broadcast adds nothing")
	assert.Equal(t, 2, r.Len())
}

func TestRegistryFirst(t *testing.T) {
	r := NewRegistry(nil)

	_, ok := r.First()
	assert.False(t, ok, "empty registry has no first entry")

	r.Ingest(mustHex(t, registryBroadcastHex))
	first, ok := r.First()
	require.True(t, ok)
	assert.Equal(t, [4]byte{0x12, 0x34, 0x56, 0x78}, first.ID)
}

func TestRegistryIgnoresMalformedRecords(t *testing.T) {
	r := NewRegistry(nil)

	// Tag with a truncated record at the end of the packet.
	pkt := append(mustHex(t, "c35100071602"), 0x0A, 0x10, 0x01, 0x02)
	assert.Equal(t, 0, r.Ingest(pkt))

	// Tag with the wrong length byte.
	pkt = append(mustHex(t, "c35100071602"), 0x0A, 0x08)
	pkt = append(pkt, make([]byte, 20)...)
	assert.Equal(t, 0, r.Ingest(pkt))
}
