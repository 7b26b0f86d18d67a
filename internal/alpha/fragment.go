package alpha

// FragmentTransport: the protocol's own multi-packet framing layered on
// top of ATT write/notification size limits. Every outbound command is
// prefixed with a two-byte [base|group][sequence] header. The base
// nibble is session-specific: the peripheral picks it, we learn it from
// the first qualifying inbound notification, and mixing bases within a
// session makes the peripheral silently drop our writes until the next
// full reconnect.

const (
	// fallbackFragmentBase is used for writes issued before the first
	// qualifying notification arrives.
	fallbackFragmentBase byte = 0xD0

	// Inbound lead bytes in this range carry the session base in their
	// high nibble.
	fragmentLeadMin byte = 0x80
	fragmentLeadMax byte = 0xEF

	// legacyChunkSize bounds each fragment body in legacy framing.
	legacyChunkSize = 18

	// sequenceCeiling keeps the high bit of the sequence byte free for
	// the burst "final" flag.
	sequenceCeiling byte = 0x80

	// groupModulus bounds the rotating group counter.
	groupModulus byte = 8

	// burstFinalBit marks every burst message after the first.
	burstFinalBit byte = 0x80

	// DefaultPayloadSize is the write budget before MTU negotiation
	// (ATT default 23 minus the 3-byte write header).
	DefaultPayloadSize = 20
)

// FragmentContext is the per-session framing state. It is owned by the
// session and only ever touched from the session's dispatch queue.
type FragmentContext struct {
	base    byte
	learned bool
	group   byte
	seq     byte

	// PayloadSize is the negotiated per-write budget (MTU minus ATT
	// overhead). It decides, once per message, which framing convention
	// applies.
	PayloadSize int
}

// NewFragmentContext returns a context using the fallback base and the
// unnegotiated payload budget.
func NewFragmentContext() *FragmentContext {
	return &FragmentContext{
		base:        fallbackFragmentBase,
		PayloadSize: DefaultPayloadSize,
	}
}

// LearnBase inspects an inbound notification lead byte and, on the
// first qualifying one, fixes the session base to its high nibble.
// Learning is idempotent: later notifications never change the base.
// Returns true when this call learned the base.
func (f *FragmentContext) LearnBase(lead byte) bool {
	if f.learned {
		return false
	}
	if lead < fragmentLeadMin || lead > fragmentLeadMax {
		return false
	}
	f.base = lead & 0xF0
	f.learned = true
	return true
}

// Base returns the session base nibble (fallback until learned).
func (f *FragmentContext) Base() byte {
	return f.base
}

// Learned reports whether the base was taken from the peripheral.
func (f *FragmentContext) Learned() bool {
	return f.learned
}

func (f *FragmentContext) advanceSeq() byte {
	s := f.seq
	f.seq = (f.seq + 1) % sequenceCeiling
	return s
}

func (f *FragmentContext) rotateGroup() {
	f.group = (f.group + 1) % groupModulus
}

// Wrap frames one logical message into the ATT writes that carry it.
// The framing convention is a pure function of the negotiated payload
// budget and the body size, decided here once per message:
//
// Burst convention: the body fits in a single write. The first message
// of a burst is preceded by a bare two-byte marker packet sharing the
// same header; subsequent messages set the final bit on the sequence
// byte and keep the group.
//
// Legacy convention: the body exceeds the budget and is split into
// chunks of at most legacyChunkSize bytes, each carrying its own
// header, with the group rotated once for the whole message.
func (f *FragmentContext) Wrap(body []byte, firstOfBurst bool) [][]byte {
	if len(body)+2 <= f.PayloadSize {
		return f.wrapBurst(body, firstOfBurst)
	}
	return f.wrapLegacy(body)
}

func (f *FragmentContext) wrapBurst(body []byte, firstOfBurst bool) [][]byte {
	if firstOfBurst {
		f.rotateGroup()
	}
	hdr0 := f.base | f.group
	seq := f.advanceSeq()
	if !firstOfBurst {
		seq |= burstFinalBit
	}

	pkt := make([]byte, 0, len(body)+2)
	pkt = append(pkt, hdr0, seq)
	pkt = append(pkt, body...)

	if firstOfBurst {
		return [][]byte{{hdr0, seq}, pkt}
	}
	return [][]byte{pkt}
}

func (f *FragmentContext) wrapLegacy(body []byte) [][]byte {
	f.rotateGroup()
	hdr0 := f.base + f.group

	var out [][]byte
	for len(body) > 0 {
		n := len(body)
		if n > legacyChunkSize {
			n = legacyChunkSize
		}
		pkt := make([]byte, 0, n+2)
		pkt = append(pkt, hdr0, f.advanceSeq())
		pkt = append(pkt, body[:n]...)
		out = append(out, pkt)
		body = body[n:]
	}
	return out
}

// WrapScheduled frames a message with an explicit group offset and
// sequence byte. The extended-registration burst replays a captured
// schedule where both values are fixed per step; rolling counters are
// left untouched. When marker is set a bare header packet precedes the
// data packet, mirroring the vendor client's marker-then-data double
// write.
func (f *FragmentContext) WrapScheduled(body []byte, groupOffset, seq byte, marker bool) [][]byte {
	hdr0 := f.base | ((f.group + groupOffset) % groupModulus)

	pkt := make([]byte, 0, len(body)+2)
	pkt = append(pkt, hdr0, seq)
	pkt = append(pkt, body...)

	if marker {
		return [][]byte{{hdr0, seq}, pkt}
	}
	return [][]byte{pkt}
}
