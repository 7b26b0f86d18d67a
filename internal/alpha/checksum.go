package alpha

// Two unrelated integrity algorithms coexist in this protocol. CRC-A is
// a conventional Garmin 16-bit CRC used on most command packets. CRC-B
// protects only the 16-byte collar-slot registration template and is
// not a CRC at all: it is a GF(2)-linear function of individual bit
// positions, fitted over ~175 captured COLLAR_SLOT packets. The tap
// table below is the fitted solution and must be ported byte-for-byte.

// CRC-A initial values are command-type specific. Only these two have
// been observed; callers must know which family a packet belongs to.
const (
	ChecksumInitHandshake uint16 = 0x3C91
	ChecksumInitCommand   uint16 = 0x7F85
)

// crcPolyA is the Garmin-style CRC-16 polynomial.
const crcPolyA uint16 = 0x0241

// ChecksumA computes the bit-serial CRC over data, MSB-first, starting
// from the given command-family initial value.
func ChecksumA(data []byte, init uint16) uint16 {
	crc := init
	for _, b := range data {
		for bit := 7; bit >= 0; bit-- {
			in := (b >> uint(bit)) & 1
			msb := byte(crc >> 15)
			crc <<= 1
			if msb^in != 0 {
				crc ^= crcPolyA
			}
		}
	}
	return crc
}

// slotTap is one term of the collar-slot checksum: if bit `mask` of
// template byte `index` is set, `xor` is folded into the running value.
type slotTap struct {
	index int
	mask  byte
	xor   uint16
}

// collarSlotBase and collarSlotTaps are the fitted linear solution.
// Empirical; do not re-derive.
const collarSlotBase uint16 = 0x5CA3

var collarSlotTaps = []slotTap{
	{4, 0x04, 0x812F},
	{5, 0x01, 0xF565},
	{5, 0x02, 0xE43F},
	{5, 0x04, 0x2DD6},
	{5, 0x08, 0x492B},
	{5, 0x10, 0x7C2F},
	{5, 0x20, 0xF868},
	{5, 0x40, 0x47C1},
	{5, 0x80, 0xC518},
	{7, 0x01, 0x3E51},
	{7, 0x02, 0xF02A},
	{7, 0x04, 0x54FC},
	{7, 0x08, 0xC65C},
	{7, 0x10, 0x62A2},
	{7, 0x20, 0xDB97},
	{7, 0x40, 0xAF13},
	{7, 0x80, 0x3CFA},
	{8, 0x01, 0x1AF1},
	{8, 0x02, 0xECCF},
	{8, 0x04, 0x70D2},
	{8, 0x08, 0xC39A},
	{8, 0x10, 0xE23E},
	{8, 0x20, 0x59C2},
	{8, 0x40, 0xE3A2},
	{8, 0x80, 0x7061},
}

// ChecksumB computes the collar-slot checksum over a 16-byte template.
func ChecksumB(template []byte) uint16 {
	ck := collarSlotBase
	for _, t := range collarSlotTaps {
		if t.index < len(template) && template[t.index]&t.mask != 0 {
			ck ^= t.xor
		}
	}
	return ck
}

// collarSlotTemplateLen is the fixed message size CRC-B was fitted over.
const collarSlotTemplateLen = 16

// BuildCollarSlotPacket assembles the 16-byte collar-slot registration
// template for the given slot (observed range 0x80-0x9E) and rolling
// sequence pair, computes CRC-B and appends it big-endian plus the
// trailing zero terminator the peripheral expects. Result is 19 bytes.
func BuildCollarSlotPacket(slot, seqHi, seqLo byte, variantFlag bool) []byte {
	msg := make([]byte, collarSlotTemplateLen, collarSlotTemplateLen+3)
	msg[0] = 0x00
	msg[1] = 0x02
	msg[2] = 0x11
	msg[3] = 0x10
	if variantFlag {
		msg[4] = 0x0C
	} else {
		msg[4] = 0x08
	}
	msg[5] = slot
	msg[6] = 0x01
	msg[7] = seqHi
	msg[8] = seqLo
	// bytes 9-15 are always zero in every captured packet

	ck := ChecksumB(msg)
	return append(msg, byte(ck>>8), byte(ck), 0x00)
}
