// Package alpha implements the reverse-engineered Garmin Alpha BLE
// application protocol: wire decoding, packet classification, the two
// checksum algorithms, session fragmentation, the connection state
// machine and the keep-alive scheduler.
//
// Nothing in here comes from vendor documentation. Byte tables,
// thresholds and ordering were recovered from btsnoop captures of the
// vendor client talking to an Alpha 300i; where a value is flagged as
// empirical it must not be "cleaned up" without re-capturing.
package alpha

import (
	"math"
	"time"
)

// Source identifies which kind of tracked device a position came from.
type Source int

const (
	SourceUnknown Source = iota
	SourceCollar
	SourceHandheld
	SourceContact
)

func (s Source) String() string {
	switch s {
	case SourceCollar:
		return "collar"
	case SourceHandheld:
		return "handheld"
	case SourceContact:
		return "contact"
	default:
		return "unknown"
	}
}

// Position is a decoded GPS fix ready for the CoT encoder.
type Position struct {
	LatDeg     float64
	LonDeg     float64
	Source     Source
	ObservedAt time.Time
}

// maxVarintLen caps varint decoding so malformed input cannot loop;
// 10 groups of 7 bits cover a full uint64.
const maxVarintLen = 10

// DecodeVarint reads a protobuf-style base-128 varint starting at off.
// The low 7 bits of each byte are data (least-significant group first),
// the high bit is the continuation flag. Returns the value and the
// number of bytes consumed; consumed == 0 signals a decode failure
// (truncated input or more than maxVarintLen groups).
func DecodeVarint(data []byte, off int) (uint64, int) {
	var v uint64
	var shift uint
	for i := 0; i < maxVarintLen; i++ {
		if off+i >= len(data) {
			return 0, 0
		}
		b := data[off+i]
		v |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return v, i + 1
		}
		shift += 7
	}
	return 0, 0
}

// EncodeVarint appends the base-128 encoding of v to dst.
func EncodeVarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// ZigzagDecode maps an unsigned zig-zag value back to its signed form.
func ZigzagDecode(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

// ZigzagEncode maps a signed value to its zig-zag unsigned form.
func ZigzagEncode(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}

// SemicirclesToDegrees converts Garmin fixed-point angular units to
// decimal degrees. 2^31 semicircles == 180 degrees.
func SemicirclesToDegrees(sc int32) float64 {
	return float64(sc) * (180.0 / 2147483648.0)
}

// minCoordinateMagnitude rejects decoded values that are status or
// config fields masquerading as coordinates. Empirical: every genuine
// fix in ~4h of captures sits well above 10M semicircles, every false
// hit well below. Not a protocol guarantee.
const minCoordinateMagnitude = 10000000

// Coordinate block signature bounds: the length byte between the
// 0x0A tag and the 0x08 field marker. Empirical tolerance.
const (
	coordLenMin = 8
	coordLenMax = 50
)

// locateCoordinateBlock scans payload for the coordinate submessage
// signature 0x0A <len> 0x08 (len in [coordLenMin, coordLenMax]) or its
// nested form 0x0A <len> 0x0A <len2> 0x08 and returns the offset of the
// first byte after the 0x08 field marker, or -1 when no structurally
// valid block exists.
func locateCoordinateBlock(payload []byte) int {
	for j := 0; j+2 < len(payload); j++ {
		if payload[j] != 0x0A {
			continue
		}
		n := int(payload[j+1])
		if n >= coordLenMin && n <= coordLenMax && payload[j+2] == 0x08 {
			return j + 3
		}
		// Nested variant: outer length wraps a second 0x0A submessage.
		if j+4 < len(payload) && payload[j+2] == 0x0A {
			n2 := int(payload[j+3])
			if n2 >= coordLenMin && n2 <= coordLenMax && payload[j+4] == 0x08 {
				return j + 5
			}
		}
	}
	return -1
}

// decodeCoordinatePair decodes a latitude/longitude pair starting at
// off: zig-zag varint latitude, a literal 0x10 field marker, zig-zag
// varint longitude. Rejects pairs whose raw magnitude is below the
// empirical coordinate threshold, whose degrees fall outside the valid
// ranges, or that are exactly (0,0) — a null position the handheld
// emits while a collar has no fix.
func decodeCoordinatePair(payload []byte, off int) (lat, lon float64, ok bool) {
	rawLat, n := DecodeVarint(payload, off)
	if n == 0 {
		return 0, 0, false
	}
	off += n
	if off >= len(payload) || payload[off] != 0x10 {
		return 0, 0, false
	}
	rawLon, n := DecodeVarint(payload, off+1)
	if n == 0 {
		return 0, 0, false
	}

	latSC := ZigzagDecode(rawLat)
	lonSC := ZigzagDecode(rawLon)
	if abs64(latSC) < minCoordinateMagnitude || abs64(lonSC) < minCoordinateMagnitude {
		return 0, 0, false
	}
	// Semicircles are 32-bit on the wire; a varint that overflows int32
	// must not be truncated into a plausible coordinate.
	if latSC < math.MinInt32 || latSC > math.MaxInt32 ||
		lonSC < math.MinInt32 || lonSC > math.MaxInt32 {
		return 0, 0, false
	}

	lat = SemicirclesToDegrees(int32(latSC))
	lon = SemicirclesToDegrees(int32(lonSC))
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	if lat == 0 && lon == 0 {
		return 0, 0, false
	}
	return lat, lon, true
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
