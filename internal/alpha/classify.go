package alpha

import "time"

// Device markers: 0x02 <marker> within the first markerScanWindow bytes
// of the payload identifies what the position belongs to.
const (
	markerCollar   = 0x35
	markerHandheld = 0x28
	markerContact  = 0x33

	markerScanWindow = 30
)

// Registry broadcast recognition: a long notification carrying the
// literal command bytes 0x07 0x16 at offsets 3-4.
const (
	registryCmdOffset = 3
	registryMinLen    = 50
)

// StripFragmentHeader removes the session fragment header from an
// inbound notification. If the first byte has the high bit set and the
// notification is longer than two bytes, the first two bytes are the
// learned [base|group][sequence] header; otherwise the notification is
// already a bare payload.
func StripFragmentHeader(notification []byte) []byte {
	if len(notification) > 2 && notification[0] >= 0x80 {
		return notification[2:]
	}
	return notification
}

// ClassifyDeviceMarker scans the leading bytes of a payload for a
// 0x02 <marker> pair and reports the device class it names.
// SourceUnknown is a normal outcome, not an error — most notifications
// are not position packets.
func ClassifyDeviceMarker(payload []byte) Source {
	limit := len(payload) - 1
	if limit > markerScanWindow {
		limit = markerScanWindow
	}
	for i := 0; i < limit; i++ {
		if payload[i] != 0x02 {
			continue
		}
		switch payload[i+1] {
		case markerCollar:
			return SourceCollar
		case markerHandheld:
			return SourceHandheld
		case markerContact:
			return SourceContact
		}
	}
	return SourceUnknown
}

// IsRegistryPacket reports whether a raw notification is the periodic
// device-registry broadcast. Registry packets are routed before any
// position parsing is attempted and never produce a position.
func IsRegistryPacket(notification []byte) bool {
	return len(notification) > registryMinLen &&
		notification[registryCmdOffset] == 0x07 &&
		notification[registryCmdOffset+1] == 0x16
}

// DecodePosition classifies and decodes a raw notification. The bool
// result is false for every non-position notification; that is the
// expected outcome for the majority of traffic and carries no error.
func DecodePosition(notification []byte, now time.Time) (Position, bool) {
	payload := StripFragmentHeader(notification)

	src := ClassifyDeviceMarker(payload)
	if src == SourceUnknown {
		return Position{}, false
	}

	off := locateCoordinateBlock(payload)
	if off < 0 {
		return Position{}, false
	}
	lat, lon, ok := decodeCoordinatePair(payload, off)
	if !ok {
		return Position{}, false
	}

	return Position{
		LatDeg:     lat,
		LonDeg:     lon,
		Source:     src,
		ObservedAt: now,
	}, true
}
