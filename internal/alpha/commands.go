package alpha

// Command framing recovered from captures: every logical payload starts
// with 0x00, followed by a category byte and a command id. Category
// 0x01 is the handshake family (CRC-A init 0x3C91), category 0x02 is
// the steady-state command family (CRC-A init 0x7F85). Most of the
// bodies below are protocol ritual: the peripheral expects these exact
// bytes in this exact order and offers no error signal when they are
// wrong, so none of them should be "simplified".

// Command ids observed on the wire.
const (
	cmdFamilyHandshake = 0x01
	cmdFamilyCommand   = 0x02

	cmdIDSession      = 0x40
	cmdIDConfirm      = 0x41
	cmdIDChannelReply = 0x42

	cmdIDPollConfig  = 0x08
	cmdIDPosSub      = 0x0A
	cmdIDGPSUpdate   = 0x10
	cmdIDCollarSlot  = 0x11
	cmdIDPosQuery    = 0x1D
	cmdIDPosRequest  = 0x1E
	cmdIDDeviceReg   = 0x44
	cmdIDDeviceList  = 0x52
	cmdIDCollarRelay = 0x35
)

// BuildSessionPacket builds the 12-byte session-id packet that opens
// the handshake.
func BuildSessionPacket(id [8]byte) []byte {
	pkt := make([]byte, 0, 12)
	pkt = append(pkt, 0x00, cmdFamilyHandshake, cmdIDSession, 0x08)
	return append(pkt, id[:]...)
}

// BuildConfirmPacket builds the 13-byte confirmation packet: the
// session id again, closed with the handshake-family CRC-A.
func BuildConfirmPacket(id [8]byte) []byte {
	pkt := make([]byte, 0, 13)
	pkt = append(pkt, 0x00, cmdFamilyHandshake, cmdIDConfirm)
	pkt = append(pkt, id[:]...)
	crc := ChecksumA(pkt, ChecksumInitHandshake)
	return append(pkt, byte(crc>>8), byte(crc))
}

// ParseChannelReply extracts the assigned channel prefix and channel
// index from the peripheral's handshake reply payload. Returns ok=false
// for any other payload.
func ParseChannelReply(payload []byte) (prefix, channel byte, ok bool) {
	if len(payload) < 5 {
		return 0, 0, false
	}
	if payload[0] != 0x00 || payload[1] != cmdFamilyHandshake || payload[2] != cmdIDChannelReply {
		return 0, 0, false
	}
	return payload[3], payload[4], true
}

// logicalChannelCount is how many channel-enable writes the vendor
// client issues, one per logical channel.
const logicalChannelCount = 5

func buildChannelEnable(prefix, channel byte) []byte {
	return []byte{0x00, prefix, 0x04, channel, 0x00}
}

func buildSubscribe(prefix byte) []byte {
	return []byte{0x00, prefix, 0x12, 0x01}
}

func buildStartStreaming(prefix byte) []byte {
	return []byte{0x00, prefix, 0x13, 0x01}
}

// commandWithCRC closes a command-family body with its big-endian CRC-A.
func commandWithCRC(body []byte) []byte {
	crc := ChecksumA(body, ChecksumInitCommand)
	return append(body, byte(crc>>8), byte(crc))
}

func buildPollConfig(hi, lo byte) []byte {
	return commandWithCRC([]byte{0x00, cmdFamilyCommand, cmdIDPollConfig, hi, lo})
}

func buildPositionRequest(hi, lo byte) []byte {
	return commandWithCRC([]byte{0x00, cmdFamilyCommand, cmdIDPosRequest, hi, lo})
}

func buildGPSUpdate(hi, lo byte) []byte {
	return commandWithCRC([]byte{0x00, cmdFamilyCommand, cmdIDGPSUpdate, hi, lo})
}

func buildPositionQuery(slot byte) []byte {
	return commandWithCRC([]byte{0x00, cmdFamilyCommand, cmdIDPosQuery, slot, 0x01})
}

func buildCollarRelay(raw [16]byte) []byte {
	body := make([]byte, 0, 3+16+2)
	body = append(body, 0x00, cmdFamilyCommand, cmdIDCollarRelay)
	body = append(body, raw[:]...)
	return commandWithCRC(body)
}

func buildDeviceIdentity(name string) []byte {
	body := make([]byte, 0, 5+len(name)+2)
	body = append(body, 0x00, cmdFamilyCommand, cmdIDDeviceReg, 0x0A, byte(len(name)))
	body = append(body, name...)
	return commandWithCRC(body)
}

func buildPositionSubscribe() []byte {
	return commandWithCRC([]byte{0x00, cmdFamilyCommand, cmdIDPosSub, 0x01})
}

func buildDeviceListQuery() []byte {
	return commandWithCRC([]byte{0x00, cmdFamilyCommand, cmdIDDeviceList, 0x00})
}

// fallbackCollarRecord stands in for a real registry sub-record in the
// collar-relay command until the first registry broadcast arrives.
// Verbatim from the reference capture.
var fallbackCollarRecord = [16]byte{
	0x01, 0x00, 0x3A, 0x7E, 0x10, 0x27, 0x00, 0x00,
	0x02, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00,
}

// regStep is one entry of the extended device-registration burst. The
// (groupOffset, seq) pair and the marker flag replay the captured
// vendor-client schedule byte-for-byte; reordering or renumbering the
// steps stops the position stream with no error from the peripheral.
type regStep struct {
	name        string
	body        []byte
	groupOffset byte
	seq         byte
	marker      bool
}

// registrationBurst returns the ordered write schedule transmitted
// after streaming is enabled. Bodies that depend on session state are
// built fresh per session.
func registrationBurst() []regStep {
	return []regStep{
		{name: "device-identity", body: buildDeviceIdentity("Alpha 300i"), groupOffset: 1, seq: 0x01, marker: true},
		{name: "device-identity-app", body: buildDeviceIdentity("GdogTAK"), groupOffset: 1, seq: 0x81},
		{name: "position-subscribe", body: buildPositionSubscribe(), groupOffset: 1, seq: 0x82},
		{name: "polling-config", body: buildPollConfig(0x00, 0x01), groupOffset: 1, seq: 0x83},
		{name: "device-list-query", body: buildDeviceListQuery(), groupOffset: 2, seq: 0x01, marker: true},
		{name: "position-query-0", body: buildPositionQuery(0x80), groupOffset: 2, seq: 0x81},
		{name: "position-query-1", body: buildPositionQuery(0x81), groupOffset: 2, seq: 0x82},
		{name: "position-query-2", body: buildPositionQuery(0x82), groupOffset: 2, seq: 0x83},
		{name: "position-subscribe-2", body: buildPositionSubscribe(), groupOffset: 2, seq: 0x84},
		{name: "gps-update-config", body: buildGPSUpdate(0x00, 0x01), groupOffset: 2, seq: 0x85},
		{name: "collar-slot-0", body: BuildCollarSlotPacket(0x80, 0x01, 0x01, true), groupOffset: 3, seq: 0x01},
		{name: "collar-slot-1", body: BuildCollarSlotPacket(0x81, 0x01, 0x02, true), groupOffset: 3, seq: 0x81},
		{name: "collar-slot-2", body: BuildCollarSlotPacket(0x82, 0x01, 0x03, true), groupOffset: 3, seq: 0x82},
	}
}
