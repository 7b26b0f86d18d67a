package alpha

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSessionID = [8]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

func TestBuildSessionPacket(t *testing.T) {
	pkt := BuildSessionPacket(testSessionID)
	require.Len(t, pkt, 12)
	assert.Equal(t, []byte{0x00, 0x01, 0x40, 0x08}, pkt[:4])
	assert.Equal(t, testSessionID[:], pkt[4:])
}

func TestBuildConfirmPacket(t *testing.T) {
	pkt := BuildConfirmPacket(testSessionID)
	require.Len(t, pkt, 13)
	assert.Equal(t, mustHex(t, "00014101020304050607089946"), pkt,
		"confirm closes with the handshake-family CRC")
}

func TestParseChannelReply(t *testing.T) {
	tests := []struct {
		name        string
		payload     []byte
		wantPrefix  byte
		wantChannel byte
		wantOK      bool
	}{
		{
			name:        "valid reply",
			payload:     []byte{0x00, 0x01, 0x42, 0x05, 0x02},
			wantPrefix:  0x05,
			wantChannel: 0x02,
			wantOK:      true,
		},
		{
			name:    "wrong command id",
			payload: []byte{0x00, 0x01, 0x41, 0x05, 0x02},
		},
		{
			name:    "wrong family",
			payload: []byte{0x00, 0x02, 0x42, 0x05, 0x02},
		},
		{
			name:    "too short",
			payload: []byte{0x00, 0x01, 0x42, 0x05},
		},
		{
			name:    "empty",
			payload: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix, channel, ok := ParseChannelReply(tt.payload)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantPrefix, prefix)
				assert.Equal(t, tt.wantChannel, channel)
			}
		})
	}
}

func TestCommandBodies(t *testing.T) {
	tests := []struct {
		name string
		body []byte
		want string
	}{
		{"polling config", buildPollConfig(0x00, 0x01), "0002080001ac98"},
		{"position query slot 0x80", buildPositionQuery(0x80), "00021d8001ce3a"},
		{"device list query", buildDeviceListQuery(), "000252002cd9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, mustHex(t, tt.want), tt.body)
		})
	}
}

func TestCommandCRCPlacement(t *testing.T) {
	// Every command-family body must end with its own big-endian CRC-A.
	bodies := [][]byte{
		buildPollConfig(0x12, 0x34),
		buildPositionRequest(0x00, 0x07),
		buildGPSUpdate(0x01, 0x00),
		buildPositionQuery(0x9E),
		buildCollarRelay(fallbackCollarRecord),
		buildDeviceIdentity("Alpha 300i"),
		buildPositionSubscribe(),
		buildDeviceListQuery(),
	}
	for _, body := range bodies {
		require.Greater(t, len(body), 2)
		crc := ChecksumA(body[:len(body)-2], ChecksumInitCommand)
		assert.Equal(t, byte(crc>>8), body[len(body)-2])
		assert.Equal(t, byte(crc), body[len(body)-1])
		assert.Equal(t, byte(0x00), body[0])
		assert.Equal(t, byte(cmdFamilyCommand), body[1])
	}
}

func TestBuildDeviceIdentity(t *testing.T) {
	body := buildDeviceIdentity("GdogTAK")
	assert.Equal(t, byte(cmdIDDeviceReg), body[2])
	assert.Equal(t, byte(0x0A), body[3])
	assert.Equal(t, byte(7), body[4], "length-prefixed name")
	assert.Equal(t, "GdogTAK", string(body[5:12]))
}

func TestBuildCollarRelay(t *testing.T) {
	var raw [16]byte
	copy(raw[:], mustHex(t, "12345678a0a1a2a3a4a5a6a7a8a9aaab"))
	body := buildCollarRelay(raw)
	require.Len(t, body, 21)
	assert.Equal(t, byte(cmdIDCollarRelay), body[2])
	assert.Equal(t, raw[:], body[3:19], "registry record rides verbatim")
}

func TestRegistrationBurstSchedule(t *testing.T) {
	steps := registrationBurst()
	require.Len(t, steps, 13)

	// Markers open the group-1 and group-2 phases.
	assert.True(t, steps[0].marker)
	assert.True(t, steps[4].marker)

	// Group offsets ascend through the three phases.
	for i, s := range steps {
		switch {
		case i < 4:
			assert.Equal(t, byte(1), s.groupOffset, "step %s", s.name)
		case i < 10:
			assert.Equal(t, byte(2), s.groupOffset, "step %s", s.name)
		default:
			assert.Equal(t, byte(3), s.groupOffset, "step %s", s.name)
		}
	}

	// The three collar-slot steps register ascending slots.
	assert.Equal(t, byte(0x80), steps[10].body[5])
	assert.Equal(t, byte(0x81), steps[11].body[5])
	assert.Equal(t, byte(0x82), steps[12].body[5])
}
