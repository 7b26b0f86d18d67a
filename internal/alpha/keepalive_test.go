package alpha

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type writeCapture struct {
	bodies [][]byte
}

func (w *writeCapture) write(body []byte, firstOfBurst bool) error {
	w.bodies = append(w.bodies, body)
	return nil
}

func (w *writeCapture) last(t *testing.T) []byte {
	t.Helper()
	require.NotEmpty(t, w.bodies)
	return w.bodies[len(w.bodies)-1]
}

func newTestScheduler(t *testing.T) (*Scheduler, *writeCapture) {
	t.Helper()
	cap := &writeCapture{}
	s := NewScheduler(time.Second, NewSession(nil), nil, cap.write, quietLogger())
	return s, cap
}

func TestEmitTickFamilySelection(t *testing.T) {
	tests := []struct {
		name   string
		tick   uint64
		wantID byte
	}{
		{"gps update beats everything", 600, cmdIDGPSUpdate},
		{"gps update on later multiple", 1200, cmdIDGPSUpdate},
		{"position request", 120, cmdIDPosRequest},
		{"position request beats polling config", 240, cmdIDPosRequest},
		{"polling config", 30, cmdIDPollConfig},
		{"polling config beats position query", 90, cmdIDPollConfig},
		{"position query", 10, cmdIDPosQuery},
		{"position query beats collar slot", 20, cmdIDPosQuery},
		{"collar slot", 5, cmdIDCollarSlot},
		{"collar slot on odd multiple", 25, cmdIDCollarSlot},
		{"collar relay catch-all", 7, cmdIDCollarRelay},
		{"collar relay off-beat", 121, cmdIDCollarRelay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, cap := newTestScheduler(t)
			s.tick = tt.tick
			s.emitTick()
			require.Len(t, cap.bodies, 1)
			assert.Equal(t, tt.wantID, cap.bodies[0][2])
		})
	}
}

func TestEmitTickCollarRelayRecord(t *testing.T) {
	s, cap := newTestScheduler(t)

	// No registry entries yet: the fallback record rides the relay.
	s.tick = 1
	s.emitTick()
	assert.Equal(t, fallbackCollarRecord[:], cap.last(t)[3:19])

	// Once a collar registers, its verbatim record takes over.
	s.session.Registry.Ingest(mustHex(t, registryBroadcastHex))
	s.tick = 2
	s.emitTick()
	assert.Equal(t, mustHex(t, "12345678a0a1a2a3a4a5a6a7a8a9aaab"), cap.last(t)[3:19])
}

func TestEmitTickCounterAdvance(t *testing.T) {
	s, cap := newTestScheduler(t)

	// The polling-config / gps-update family shares one rolling counter.
	s.tick = 30
	s.emitTick()
	first := cap.last(t)
	assert.Equal(t, byte(0x00), first[3])
	assert.Equal(t, byte(0x01), first[4])

	s.tick = 60
	s.emitTick()
	second := cap.last(t)
	assert.Equal(t, byte(0x02), second[4])

	s.tick = 600
	s.emitTick()
	third := cap.last(t)
	assert.Equal(t, byte(cmdIDGPSUpdate), third[2])
	assert.Equal(t, byte(0x03), third[4], "gps-update continues the shared counter")

	// The position-request family counts independently.
	s.tick = 120
	s.emitTick()
	fourth := cap.last(t)
	assert.Equal(t, byte(cmdIDPosRequest), fourth[2])
	assert.Equal(t, byte(0x01), fourth[4])
}

func TestRotateSlot(t *testing.T) {
	s, _ := newTestScheduler(t)

	for i := 0; i < collarSlotCount; i++ {
		assert.Equal(t, byte(collarSlotBase0+i), s.rotateSlot())
	}
	assert.Equal(t, byte(collarSlotBase0), s.rotateSlot(), "index wraps after the last slot")
}

func TestSchedulerSilenceDiagnostic(t *testing.T) {
	s, _ := newTestScheduler(t)

	var statuses []string
	s.status = func(msg string) { statuses = append(statuses, msg) }

	for i := 0; i < waitingForDataTicks-1; i++ {
		s.trackSilence()
	}
	assert.Empty(t, statuses, "diagnostic must not fire early")

	s.trackSilence()
	require.Equal(t, []string{"waiting for collar data"}, statuses)

	// Further silent ticks do not repeat the diagnostic.
	s.trackSilence()
	assert.Len(t, statuses, 1)

	// Handheld traffic does not count as collar data.
	s.NotePosition(SourceHandheld)
	assert.Len(t, statuses, 1)

	// A collar fix clears the diagnostic.
	s.NotePosition(SourceCollar)
	require.Len(t, statuses, 2)
	assert.Equal(t, "streaming", statuses[1])

	// The counter restarts from zero afterwards.
	s.trackSilence()
	assert.Len(t, statuses, 2)
}

func TestSchedulerWriteFailureKeepsTicking(t *testing.T) {
	s, _ := newTestScheduler(t)
	calls := 0
	s.write = func(body []byte, firstOfBurst bool) error {
		calls++
		return assert.AnError
	}

	s.tick = 1
	s.emitTick()
	s.tick = 2
	s.emitTick()
	assert.Equal(t, 2, calls, "write errors must not stall the schedule")
}

func TestBytePair(t *testing.T) {
	var p bytePair
	hi, lo := p.next()
	assert.Equal(t, byte(0), hi)
	assert.Equal(t, byte(1), lo)

	p.lo = 0xFF
	hi, lo = p.next()
	assert.Equal(t, byte(1), hi, "low byte overflow carries")
	assert.Equal(t, byte(0), lo)
}
