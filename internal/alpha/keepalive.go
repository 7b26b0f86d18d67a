package alpha

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Keep-alive cadence. Once streaming, the handheld only keeps relaying
// collar positions while it sees a client that polls like the vendor
// app: one command per tick, family chosen by modulus against the tick
// counter. Values are the observed vendor cadence at a 1s tick.
const (
	gpsUpdateEvery    = 600
	posRequestEvery   = 120
	pollConfigEvery   = 30
	posQueryEvery     = 10
	slotRegisterEvery = 5

	// collarSlotCount covers the observed slot range 0x80-0x9E.
	collarSlotCount = 31
	collarSlotBase0 = 0x80

	// initialPollConfigs and their spacing form the burst fired on
	// entering streaming, before the steady loop starts.
	initialPollConfigs  = 3
	initialBurstSpacing = 500 * time.Millisecond

	// waitingForDataTicks is how many tickless-collar ticks pass before
	// the "waiting for data" diagnostic is surfaced.
	waitingForDataTicks = 30
)

// bytePair is a rolling big-endian counter carried in command bodies.
type bytePair struct {
	hi, lo byte
}

func (p *bytePair) next() (byte, byte) {
	p.lo++
	if p.lo == 0 {
		p.hi++
	}
	return p.hi, p.lo
}

// Scheduler emits the keep-alive command rotation. It shares the link
// machine's dispatch queue, so every tick runs serialized with
// notification handling and owns the session state it touches. Counters
// reset whenever streaming is (re)entered because a Scheduler lives
// exactly one streaming phase.
type Scheduler struct {
	interval time.Duration
	session  *Session
	q        *dispatchQueue
	write    func(body []byte, firstOfBurst bool) error
	log      *logrus.Logger

	stopped    bool
	tick       uint64
	cfgCounter bytePair // polling-config / gps-update family
	qryCounter bytePair // position-request family
	slotSeq    bytePair
	slotIndex  int

	ticksWithoutCollar int
	waitingReported    bool
	status             func(string)
}

func NewScheduler(interval time.Duration, session *Session, q *dispatchQueue, write func([]byte, bool) error, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		session:  session,
		q:        q,
		write:    write,
		log:      log,
	}
}

// Start fires the initial burst and then enters the steady tick loop.
// status receives diagnostic updates; it must not block.
func (s *Scheduler) Start(status func(string)) {
	s.status = status
	s.initialBurst(0)
}

// Stop halts the schedule. Pending ticks on the queue become no-ops.
func (s *Scheduler) Stop() {
	s.stopped = true
}

// NotePosition feeds classification results back so the waiting-for-data
// diagnostic can clear.
func (s *Scheduler) NotePosition(src Source) {
	if src != SourceCollar {
		return
	}
	s.ticksWithoutCollar = 0
	if s.waitingReported {
		s.waitingReported = false
		if s.status != nil {
			s.status("streaming")
		}
	}
}

// initialBurst: a handful of polling-config commands at short fixed
// intervals, then one position query per known collar slot, then the
// steady loop.
func (s *Scheduler) initialBurst(i int) {
	if s.stopped {
		return
	}
	if i < initialPollConfigs {
		hi, lo := s.cfgCounter.next()
		s.emit("polling-config", buildPollConfig(hi, lo), i == 0)
		s.q.After(initialBurstSpacing, func() { s.initialBurst(i + 1) })
		return
	}

	for slot := 0; slot < s.session.Registry.Len() && slot < collarSlotCount; slot++ {
		s.emit("position-query", buildPositionQuery(byte(collarSlotBase0+slot)), false)
	}
	s.loop()
}

func (s *Scheduler) loop() {
	s.q.After(s.interval, func() {
		if s.stopped {
			return
		}
		s.tick++
		s.emitTick()
		s.trackSilence()
		s.loop()
	})
}

// emitTick selects exactly one command family for this tick. Families
// are tested from least to most frequent so the rarer commands override
// the catch-all collar relay on their beat.
func (s *Scheduler) emitTick() {
	t := s.tick
	switch {
	case t%gpsUpdateEvery == 0:
		hi, lo := s.cfgCounter.next()
		s.emit("gps-update", buildGPSUpdate(hi, lo), false)
	case t%posRequestEvery == 0:
		hi, lo := s.qryCounter.next()
		s.emit("position-request", buildPositionRequest(hi, lo), false)
	case t%pollConfigEvery == 0:
		hi, lo := s.cfgCounter.next()
		s.emit("polling-config", buildPollConfig(hi, lo), false)
	case t%posQueryEvery == 0:
		s.emit("position-query", buildPositionQuery(s.rotateSlot()), false)
	case t%slotRegisterEvery == 0:
		hi, lo := s.slotSeq.next()
		s.emit("collar-slot", BuildCollarSlotPacket(s.rotateSlot(), hi, lo, false), false)
	default:
		raw := fallbackCollarRecord
		if entry, ok := s.session.Registry.First(); ok {
			raw = entry.Raw
		}
		s.emit("collar-relay", buildCollarRelay(raw), false)
	}
}

// rotateSlot advances the rotating collar-slot index 0..30 and returns
// the slot byte.
func (s *Scheduler) rotateSlot() byte {
	slot := byte(collarSlotBase0 + s.slotIndex)
	s.slotIndex = (s.slotIndex + 1) % collarSlotCount
	return slot
}

func (s *Scheduler) emit(name string, body []byte, firstOfBurst bool) {
	if err := s.write(body, firstOfBurst); err != nil {
		s.log.WithFields(logrus.Fields{
			"command": name,
			"error":   err,
		}).Warn("Keep-alive write failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"command": name,
		"tick":    s.tick,
	}).Debug("Keep-alive command sent")
}

func (s *Scheduler) trackSilence() {
	s.ticksWithoutCollar++
	if s.ticksWithoutCollar >= waitingForDataTicks && !s.waitingReported {
		// Diagnostic only: the schedule keeps running untouched.
		s.waitingReported = true
		s.log.Warn("No collar position classified yet, still waiting for data")
		if s.status != nil {
			s.status("waiting for collar data")
		}
	}
}

// Tick returns the current tick count (status surface).
func (s *Scheduler) Tick() uint64 {
	return s.tick
}
