package alpha

import (
	"context"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mighkel/GdogTAK/internal/device"
)

// LinkState is the lifecycle of the single active session.
type LinkState int

const (
	StateIdle LinkState = iota
	StateScanning
	StateConnecting
	StateConnected
	StateInitializing
	StateStreaming
	StateError
)

func (s LinkState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateInitializing:
		return "initializing"
	case StateStreaming:
		return "streaming"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// GarminMultiLinkService is the vendor's custom service UUID.
const GarminMultiLinkService = "6a4e2800-667b-11e3-949a-0800200c9a66"

// Config tunes the link machine. Zero values get defaults.
type Config struct {
	// ServiceUUID is the vendor service to drive.
	ServiceUUID string
	// DeviceName matches advertisements by display-name substring.
	DeviceName string
	// DeviceAddress, when set, is a pre-bonded shortcut that bypasses
	// the active scan entirely.
	DeviceAddress string
	// RequestMTU is exchanged right after connect, before discovery,
	// to avoid outbound fragmentation entirely when possible.
	RequestMTU int
	// SettleDelay separates serialized CCCD writes; the handheld drops
	// a notification registration if the next write starts too soon.
	SettleDelay time.Duration
	// StepDelay separates handshake writes.
	StepDelay time.Duration
	// ReconnectBackoff is applied before retrying after a failed dial
	// or a lost link.
	ReconnectBackoff time.Duration
	// TickInterval drives the keep-alive scheduler.
	TickInterval time.Duration
	// ConnectTimeout bounds a single dial attempt.
	ConnectTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.ServiceUUID == "" {
		c.ServiceUUID = GarminMultiLinkService
	}
	if c.DeviceName == "" {
		c.DeviceName = "Alpha"
	}
	if c.RequestMTU == 0 {
		c.RequestMTU = 247
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = 150 * time.Millisecond
	}
	if c.StepDelay == 0 {
		c.StepDelay = 250 * time.Millisecond
	}
	if c.ReconnectBackoff == 0 {
		c.ReconnectBackoff = 5 * time.Second
	}
	if c.TickInterval == 0 {
		c.TickInterval = time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
}

// Engine is the link state machine: it owns the session, drives the
// transport through the handshake ritual and routes decoded positions
// out. All mutable state lives on one dispatch queue; transport
// callbacks and timers are funneled there and never run concurrently.
type Engine struct {
	cfg       Config
	log       *logrus.Logger
	transport device.Transport
	q         *dispatchQueue

	// queue-owned state
	state        LinkState
	status       string
	generation   uint64
	session      *Session
	link         device.Link
	notifyChars  []device.Characteristic
	writeChar    device.Characteristic
	awaitChannel bool
	scanCancel   context.CancelFunc
	keepalive    *Scheduler

	onPosition func(Position)
	onState    func(LinkState, string)
}

// NewEngine builds a stopped engine. Callbacks must be set before Start.
func NewEngine(cfg Config, transport device.Transport, log *logrus.Logger) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:       cfg,
		log:       log,
		transport: transport,
		q:         newDispatchQueue("alpha-link"),
		state:     StateIdle,
	}
}

// OnPosition registers the sink for decoded positions. Called from the
// dispatch queue; the callback must not block.
func (e *Engine) OnPosition(fn func(Position)) { e.onPosition = fn }

// OnStateChange registers a state/status observer.
func (e *Engine) OnStateChange(fn func(LinkState, string)) { e.onState = fn }

// Start begins scanning (or connects directly when a pre-bonded address
// is configured).
func (e *Engine) Start() {
	e.q.Do(func() {
		if e.state != StateIdle && e.state != StateError {
			return
		}
		if e.cfg.DeviceAddress != "" {
			e.connectTo(e.cfg.DeviceAddress)
			return
		}
		e.startScan()
	})
}

// Stop tears the session down and stops the dispatch queue. No callback
// will run after Stop returns.
func (e *Engine) Stop() {
	e.q.Do(func() {
		e.teardown("stopped")
		e.setState(StateIdle, "stopped")
	})
	e.q.Stop()
}

func (e *Engine) setState(s LinkState, status string) {
	if e.state != s || e.status != status {
		e.log.WithFields(logrus.Fields{
			"state":  s.String(),
			"status": status,
		}).Info("Link state changed")
	}
	e.state = s
	e.status = status
	if e.onState != nil {
		e.onState(s, status)
	}
}

// ---- scanning ----

func (e *Engine) startScan() {
	e.setState(StateScanning, "scanning for "+e.cfg.DeviceName)
	gen := e.generation

	ctx, cancel := context.WithCancel(context.Background())
	e.scanCancel = cancel

	go func() {
		err := e.transport.Scan(ctx, false, func(adv device.Advertisement) {
			if !strings.Contains(adv.LocalName(), e.cfg.DeviceName) || !adv.Connectable() {
				return
			}
			addr := adv.Addr()
			e.q.Do(func() {
				if e.generation != gen || e.state != StateScanning {
					return
				}
				e.log.WithFields(logrus.Fields{
					"name":    adv.LocalName(),
					"address": addr,
					"rssi":    adv.RSSI(),
				}).Info("Found target device")
				cancel()
				e.connectTo(addr)
			})
		})
		if err != nil {
			e.q.Do(func() {
				if e.generation != gen || e.state != StateScanning {
					return
				}
				e.log.WithField("error", err).Warn("Scan failed, retrying after backoff")
				e.q.After(e.cfg.ReconnectBackoff, func() {
					if e.generation == gen && e.state == StateScanning {
						e.startScan()
					}
				})
			})
		}
	}()
}

// ---- connection ----

func (e *Engine) connectTo(addr string) {
	e.setState(StateConnecting, "connecting to "+addr)
	gen := e.generation

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ConnectTimeout)
		defer cancel()
		link, err := e.transport.Dial(ctx, addr)
		e.q.Do(func() {
			if e.generation != gen {
				if err == nil {
					_ = link.Close()
				}
				return
			}
			if err != nil {
				e.log.WithFields(logrus.Fields{
					"address": addr,
					"error":   err,
				}).Warn("Connect failed, backing off")
				e.q.After(e.cfg.ReconnectBackoff, func() {
					if e.generation != gen {
						return
					}
					if e.cfg.DeviceAddress != "" {
						e.connectTo(e.cfg.DeviceAddress)
						return
					}
					e.startScan()
				})
				return
			}
			e.onConnected(link)
		})
	}()
}

func (e *Engine) onConnected(link device.Link) {
	e.link = link
	e.session = NewSession(e.log)
	e.setState(StateConnected, "link established")
	gen := e.generation

	go func() {
		<-link.Disconnected()
		e.q.Do(func() {
			if e.generation != gen {
				return
			}
			e.onLinkLost()
		})
	}()

	// Larger MTU before discovery: with a big enough budget outbound
	// messages never need legacy fragmentation at all.
	if granted, err := link.ExchangeMTU(e.cfg.RequestMTU); err != nil {
		e.log.WithField("error", err).Warn("MTU exchange failed, keeping default budget")
	} else if granted > 3 {
		e.session.Frag.PayloadSize = granted - 3
	}

	e.initialize()
}

// ---- initialization: discovery, subscriptions, handshake ----

func (e *Engine) initialize() {
	e.setState(StateInitializing, "discovering service")

	svc, err := e.link.DiscoverService(e.cfg.ServiceUUID)
	if err != nil {
		var nf *device.NotFoundError
		if errors.As(err, &nf) {
			// Wrong or re-paired device; user action required.
			e.failSession("service missing: " + err.Error())
			return
		}
		e.log.WithField("error", err).Warn("Discovery failed, reconnecting")
		e.onLinkLost()
		return
	}

	var indicate device.Characteristic
	e.notifyChars = nil
	e.writeChar = nil
	chars := svc.Characteristics()
	sort.Slice(chars, func(i, j int) bool { return chars[i].UUID() < chars[j].UUID() })
	for _, c := range chars {
		switch {
		case c.Indicatable() && indicate == nil:
			indicate = c
		case c.Notifiable():
			e.notifyChars = append(e.notifyChars, c)
		}
		if c.Writable() && e.writeChar == nil {
			e.writeChar = c
		}
	}
	if len(e.notifyChars) == 0 || e.writeChar == nil {
		e.failSession("required characteristics missing")
		return
	}

	// The vendor client always enables the service-changed indication
	// before any notification subscription; the handheld silently
	// expects it.
	if indicate != nil {
		if err := e.link.Subscribe(indicate, true, func(data []byte) {
			e.log.WithField("data", hex.EncodeToString(data)).Debug("Service changed indication")
		}); err != nil {
			e.log.WithField("error", err).Warn("Service-changed subscribe failed, continuing")
		}
	}

	e.subscribeNext(0)
}

// subscribeNext enables notifications one characteristic at a time.
// CCCD writes are serialized with a settle delay between them.
func (e *Engine) subscribeNext(i int) {
	if i >= len(e.notifyChars) {
		e.beginHandshake()
		return
	}
	gen := e.generation
	c := e.notifyChars[i]
	if err := e.link.Subscribe(c, false, e.makeNotifyHandler(gen)); err != nil {
		e.log.WithFields(logrus.Fields{
			"char_uuid": c.UUID(),
			"error":     err,
		}).Warn("Subscribe failed, continuing best-effort")
	} else {
		e.log.WithField("char_uuid", c.UUID()).Debug("Subscribed to notifications")
	}
	e.q.After(e.cfg.SettleDelay, func() {
		if e.generation == gen {
			e.subscribeNext(i + 1)
		}
	})
}

func (e *Engine) makeNotifyHandler(gen uint64) func([]byte) {
	return func(data []byte) {
		buf := make([]byte, len(data))
		copy(buf, data)
		e.q.Do(func() {
			if e.generation != gen {
				return
			}
			e.handleNotification(buf)
		})
	}
}

func (e *Engine) beginHandshake() {
	e.setState(StateInitializing, "handshake")
	gen := e.generation
	id := e.session.ID()

	e.writeStep("session-id", e.session.Frag.Wrap(BuildSessionPacket(id), true))
	e.q.After(e.cfg.StepDelay, func() {
		if e.generation != gen {
			return
		}
		e.writeStep("session-confirm", e.session.Frag.Wrap(BuildConfirmPacket(id), false))
		e.awaitChannel = true
	})
}

// onChannelAssigned continues the handshake once the peripheral's reply
// supplied the channel prefix.
func (e *Engine) onChannelAssigned() {
	gen := e.generation
	prefix := e.session.Channel.Prefix
	e.log.WithFields(logrus.Fields{
		"prefix":  prefix,
		"channel": e.session.Channel.Channel,
	}).Info("Channel assigned by peripheral")

	e.runChannelEnable(gen, prefix, 0)
}

func (e *Engine) runChannelEnable(gen uint64, prefix byte, i int) {
	if i >= logicalChannelCount {
		e.writeStep("subscribe", e.session.Frag.Wrap(buildSubscribe(prefix), false))
		e.q.After(e.cfg.StepDelay, func() {
			if e.generation != gen {
				return
			}
			e.writeStep("start-streaming", e.session.Frag.Wrap(buildStartStreaming(prefix), false))
			e.q.After(e.cfg.StepDelay, func() {
				if e.generation == gen {
					e.runRegistration(gen, registrationBurst(), 0)
				}
			})
		})
		return
	}
	e.writeStep("channel-enable", e.session.Frag.Wrap(buildChannelEnable(prefix, byte(i)), false))
	e.q.After(e.cfg.StepDelay, func() {
		if e.generation == gen {
			e.runChannelEnable(gen, prefix, i+1)
		}
	})
}

// runRegistration transmits the extended device-registration burst on
// its captured schedule.
func (e *Engine) runRegistration(gen uint64, steps []regStep, i int) {
	if i >= len(steps) {
		e.enterStreaming()
		return
	}
	s := steps[i]
	e.writeStep(s.name, e.session.Frag.WrapScheduled(s.body, s.groupOffset, s.seq, s.marker))
	e.q.After(e.cfg.StepDelay, func() {
		if e.generation == gen {
			e.runRegistration(gen, steps, i+1)
		}
	})
}

func (e *Engine) enterStreaming() {
	e.setState(StateStreaming, "streaming")
	e.keepalive = NewScheduler(e.cfg.TickInterval, e.session, e.q, e.writeBody, e.log)
	e.keepalive.Start(func(status string) {
		// Diagnostic only; the schedule keeps running.
		e.setState(e.state, status)
	})
}

// writeStep sends the framed packets of one handshake step. Transport
// errors are logged and the step is skipped; the sequence continues
// best-effort because aborting mid-handshake guarantees a dead session
// while skipping sometimes survives.
func (e *Engine) writeStep(name string, packets [][]byte) {
	for _, pkt := range packets {
		if err := e.link.WriteCommand(e.writeChar, pkt); err != nil {
			e.log.WithFields(logrus.Fields{
				"step":  name,
				"error": err,
			}).Warn("Handshake step write failed, skipping")
			return
		}
		e.log.WithFields(logrus.Fields{
			"step": name,
			"data": hex.EncodeToString(pkt),
		}).Debug("Wrote handshake step")
	}
}

// writeBody frames and writes one keep-alive command body.
func (e *Engine) writeBody(body []byte, firstOfBurst bool) error {
	if e.link == nil || e.writeChar == nil {
		return device.ErrNotConnected
	}
	for _, pkt := range e.session.Frag.Wrap(body, firstOfBurst) {
		if err := e.link.WriteCommand(e.writeChar, pkt); err != nil {
			return err
		}
	}
	return nil
}

// ---- inbound ----

func (e *Engine) handleNotification(data []byte) {
	if len(data) == 0 {
		return
	}
	if e.session.Frag.LearnBase(data[0]) {
		e.log.WithField("base", e.session.Frag.Base()).Info("Learned session fragment base")
	}

	// Registry broadcasts are routed before any position parsing and
	// never produce a position of their own.
	if IsRegistryPacket(data) {
		e.session.Registry.Ingest(data)
		return
	}

	payload := StripFragmentHeader(data)

	if e.awaitChannel {
		if prefix, channel, ok := ParseChannelReply(payload); ok {
			e.awaitChannel = false
			e.session.LearnChannel(prefix, channel)
			e.onChannelAssigned()
			return
		}
	}

	pos, ok := DecodePosition(data, time.Now().UTC())
	if !ok {
		// Normal outcome for most traffic; not an error.
		return
	}
	e.log.WithFields(logrus.Fields{
		"source": pos.Source.String(),
		"lat":    pos.LatDeg,
		"lon":    pos.LonDeg,
	}).Debug("Decoded position")
	if e.keepalive != nil {
		e.keepalive.NotePosition(pos.Source)
	}
	if e.onPosition != nil {
		e.onPosition(pos)
	}
}

// ---- teardown & recovery ----

// onLinkLost resets every piece of per-session learned state — fragment
// base, channel prefix, registry — because a new session renegotiates
// everything, then rescans after a fixed backoff. Never a dead-end.
func (e *Engine) onLinkLost() {
	e.teardown("link lost")
	gen := e.generation
	e.setState(StateScanning, "reconnecting after link loss")
	e.q.After(e.cfg.ReconnectBackoff, func() {
		if e.generation != gen {
			return
		}
		if e.cfg.DeviceAddress != "" {
			e.connectTo(e.cfg.DeviceAddress)
			return
		}
		e.startScan()
	})
}

// failSession is terminal: missing services/characteristics need user
// action (re-pairing) before another Start.
func (e *Engine) failSession(reason string) {
	e.teardown(reason)
	e.setState(StateError, reason)
}

func (e *Engine) teardown(reason string) {
	e.generation++
	e.awaitChannel = false
	if e.keepalive != nil {
		e.keepalive.Stop()
		e.keepalive = nil
	}
	if e.scanCancel != nil {
		e.scanCancel()
		e.scanCancel = nil
	}
	if e.link != nil {
		if err := e.link.Close(); err != nil {
			e.log.WithField("error", err).Debug("Link close reported error")
		}
		e.link = nil
	}
	e.session = nil
	e.notifyChars = nil
	e.writeChar = nil
	e.log.WithField("reason", reason).Info("Session torn down")
}
