package alpha

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ChannelAssignment is learned once from the peripheral's handshake
// reply and is immutable for the rest of the session. The prefix must
// ride on every subsequent handshake-family write.
type ChannelAssignment struct {
	Prefix  byte
	Channel byte // informational
	learned bool
}

// Learned reports whether the peripheral has assigned a channel yet.
func (c ChannelAssignment) Learned() bool {
	return c.learned
}

// Session holds every piece of protocol state that is renegotiated on
// reconnect: the session id, the learned fragment base, the channel
// assignment and the collar registry. One Session exists per connection
// attempt; it is owned by the link machine and only touched from its
// dispatch queue, so nothing here is locked. A fresh Session is
// mandatory after link loss — reusing learned state against a new
// connection silently kills the stream.
type Session struct {
	id       [8]byte
	Frag     *FragmentContext
	Channel  ChannelAssignment
	Registry *Registry
}

// NewSession creates a session with a random 8-byte id, the fallback
// fragment base and an empty registry.
func NewSession(log *logrus.Logger) *Session {
	s := &Session{
		Frag:     NewFragmentContext(),
		Registry: NewRegistry(log),
	}
	u := uuid.New()
	copy(s.id[:], u[:8])
	return s
}

// ID returns the session's opaque 8-byte identity.
func (s *Session) ID() [8]byte {
	return s.id
}

// LearnChannel fixes the channel assignment from the handshake reply.
// Later replies within the same session are ignored.
func (s *Session) LearnChannel(prefix, channel byte) bool {
	if s.Channel.learned {
		return false
	}
	s.Channel = ChannelAssignment{Prefix: prefix, Channel: channel, learned: true}
	return true
}
