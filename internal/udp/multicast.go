// Package udp sends encoded CoT events to the ATAK mesh SA multicast
// group.
package udp

import (
	"fmt"
	"net"
)

// DefaultDest is the ATAK mesh SA default multicast group.
const DefaultDest = "239.2.3.1:6969"

type Sender struct {
	dest string
	conn *net.UDPConn
}

func NewSender(dest string) (*Sender, error) {
	if dest == "" {
		dest = DefaultDest
	}
	addr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address; for a multicast
	// destination the kernel routes writes onto the default multicast
	// interface.
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}

	return &Sender{dest: dest, conn: conn}, nil
}

func (s *Sender) Dest() string {
	return s.dest
}

func (s *Sender) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	_, err := s.conn.Write(payload)
	return err
}

func (s *Sender) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
