// Package device defines the narrow BLE transport surface the protocol
// engine drives: scan, connect, MTU exchange, subscribe, command write
// and disconnect watch. The engine never talks to a BLE stack directly;
// the goble subpackage provides the production implementation and tests
// substitute fakes.
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NotFoundError reports a missing BLE resource.
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // [serviceUUID] or [serviceUUID, charUUID]
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

// ErrPermissionDenied marks transport-level permission failures (user
// correctable, e.g. missing bluetooth capabilities); the engine aborts
// the current step but does not tear the session down for these.
var ErrPermissionDenied = errors.New("permission denied")

// NormalizeError maps known go-ble error strings to structured error
// types so callers get stable behavior even if the upstream library
// changes messages slightly. Wraps to preserve the original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "device not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case strings.Contains(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case strings.Contains(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	case strings.Contains(msg, "permission") || strings.Contains(msg, "operation not permitted"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	default:
		return err
	}
}

// Advertisement is the slice of a BLE advertisement the bridge needs.
type Advertisement interface {
	LocalName() string
	Addr() string
	RSSI() int
	Connectable() bool
}

// Transport creates links to peripherals.
type Transport interface {
	// Scan streams advertisements to h until ctx is done.
	Scan(ctx context.Context, allowDup bool, h func(Advertisement)) error
	// Dial connects to the peripheral at addr.
	Dial(ctx context.Context, addr string) (Link, error)
}

// Characteristic is a discovered GATT characteristic.
type Characteristic interface {
	UUID() string
	Notifiable() bool
	Indicatable() bool
	Writable() bool
}

// Service is a discovered GATT service.
type Service interface {
	UUID() string
	Characteristics() []Characteristic
}

// Link is one live connection. Only one write may be outstanding at a
// time; callers are expected to serialize all Subscribe and Write calls
// themselves (the engine funnels them through its dispatch queue).
type Link interface {
	// ExchangeMTU negotiates a larger MTU and returns the granted value.
	ExchangeMTU(mtu int) (int, error)
	// DiscoverService enumerates the target service's characteristics.
	DiscoverService(uuid string) (Service, error)
	// Subscribe enables notifications (or indications) on c and routes
	// inbound values to h. One CCCD write per call.
	Subscribe(c Characteristic, indicate bool, h func([]byte)) error
	// WriteCommand performs a write-without-response to c.
	WriteCommand(c Characteristic, data []byte) error
	// Disconnected is closed when the link drops.
	Disconnected() <-chan struct{}
	Close() error
}

// NormalizeUUID lowercases a UUID and strips dashes for map lookups.
func NormalizeUUID(uuid string) string {
	return strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
}
