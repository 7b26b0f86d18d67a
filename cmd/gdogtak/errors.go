package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/mighkel/GdogTAK/internal/device"
)

// Command-level errors
var (
	// ErrNoDeviceFound indicates no matching handheld advertised during the
	// scan window. Distinct from device.NotFoundError, which reports a GATT
	// lookup miss on an already-connected device.
	ErrNoDeviceFound = errors.New("no matching device found")
)

// FormatUserError turns internal errors into messages suitable for stderr.
// Transport errors carry HCI-level detail that is meaningless to an operator;
// this maps the common failure modes to actionable text.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out"
	case errors.Is(err, device.ErrPermissionDenied):
		return "bluetooth permission denied (try running with elevated privileges, or grant CAP_NET_ADMIN)"
	case errors.Is(err, device.ErrNotConnected):
		return "device is not connected"
	case errors.Is(err, ErrNoDeviceFound):
		return "no matching device found (is the handheld powered on and in range?)"
	}

	var nf *device.NotFoundError
	if errors.As(err, &nf) {
		return fmt.Sprintf("%s - the device may not be an Alpha handheld", nf.Error())
	}

	var ce *device.ConnectionError
	if errors.As(err, &ce) {
		return ce.Error()
	}

	return err.Error()
}
