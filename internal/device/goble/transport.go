// Package goble backs the device transport abstraction with the
// go-ble/ble stack (linux HCI).
package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/sirupsen/logrus"

	"github.com/mighkel/GdogTAK/internal/device"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
var DeviceFactory = func() (ble.Device, error) {
	return linux.NewDevice()
}

// Transport is the production BLE transport. The underlying HCI device
// is created lazily on first use and shared by scans and dials.
type Transport struct {
	logger *logrus.Logger

	mu  sync.Mutex
	dev ble.Device
}

func NewTransport(logger *logrus.Logger) *Transport {
	return &Transport{logger: logger}
}

func (t *Transport) ensureDevice() (ble.Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev != nil {
		return t.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", device.NormalizeError(err))
	}
	ble.SetDefaultDevice(dev)
	t.dev = dev
	return dev, nil
}

// Scan streams advertisements until ctx is done.
func (t *Transport) Scan(ctx context.Context, allowDup bool, h func(device.Advertisement)) error {
	dev, err := t.ensureDevice()
	if err != nil {
		return err
	}
	t.logger.Debug("Starting BLE scan...")
	err = dev.Scan(ctx, allowDup, func(a ble.Advertisement) {
		h(bleAdvertisement{a})
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("scan failed: %w", device.NormalizeError(err))
	}
	return nil
}

// Dial connects to the peripheral at addr.
func (t *Transport) Dial(ctx context.Context, addr string) (device.Link, error) {
	if _, err := t.ensureDevice(); err != nil {
		return nil, err
	}
	t.logger.WithField("address", addr).Debug("Dialing BLE device...")
	client, err := ble.Dial(ctx, ble.NewAddr(addr))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", addr, device.NormalizeError(err))
	}
	t.logger.WithField("address", addr).Info("BLE device connected")
	return &bleLink{client: client, logger: t.logger}, nil
}

type bleAdvertisement struct {
	adv ble.Advertisement
}

func (a bleAdvertisement) LocalName() string { return a.adv.LocalName() }
func (a bleAdvertisement) Addr() string      { return a.adv.Addr().String() }
func (a bleAdvertisement) RSSI() int         { return a.adv.RSSI() }
func (a bleAdvertisement) Connectable() bool { return a.adv.Connectable() }
