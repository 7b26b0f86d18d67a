package goble

import (
	"fmt"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/mighkel/GdogTAK/internal/device"
)

// bleLink wraps one ble.Client connection.
type bleLink struct {
	client ble.Client
	logger *logrus.Logger
}

func (l *bleLink) ExchangeMTU(mtu int) (int, error) {
	granted, err := l.client.ExchangeMTU(mtu)
	if err != nil {
		return 0, device.NormalizeError(err)
	}
	l.logger.WithFields(logrus.Fields{
		"requested": mtu,
		"granted":   granted,
	}).Debug("MTU exchanged")
	return granted, nil
}

func (l *bleLink) DiscoverService(uuid string) (device.Service, error) {
	u, err := ble.Parse(uuid)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", uuid, err)
	}

	services, err := l.client.DiscoverServices([]ble.UUID{u})
	if err != nil {
		return nil, fmt.Errorf("service discovery failed: %w", device.NormalizeError(err))
	}
	if len(services) == 0 {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
	}
	svc := services[0]

	chars, err := l.client.DiscoverCharacteristics(nil, svc)
	if err != nil {
		return nil, fmt.Errorf("characteristic discovery failed: %w", device.NormalizeError(err))
	}
	wrapped := make([]device.Characteristic, 0, len(chars))
	for _, c := range chars {
		// Descriptors are needed so Subscribe can find the CCCD.
		if _, err := l.client.DiscoverDescriptors(nil, c); err != nil {
			l.logger.WithFields(logrus.Fields{
				"char_uuid": c.UUID.String(),
				"error":     err,
			}).Warn("Descriptor discovery failed for characteristic")
		}
		wrapped = append(wrapped, &bleCharacteristic{char: c})
	}

	l.logger.WithFields(logrus.Fields{
		"service_uuid":    uuid,
		"characteristics": len(wrapped),
	}).Debug("Service discovered")
	return &bleService{uuid: device.NormalizeUUID(uuid), chars: wrapped}, nil
}

func (l *bleLink) Subscribe(c device.Characteristic, indicate bool, h func([]byte)) error {
	bc, ok := c.(*bleCharacteristic)
	if !ok {
		return fmt.Errorf("characteristic %q does not belong to this link", c.UUID())
	}
	return device.NormalizeError(l.client.Subscribe(bc.char, indicate, func(data []byte) {
		h(data)
	}))
}

func (l *bleLink) WriteCommand(c device.Characteristic, data []byte) error {
	bc, ok := c.(*bleCharacteristic)
	if !ok {
		return fmt.Errorf("characteristic %q does not belong to this link", c.UUID())
	}
	return device.NormalizeError(l.client.WriteCharacteristic(bc.char, data, true))
}

func (l *bleLink) Disconnected() <-chan struct{} {
	return l.client.Disconnected()
}

func (l *bleLink) Close() error {
	return device.NormalizeError(l.client.CancelConnection())
}

type bleService struct {
	uuid  string
	chars []device.Characteristic
}

func (s *bleService) UUID() string { return s.uuid }

func (s *bleService) Characteristics() []device.Characteristic { return s.chars }

type bleCharacteristic struct {
	char *ble.Characteristic
}

func (c *bleCharacteristic) UUID() string {
	return device.NormalizeUUID(c.char.UUID.String())
}

func (c *bleCharacteristic) Notifiable() bool {
	return c.char.Property&ble.CharNotify != 0
}

func (c *bleCharacteristic) Indicatable() bool {
	return c.char.Property&ble.CharIndicate != 0
}

func (c *bleCharacteristic) Writable() bool {
	return c.char.Property&(ble.CharWrite|ble.CharWriteNR) != 0
}
