// Package scan implements interactive BLE discovery for the `scan`
// command: collect advertisements for a while, deduplicate by address,
// report what was seen.
package scan

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/mighkel/GdogTAK/internal/device"
)

// DeviceInfo is one discovered peripheral.
type DeviceInfo struct {
	Name        string
	Address     string
	RSSI        int
	Connectable bool
}

// Scanner handles BLE device discovery.
type Scanner struct {
	logger *logrus.Logger
}

func NewScanner(logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{logger: logger}
}

// Scan collects advertisements for the given duration and returns the
// deduplicated devices sorted by descending signal strength.
func (s *Scanner) Scan(ctx context.Context, transport device.Transport, duration time.Duration) ([]DeviceInfo, error) {
	s.logger.WithField("duration", duration).Info("Starting BLE scan...")

	devices := hashmap.New[string, DeviceInfo]()

	scanCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	scanErr := transport.Scan(scanCtx, false, func(adv device.Advertisement) {
		addr := adv.Addr()
		info := DeviceInfo{
			Name:        adv.LocalName(),
			Address:     addr,
			RSSI:        adv.RSSI(),
			Connectable: adv.Connectable(),
		}
		if _, existed := devices.Get(addr); !existed {
			s.logger.WithFields(logrus.Fields{
				"device":  info.Name,
				"address": info.Address,
				"rssi":    info.RSSI,
			}).Info("Discovered new device")
		}
		devices.Set(addr, info)
	})
	// The deadline firing is how a scan normally ends.
	if scanErr != nil && !errors.Is(scanErr, context.DeadlineExceeded) && !errors.Is(scanErr, context.Canceled) {
		return nil, scanErr
	}

	s.logger.WithField("device_count", devices.Len()).Info("BLE scan completed")

	result := make([]DeviceInfo, 0, devices.Len())
	devices.Range(func(_ string, info DeviceInfo) bool {
		result = append(result, info)
		return true
	})
	sort.Slice(result, func(i, j int) bool { return result[i].RSSI > result[j].RSSI })
	return result, nil
}
