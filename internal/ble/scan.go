package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// MatchName reports whether a device's advertised name contains any of
// names. An empty names list matches DefaultDeviceNames.
func MatchName(d Device, names []string) bool {
	if len(names) == 0 {
		names = DefaultDeviceNames
	}
	for _, n := range names {
		if n != "" && strings.Contains(d.Name, n) {
			return true
		}
	}
	return false
}

// ScanForDevices scans for timeout and returns the cameras whose names
// match, strongest signal first.
func ScanForDevices(ctx context.Context, adapter Adapter, names []string, timeout time.Duration) ([]Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	all, err := adapter.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}

	var devices []Device
	for _, d := range all {
		if MatchName(d, names) {
			devices = append(devices, d)
		} else {
			slog.Debug("[BLE] ignoring device", "name", d.Name, "address", d.Address)
		}
	}
	sort.SliceStable(devices, func(i, j int) bool { return devices[i].RSSI > devices[j].RSSI })
	return devices, nil
}

// FindDevice returns the strongest matching camera, or ErrNoDevice.
func FindDevice(ctx context.Context, adapter Adapter, names []string, timeout time.Duration) (Device, error) {
	devices, err := ScanForDevices(ctx, adapter, names, timeout)
	if err != nil {
		return Device{}, err
	}
	if len(devices) == 0 {
		return Device{}, fmt.Errorf("%w (searched for %s)", ErrNoDevice, strings.Join(orDefault(names), ", "))
	}
	slog.Info("[BLE] found camera", "name", devices[0].Name, "address", devices[0].Address, "rssi", devices[0].RSSI)
	return devices[0], nil
}

func orDefault(names []string) []string {
	if len(names) == 0 {
		return DefaultDeviceNames
	}
	return names
}
