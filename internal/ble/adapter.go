// Package ble provides the BLE central for an OpenSidekick camera. It
// handles discovery, connection management with automatic reconnection,
// control writes and routing of notifications from the camera's GATT
// characteristics.
package ble

import "context"

// OpenSidekick GATT UUIDs. The firmware registers the service with the
// 16-bit alias 0x1234; some stacks expose the 128-bit form instead.
const (
	ServiceUUID     = "12345678-1234-1234-1234-123456789abc"
	ServiceUUID16   = "00001234-0000-1000-8000-00805f9b34fb"
	ControlCharUUID = "87654321-4321-4321-4321-cba987654321"
	StatusCharUUID  = "11111111-2222-3333-4444-555555555555"
	ImageCharUUID   = "22222222-3333-4444-5555-666666666666"
	FrameCharUUID   = "44444444-5555-6666-7777-888888888888"
	AudioCharUUID   = "33333333-4444-5555-6666-777777777777"
)

// ServiceUUIDs lists the service UUIDs tried, in order, during discovery.
var ServiceUUIDs = []string{ServiceUUID16, ServiceUUID}

// DefaultDeviceNames are the advertised names the camera firmware uses.
var DefaultDeviceNames = []string{"OpenSidekick", "ESP32S3-Camera"}

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this characteristic.
	// The slice passed to the callback is only valid for the duration of the call.
	Subscribe(callback func(data []byte)) error
}

// Device represents a discovered BLE peripheral. On macOS, Address is a
// CoreBluetooth UUID rather than a MAC address.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan returns named peripherals seen until ctx is done.
	Scan(ctx context.Context) ([]Device, error)
	// Connect establishes a connection to the device with the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
