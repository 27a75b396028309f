package protocol

import (
	"encoding/json"
	"fmt"
)

// DeviceStatus is the JSON report the camera publishes on the status
// characteristic in response to STATUS.
type DeviceStatus struct {
	BLE      bool    `json:"ble"`
	Frames   bool    `json:"frames"`
	Audio    bool    `json:"audio"`
	Interval float64 `json:"interval"`
	Quality  int     `json:"quality"`
	Size     int     `json:"size"`
	Battery  int     `json:"battery"`
	FreeHeap uint64  `json:"free_heap"`
}

// ParseStatus decodes a status notification.
func ParseStatus(data []byte) (DeviceStatus, error) {
	var st DeviceStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return DeviceStatus{}, fmt.Errorf("protocol: parse status: %w", err)
	}
	return st, nil
}
