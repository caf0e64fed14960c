package main

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/liftlog/liftlog/pkg/device"
)

// newClient builds a device.Client from the persistent flags, minting
// a device_id if one was not supplied. The minted id is printed so the
// caller can reuse it across invocations against the same --db.
func newClient() (*device.Client, error) {
	deviceID := flagDeviceID
	if deviceID == "" {
		deviceID = uuid.NewString()
		fmt.Printf("generated device_id: %s\n", deviceID)
	}

	cfg := device.Config{
		LocalPath: flagLocalPath,
		ServerURL: flagServerURL,
		APIKey:    flagAPIKey,
		DeviceID:  deviceID,
		UserID:    flagUserID,
	}
	return device.New(cfg)
}
