// Package settings persists the few values an operator configures on the
// device: its name and the network it joins.
package settings

import "context"

// DefaultDeviceName is what provisioning apps look for on a fresh device.
const DefaultDeviceName = "ESP32-BLE-Example"

const secretMask = "****"

type Settings struct {
	DeviceName string `json:"deviceName"`
	SSID       string `json:"ssid"`
	Password   string `json:"password"`
}

func Default() Settings {
	return Settings{DeviceName: DefaultDeviceName}
}

// Sanitized returns a copy that is safe to show: the password is cut to its
// first four characters followed by a mask.
func (s Settings) Sanitized() Settings {
	if s.Password != "" {
		p := []rune(s.Password)
		s.Password = string(p[:min(4, len(p))]) + secretMask
	}
	return s
}

// Store loads and saves Settings. Fields that were never saved load with
// their default values.
type Store interface {
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
	Close() error
}
