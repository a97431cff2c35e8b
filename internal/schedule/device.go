package schedule

import "sync"

// Device holds the last reported device state. The zero value reports a metered,
// discharging device.
type Device struct {
	mu    sync.RWMutex
	state DeviceState
}

// Set stores the current state
func (d *Device) Set(state DeviceState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = state
}

// State returns the current state
func (d *Device) State() DeviceState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}
