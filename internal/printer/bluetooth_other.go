//go:build !linux && !windows

package printer

import "context"

type unsupportedAdapter struct{}

// NewPlatformAdapter returns the adapter for this OS. There is no Bluetooth
// support here, so every session stops at the adapter check.
func NewPlatformAdapter(opts Options) Adapter {
	return unsupportedAdapter{}
}

func (unsupportedAdapter) State(context.Context) (AdapterState, error) {
	return AdapterUnavailable, nil
}

func (unsupportedAdapter) BondedDevices(context.Context) ([]BluetoothDevice, error) {
	return nil, ErrNotSupported
}

func (unsupportedAdapter) CancelDiscovery(context.Context) error { return nil }

func (unsupportedAdapter) Dial(context.Context, BluetoothDevice) (Conn, error) {
	return nil, ErrNotSupported
}
