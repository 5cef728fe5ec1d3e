package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// SerialPortProfileUUID is the Bluetooth service class of the serial port profile.
const SerialPortProfileUUID = "00001101-0000-1000-8000-00805F9B34FB"

// Common errors
var (
	ErrPermissionDenied   = errors.New("Bluetooth connect permission not granted")
	ErrAdapterUnavailable = errors.New("no Bluetooth adapter available")
	ErrAdapterDisabled    = errors.New("Bluetooth adapter is powered off")
	ErrDeviceNotFound     = errors.New("no paired printer found")
	ErrPrivilegeRequired  = errors.New("root privileges required for RFCOMM")
	ErrConnectionCanceled = errors.New("connection canceled")
	ErrNotSupported       = errors.New("operation not supported on this platform")
)

// ConnectionError reports a failure to open or write to the printer link.
type ConnectionError struct {
	Device string
	Op     string // "connect", "write" or "flush"
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Device, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// BluetoothDevice represents a paired Bluetooth device
type BluetoothDevice struct {
	Name string
	MAC  string
	Port string // COM port on Windows, empty elsewhere
}

func (d BluetoothDevice) String() string {
	if d.Port != "" {
		return fmt.Sprintf("%s (%s, %s)", d.Name, d.MAC, d.Port)
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.MAC)
}

// AdapterState is the power state of the local Bluetooth adapter.
type AdapterState int

const (
	AdapterUnavailable AdapterState = iota
	AdapterOff
	AdapterOn
)

func (s AdapterState) String() string {
	switch s {
	case AdapterOff:
		return "off"
	case AdapterOn:
		return "on"
	default:
		return "unavailable"
	}
}

// Adapter is the platform Bluetooth stack as seen by a print session.
type Adapter interface {
	// State reports whether an adapter exists and is powered.
	State(ctx context.Context) (AdapterState, error)

	// BondedDevices lists already paired devices. No scan is performed.
	BondedDevices(ctx context.Context) ([]BluetoothDevice, error)

	// CancelDiscovery stops any inquiry that would slow down connecting.
	CancelDiscovery(ctx context.Context) error

	// Dial opens a serial port profile link to dev.
	Dial(ctx context.Context, dev BluetoothDevice) (Conn, error)
}

// Conn is an open link to one printer.
type Conn interface {
	io.Writer

	// Flush blocks until written bytes have left the local buffers
	Flush() error

	Close() error
}

// Transport selects how the Linux adapter reaches the printer.
type Transport string

const (
	TransportSocket    Transport = "socket"     // native RFCOMM socket
	TransportRFCOMMTTY Transport = "rfcomm-tty" // rfcomm connect + serial tty
	TransportSerial    Transport = "serial"     // an already bound serial device
)

// Options configures the platform adapter.
type Options struct {
	Transport Transport
	Channel   int    // RFCOMM channel used when SDP lookup fails
	Port      string // device path for TransportSerial
	BaudRate  int
	Log       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Transport == "" {
		o.Transport = TransportSocket
	}
	if o.Channel <= 0 {
		o.Channel = 1
	}
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.Log == nil {
		o.Log = slog.Default()
	}
	return o
}

// FindByPrefix returns the first device whose name starts with prefix.
func FindByPrefix(devices []BluetoothDevice, prefix string) (BluetoothDevice, bool) {
	for _, d := range devices {
		if strings.HasPrefix(d.Name, prefix) {
			return d, true
		}
	}
	return BluetoothDevice{}, false
}
