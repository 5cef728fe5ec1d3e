//go:build windows

package printer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sys/windows/registry"
)

const (
	serialCommKey = `HARDWARE\DEVICEMAP\SERIALCOMM`
	bthEnumKey    = `SYSTEM\CurrentControlSet\Enum\BTHENUM`
	bthDevicesKey = `SYSTEM\CurrentControlSet\Services\BTHPORT\Parameters\Devices`
)

// COMAdapter finds paired serial-profile printers through the COM ports
// Windows creates for them.
type COMAdapter struct {
	opts Options
	log  *slog.Logger
}

// NewPlatformAdapter returns the adapter for this OS.
func NewPlatformAdapter(opts Options) Adapter {
	opts = opts.withDefaults()
	return &COMAdapter{opts: opts, log: opts.Log}
}

// State has no power information on this path: the adapter is either
// there (Bluetooth COM ports are mapped) or not.
func (a *COMAdapter) State(ctx context.Context) (AdapterState, error) {
	ports, err := getBluetoothCOMPorts()
	if err != nil {
		return AdapterUnavailable, err
	}
	if len(ports) == 0 {
		key, err := registry.OpenKey(registry.LOCAL_MACHINE, bthDevicesKey, registry.READ)
		if err != nil {
			return AdapterUnavailable, nil
		}
		key.Close()
	}
	return AdapterOn, nil
}

// BondedDevices lists outgoing serial-profile ports of paired devices.
func (a *COMAdapter) BondedDevices(ctx context.Context) ([]BluetoothDevice, error) {
	enum, err := registry.OpenKey(registry.LOCAL_MACHINE, bthEnumKey, registry.ENUMERATE_SUB_KEYS)
	if err != nil {
		return nil, err
	}
	defer enum.Close()

	services, err := enum.ReadSubKeyNames(-1)
	if err != nil {
		return nil, err
	}

	var devices []BluetoothDevice
	for _, svc := range services {
		if !strings.Contains(strings.ToUpper(svc), SerialPortProfileUUID) {
			continue
		}
		devices = append(devices, a.servicePorts(svc)...)
	}
	return devices, nil
}

func (a *COMAdapter) servicePorts(svc string) []BluetoothDevice {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, bthEnumKey+`\`+svc, registry.ENUMERATE_SUB_KEYS)
	if err != nil {
		return nil
	}
	defer key.Close()

	instances, err := key.ReadSubKeyNames(-1)
	if err != nil {
		return nil
	}

	var devices []BluetoothDevice
	for _, inst := range instances {
		mac, ok := macFromInstanceID(inst)
		if !ok {
			continue
		}
		params, err := registry.OpenKey(key, inst+`\Device Parameters`, registry.QUERY_VALUE)
		if err != nil {
			continue
		}
		port, _, err := params.GetStringValue("PortName")
		params.Close()
		if err != nil {
			continue
		}
		devices = append(devices, BluetoothDevice{
			Name: deviceName(mac),
			MAC:  mac,
			Port: port,
		})
	}
	return devices
}

// deviceName reads the friendly name BTHPORT stores for a paired device.
func deviceName(mac string) string {
	id := strings.ToLower(strings.ReplaceAll(mac, ":", ""))
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, bthDevicesKey+`\`+id, registry.QUERY_VALUE)
	if err != nil {
		return mac
	}
	defer key.Close()

	raw, _, err := key.GetBinaryValue("Name")
	if err != nil {
		return mac
	}
	if i := strings.IndexByte(string(raw), 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw)
}

// CancelDiscovery is a no-op: opening a COM port never scans.
func (a *COMAdapter) CancelDiscovery(ctx context.Context) error {
	return nil
}

func (a *COMAdapter) Dial(ctx context.Context, dev BluetoothDevice) (Conn, error) {
	port := dev.Port
	if a.opts.Transport == TransportSerial && a.opts.Port != "" {
		port = a.opts.Port
	}
	if !strings.HasPrefix(strings.ToUpper(port), "COM") {
		return nil, fmt.Errorf("invalid COM port: %q", port)
	}
	// COM ports > 9 need the \\.\COM10 form
	if len(port) > 4 {
		port = `\\.\` + port
	}
	a.log.Debug("opening COM port", "device", dev.Name, "port", port)
	return OpenSerial(port, a.opts.BaudRate)
}

// getBluetoothCOMPorts reads Bluetooth COM port mappings from registry
func getBluetoothCOMPorts() (map[string]string, error) {
	ports := make(map[string]string)

	key, err := registry.OpenKey(registry.LOCAL_MACHINE, serialCommKey, registry.READ)
	if err != nil {
		return nil, err
	}
	defer key.Close()

	names, err := key.ReadValueNames(-1)
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		val, _, err := key.GetStringValue(name)
		if err == nil {
			lower := strings.ToLower(name)
			if strings.Contains(lower, "bth") || strings.Contains(lower, "bluetooth") {
				ports[name] = val
			}
		}
	}

	return ports, nil
}
