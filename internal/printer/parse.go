package printer

import (
	"fmt"
	"strconv"
	"strings"
)

// parseAdapterState reads the output of `bluetoothctl show`.
func parseAdapterState(out string) AdapterState {
	if !strings.Contains(out, "Controller ") {
		// "No default controller available"
		return AdapterUnavailable
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "Powered:"); ok {
			if strings.TrimSpace(v) == "yes" {
				return AdapterOn
			}
			return AdapterOff
		}
	}
	return AdapterOn
}

// parsePairedDevices reads `bluetoothctl devices Paired` output.
func parsePairedDevices(out string) []BluetoothDevice {
	var devices []BluetoothDevice
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Device ") {
			continue
		}
		// Format: "Device XX:XX:XX:XX:XX:XX DeviceName"
		parts := strings.SplitN(strings.TrimPrefix(line, "Device "), " ", 2)
		if len(parts) == 2 {
			devices = append(devices, BluetoothDevice{
				MAC:  parts[0],
				Name: strings.TrimSpace(parts[1]),
			})
		}
	}
	return devices
}

// parseSDPChannel finds the RFCOMM channel in `sdptool search` output.
func parseSDPChannel(out string) (int, bool) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		v, ok := strings.CutPrefix(line, "Channel:")
		if !ok {
			continue
		}
		ch, err := strconv.Atoi(strings.TrimSpace(v))
		if err == nil && ch > 0 && ch <= 30 {
			return ch, true
		}
	}
	return 0, false
}

// parseMAC parses "AA:BB:CC:DD:EE:FF" in display order.
func parseMAC(s string) ([6]byte, error) {
	var addr [6]byte
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return addr, fmt.Errorf("invalid MAC address %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil || len(p) != 2 {
			return addr, fmt.Errorf("invalid MAC address %q", s)
		}
		addr[i] = byte(v)
	}
	return addr, nil
}

// macFromInstanceID extracts the peer address from a BTHENUM instance id
// such as "8&2f8d5b2&0&DC0D30A1B2C3_C00000000". The all-zero address marks
// an incoming port.
func macFromInstanceID(id string) (string, bool) {
	if i := strings.LastIndex(id, "&"); i >= 0 {
		id = id[i+1:]
	}
	if i := strings.Index(id, "_"); i >= 0 {
		id = id[:i]
	}
	if len(id) != 12 || id == "000000000000" {
		return "", false
	}
	if _, err := strconv.ParseUint(id, 16, 64); err != nil {
		return "", false
	}
	id = strings.ToUpper(id)
	var b strings.Builder
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(id[i : i+2])
	}
	return b.String(), true
}
