package printer

import "testing"

func TestParseAdapterState(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want AdapterState
	}{
		{"no controller", "No default controller available\n", AdapterUnavailable},
		{"empty", "", AdapterUnavailable},
		{"powered", "Controller 00:1A:7D:DA:71:13 (public)\n\tName: laptop\n\tPowered: yes\n\tDiscoverable: no\n", AdapterOn},
		{"off", "Controller 00:1A:7D:DA:71:13 (public)\n\tPowered: no\n", AdapterOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseAdapterState(tt.out); got != tt.want {
				t.Errorf("parseAdapterState() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParsePairedDevices(t *testing.T) {
	out := "Device DC:0D:30:A1:B2:C3 SK58-2A1F\n" +
		"[CHG] Controller 00:1A:7D:DA:71:13 Discovering: no\n" +
		"Device 00:11:22:33:44:55 Office Headphones\n" +
		"Device AA:BB:CC:DD:EE:FF\n"

	devices := parsePairedDevices(out)
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2: %v", len(devices), devices)
	}
	if devices[0].Name != "SK58-2A1F" || devices[0].MAC != "DC:0D:30:A1:B2:C3" {
		t.Errorf("devices[0] = %+v", devices[0])
	}
	if devices[1].Name != "Office Headphones" {
		t.Errorf("devices[1].Name = %q", devices[1].Name)
	}

	if d, ok := FindByPrefix(devices, DefaultNamePrefix); !ok || d.MAC != "DC:0D:30:A1:B2:C3" {
		t.Errorf("FindByPrefix() = %+v, %v", d, ok)
	}
}

func TestParseSDPChannel(t *testing.T) {
	out := `Searching for SP on DC:0D:30:A1:B2:C3 ...
Service Name: SerialPort
Service RecHandle: 0x10002
Service Class ID List:
  "Serial Port" (0x1101)
Protocol Descriptor List:
  "L2CAP" (0x0100)
  "RFCOMM" (0x0003)
    Channel: 2
`
	if ch, ok := parseSDPChannel(out); !ok || ch != 2 {
		t.Errorf("parseSDPChannel() = %d, %v, want 2, true", ch, ok)
	}
	if _, ok := parseSDPChannel("Failed to connect to SDP server"); ok {
		t.Errorf("parseSDPChannel() found a channel in an error message")
	}
}

func TestParseMAC(t *testing.T) {
	addr, err := parseMAC("DC:0D:30:A1:B2:C3")
	if err != nil {
		t.Fatalf("parseMAC() error = %v", err)
	}
	want := [6]byte{0xDC, 0x0D, 0x30, 0xA1, 0xB2, 0xC3}
	if addr != want {
		t.Errorf("parseMAC() = % X, want % X", addr, want)
	}

	for _, bad := range []string{"", "DC:0D:30:A1:B2", "DC:0D:30:A1:B2:ZZ", "DC:0D:30:A1:B2:C3:00", "D:0D:30:A1:B2:C3"} {
		if _, err := parseMAC(bad); err == nil {
			t.Errorf("parseMAC(%q) succeeded", bad)
		}
	}
}

func TestMACFromInstanceID(t *testing.T) {
	tests := []struct {
		id   string
		want string
		ok   bool
	}{
		{"8&2f8d5b2&0&DC0D30A1B2C3_C00000000", "DC:0D:30:A1:B2:C3", true},
		{"7&1a2b3c&0&dc0d30a1b2c3_c00000001", "DC:0D:30:A1:B2:C3", true},
		{"7&1a2b3c&0&000000000000_00000000", "", false},
		{"garbage", "", false},
	}

	for _, tt := range tests {
		got, ok := macFromInstanceID(tt.id)
		if got != tt.want || ok != tt.ok {
			t.Errorf("macFromInstanceID(%q) = %q, %v, want %q, %v", tt.id, got, ok, tt.want, tt.ok)
		}
	}
}
