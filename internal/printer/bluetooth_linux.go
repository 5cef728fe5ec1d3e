//go:build linux

package printer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// BlueZAdapter talks to BlueZ through bluetoothctl and sdptool.
type BlueZAdapter struct {
	opts Options
	log  *slog.Logger

	// run executes a command and returns its stdout
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewPlatformAdapter returns the adapter for this OS.
func NewPlatformAdapter(opts Options) Adapter {
	return NewBlueZAdapter(opts)
}

func NewBlueZAdapter(opts Options) *BlueZAdapter {
	opts = opts.withDefaults()
	return &BlueZAdapter{
		opts: opts,
		log:  opts.Log,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

func (a *BlueZAdapter) State(ctx context.Context) (AdapterState, error) {
	out, err := a.run(ctx, "bluetoothctl", "show")
	if err != nil {
		return AdapterUnavailable, fmt.Errorf("bluetoothctl show: %w", err)
	}
	return parseAdapterState(string(out)), nil
}

// BondedDevices returns all paired Bluetooth devices
func (a *BlueZAdapter) BondedDevices(ctx context.Context) ([]BluetoothDevice, error) {
	out, err := a.run(ctx, "bluetoothctl", "devices", "Paired")
	if err == nil && strings.Contains(string(out), "Device ") {
		return parsePairedDevices(string(out)), nil
	}

	// BlueZ before 5.65 only knows paired-devices.
	legacy, lerr := a.run(ctx, "bluetoothctl", "paired-devices")
	if lerr != nil {
		if err != nil {
			return nil, fmt.Errorf("failed to list paired devices: %w", err)
		}
		return nil, nil
	}
	return parsePairedDevices(string(legacy)), nil
}

func (a *BlueZAdapter) CancelDiscovery(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := a.run(ctx, "bluetoothctl", "scan", "off")
	return err
}

// channel asks SDP for the serial port channel of mac.
func (a *BlueZAdapter) channel(ctx context.Context, mac string) int {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := a.run(ctx, "sdptool", "search", "--bdaddr", mac, "SP")
	if err == nil {
		if ch, ok := parseSDPChannel(string(out)); ok {
			return ch
		}
	}
	a.log.Debug("sdp lookup failed, using configured channel", "mac", mac, "channel", a.opts.Channel, "error", err)
	return a.opts.Channel
}

func (a *BlueZAdapter) Dial(ctx context.Context, dev BluetoothDevice) (Conn, error) {
	switch a.opts.Transport {
	case TransportSerial:
		if a.opts.Port == "" {
			return nil, fmt.Errorf("serial transport needs a port")
		}
		return OpenSerial(a.opts.Port, a.opts.BaudRate)

	case TransportRFCOMMTTY:
		ch := a.channel(ctx, dev.MAC)
		binding, err := EstablishRFCOMM(ctx, dev.MAC, ch, func(msg string) {
			a.log.Debug("rfcomm", "mac", dev.MAC, "status", msg)
		})
		if err != nil {
			return nil, err
		}
		conn, err := OpenSerial(binding.DevicePath, a.opts.BaudRate)
		if err != nil {
			binding.Close()
			return nil, err
		}
		conn.onClose = binding.Close
		return conn, nil

	default:
		return dialRFCOMM(ctx, dev.MAC, a.channel(ctx, dev.MAC))
	}
}

// socketConn is a native RFCOMM stream socket.
type socketConn struct {
	f *os.File
}

func (c *socketConn) Write(p []byte) (int, error) { return c.f.Write(p) }

// Flush is a no-op: writes go straight to the kernel socket buffer.
func (c *socketConn) Flush() error { return nil }

func (c *socketConn) Close() error { return c.f.Close() }

func dialRFCOMM(ctx context.Context, mac string, channel int) (*socketConn, error) {
	addr, err := parseMAC(mac)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("rfcomm socket: %w", err)
	}

	// bdaddr_t is little-endian.
	sa := &unix.SockaddrRFCOMM{Channel: uint8(channel)}
	for i := range addr {
		sa.Addr[i] = addr[len(addr)-1-i]
	}

	done := make(chan error, 1)
	go func() { done <- unix.Connect(fd, sa) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		unix.Shutdown(fd, unix.SHUT_RDWR)
		<-done
		err = ctx.Err()
	}
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("rfcomm connect %s channel %d: %w", mac, channel, err)
	}

	return &socketConn{f: os.NewFile(uintptr(fd), "rfcomm:"+mac)}, nil
}

// RFCOMMConnection manages an RFCOMM connection process (Linux-specific)
type RFCOMMConnection struct {
	DevicePath string
	MAC        string
	cmd        *exec.Cmd
	cancel     context.CancelFunc
	mu         sync.Mutex
}

// FindAvailableRFCOMMDevice finds an unused /dev/rfcommN device number
func FindAvailableRFCOMMDevice() (string, int, error) {
	for i := 0; i < 10; i++ {
		devPath := fmt.Sprintf("/dev/rfcomm%d", i)
		out, _ := exec.Command("rfcomm", "show", devPath).Output()
		if len(out) == 0 || strings.Contains(string(out), "No such device") {
			return devPath, i, nil
		}
	}
	return "", -1, fmt.Errorf("no available RFCOMM device slots")
}

// CheckRFCOMMInstalled verifies rfcomm binary is available
func CheckRFCOMMInstalled() error {
	_, err := exec.LookPath("rfcomm")
	if err != nil {
		return fmt.Errorf("rfcomm not found - install with: sudo apt install bluez")
	}
	return nil
}

// CheckPrivilegeHelper checks which privilege escalation method is available
func CheckPrivilegeHelper() string {
	// pkexec works from a desktop session
	if _, err := exec.LookPath("pkexec"); err == nil {
		return "pkexec"
	}
	if _, err := exec.LookPath("sudo"); err == nil {
		return "sudo"
	}
	return ""
}

func privileged(ctx context.Context, helper string, args ...string) *exec.Cmd {
	if helper == "pkexec" {
		return exec.CommandContext(ctx, "pkexec", args...)
	}
	return exec.CommandContext(ctx, "sudo", append([]string{"-n"}, args...)...)
}

// EstablishRFCOMM binds /dev/rfcommN to mac on channel and waits until the
// device node exists. The rfcomm process keeps running until Close.
func EstablishRFCOMM(ctx context.Context, mac string, channel int, statusCallback func(string)) (*RFCOMMConnection, error) {
	if err := CheckRFCOMMInstalled(); err != nil {
		return nil, err
	}

	devPath, devNum, err := FindAvailableRFCOMMDevice()
	if err != nil {
		return nil, err
	}

	helper := CheckPrivilegeHelper()
	if helper == "" {
		return nil, ErrPrivilegeRequired
	}

	procCtx, cancel := context.WithCancel(context.Background())
	conn := &RFCOMMConnection{
		DevicePath: devPath,
		MAC:        mac,
		cancel:     cancel,
	}

	cmd := privileged(procCtx, helper, "rfcomm", "connect", strconv.Itoa(devNum), mac, strconv.Itoa(channel))
	conn.cmd = cmd

	stderr, _ := cmd.StderrPipe()
	stdout, _ := cmd.StdoutPipe()

	status := func(msg string) {
		if statusCallback != nil {
			statusCallback(msg)
		}
	}
	status(fmt.Sprintf("Connecting to %s...", mac))

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start rfcomm: %w", err)
	}

	for _, r := range []io.Reader{stdout, stderr} {
		go func(r io.Reader) {
			scanner := bufio.NewScanner(r)
			for scanner.Scan() {
				status(scanner.Text())
			}
		}(r)
	}

	deadline := time.NewTimer(15 * time.Second)
	defer deadline.Stop()
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return nil, ErrConnectionCanceled
		case <-deadline.C:
			conn.Close()
			return nil, fmt.Errorf("timeout waiting for %s to appear", devPath)
		case <-tick.C:
			if _, err := os.Stat(devPath); err == nil {
				// node exists; give the link a moment
				time.Sleep(500 * time.Millisecond)
				status(fmt.Sprintf("Connected: %s", devPath))
				return conn, nil
			}
		}
	}
}

// Close terminates the RFCOMM connection
func (c *RFCOMMConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if c.DevicePath != "" {
		if helper := CheckPrivilegeHelper(); helper != "" {
			privileged(context.Background(), helper, "rfcomm", "release", c.DevicePath).Run()
		}
	}

	if c.cmd != nil && c.cmd.Process != nil {
		c.cmd.Process.Kill()
		c.cmd.Wait()
		c.cmd = nil
	}

	return nil
}
