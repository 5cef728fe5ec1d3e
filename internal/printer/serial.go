package printer

import (
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is used for rfcomm ttys and COM ports.
const DefaultBaudRate = 115200

var ErrNotConnected = errors.New("printer not connected")

// SerialConn is a Conn over a serial device: a bound /dev/rfcommN, a USB
// adapter or a Bluetooth COM port.
type SerialConn struct {
	port     serial.Port
	portName string
	onClose  func() error
}

// OpenSerial opens portName at baud, 8N1.
func OpenSerial(portName string, baud int) (*SerialConn, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", portName, err)
	}

	port.SetReadTimeout(3 * time.Second)

	return &SerialConn{port: port, portName: portName}, nil
}

func (c *SerialConn) Write(p []byte) (int, error) {
	if c.port == nil {
		return 0, ErrNotConnected
	}
	return c.port.Write(p)
}

// Flush waits until the output buffer has been transmitted.
func (c *SerialConn) Flush() error {
	if c.port == nil {
		return ErrNotConnected
	}
	return c.port.Drain()
}

// Close closes the port and releases whatever bound it.
func (c *SerialConn) Close() error {
	var err error
	if c.port != nil {
		err = c.port.Close()
		c.port = nil
	}
	if c.onClose != nil {
		if cerr := c.onClose(); err == nil {
			err = cerr
		}
		c.onClose = nil
	}
	return err
}

// PortName returns the current port name
func (c *SerialConn) PortName() string {
	return c.portName
}

// ListSerialPorts returns the serial ports the OS reports.
func ListSerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
