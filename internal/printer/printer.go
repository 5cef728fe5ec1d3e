// Package printer drives a bonded SK58-family Bluetooth label printer.
package printer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"titantag/internal/escpos"
	"titantag/internal/imaging"
)

// DefaultNamePrefix selects the printer among bonded devices.
const DefaultNamePrefix = "SK58"

// PermissionFunc reports whether the process may connect to paired devices.
type PermissionFunc func() bool

// State is a step of one print session.
type State int

const (
	StateIdle State = iota
	StatePermissionCheck
	StateAdapterCheck
	StateDeviceDiscovery
	StateConnecting
	StateTransmitting
	StateClosed
)

var stateNames = [...]string{
	"idle",
	"permission_check",
	"adapter_check",
	"device_discovery",
	"connecting",
	"transmitting",
	"closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Result describes a successful print.
type Result struct {
	Device BluetoothDevice
	Bytes  int
}

// Config configures a Printer.
type Config struct {
	NamePrefix string
	GapDots    int
	Permitted  PermissionFunc
	Log        *slog.Logger

	// OnState, if set, is called on every session transition.
	OnState func(State)
}

// Printer prints label canvases on the first bonded device matching a name prefix.
// Each call to Print is an independent session; nothing is kept open between prints.
type Printer struct {
	adapter Adapter
	cfg     Config
}

// New creates a Printer on top of adapter.
func New(adapter Adapter, cfg Config) *Printer {
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = DefaultNamePrefix
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Permitted == nil {
		cfg.Permitted = func() bool { return true }
	}
	return &Printer{adapter: adapter, cfg: cfg}
}

// NamePrefix returns the device name prefix used for selection.
func (p *Printer) NamePrefix() string {
	return p.cfg.NamePrefix
}

// Devices lists bonded devices without starting a session.
func (p *Printer) Devices(ctx context.Context) ([]BluetoothDevice, error) {
	return p.adapter.BondedDevices(ctx)
}

type session struct {
	p     *Printer
	log   *slog.Logger
	state State
}

func (s *session) enter(st State) {
	s.state = st
	s.log.Debug("print session", "state", st.String())
	if s.p.cfg.OnState != nil {
		s.p.cfg.OnState(st)
	}
}

// Print runs one complete session for canvas. The connection, if opened,
// is always closed before Print returns.
func (p *Printer) Print(ctx context.Context, canvas *imaging.Bitmap) (Result, error) {
	s := &session{p: p, log: p.cfg.Log, state: StateIdle}
	s.enter(StateIdle)
	defer s.enter(StateClosed)
	return s.run(ctx, canvas)
}

func (s *session) run(ctx context.Context, canvas *imaging.Bitmap) (Result, error) {
	s.enter(StatePermissionCheck)
	if !s.p.cfg.Permitted() {
		return Result{}, ErrPermissionDenied
	}

	s.enter(StateAdapterCheck)
	state, err := s.p.adapter.State(ctx)
	if err != nil {
		s.log.Debug("adapter state query failed", "error", err)
		return Result{}, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}
	switch state {
	case AdapterUnavailable:
		return Result{}, ErrAdapterUnavailable
	case AdapterOff:
		return Result{}, ErrAdapterDisabled
	}

	s.enter(StateDeviceDiscovery)
	devices, err := s.p.adapter.BondedDevices(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: listing bonded devices: %v", ErrDeviceNotFound, err)
	}
	dev, ok := FindByPrefix(devices, s.p.cfg.NamePrefix)
	if !ok {
		return Result{}, fmt.Errorf("%w: no name starts with %q", ErrDeviceNotFound, s.p.cfg.NamePrefix)
	}
	if err := s.p.adapter.CancelDiscovery(ctx); err != nil {
		s.log.Debug("cancel discovery", "error", err)
	}

	s.enter(StateConnecting)
	s.log.Info("connecting to printer", "device", dev.Name, "mac", dev.MAC)
	conn, err := s.p.adapter.Dial(ctx, dev)
	if err != nil {
		var cerr *ConnectionError
		if errors.As(err, &cerr) {
			return Result{}, err
		}
		return Result{}, &ConnectionError{Device: dev.Name, Op: "connect", Err: err}
	}
	defer func() {
		if err := conn.Close(); err != nil {
			s.log.Debug("close printer connection", "device", dev.Name, "error", err)
		}
	}()

	s.enter(StateTransmitting)
	raster, err := escpos.EncodeRaster(canvas)
	if err != nil {
		return Result{}, err
	}
	job := escpos.LabelJob(raster, s.p.cfg.GapDots)
	if _, err := conn.Write(job); err != nil {
		return Result{}, &ConnectionError{Device: dev.Name, Op: "write", Err: err}
	}
	if err := conn.Flush(); err != nil {
		return Result{}, &ConnectionError{Device: dev.Name, Op: "flush", Err: err}
	}

	s.log.Info("label sent", "device", dev.Name, "bytes", len(job))
	return Result{Device: dev, Bytes: len(job)}, nil
}
