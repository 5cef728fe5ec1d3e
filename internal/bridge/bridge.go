// Package bridge implements the operations the web front end calls: label
// preview and printing, speech output and Hebrew transcription.
//
// Calls may come from any goroutine. State changes and every notification,
// script callback and permission prompt run on a single dispatcher goroutine,
// and prints run one at a time on a single worker.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"titantag/internal/imaging"
	"titantag/internal/label"
	"titantag/internal/printer"
	"titantag/internal/speech"
)

// Capabilities that need the user's consent.
const (
	CapabilityBluetooth  = "bluetooth_connect"
	CapabilityMicrophone = "record_audio"
)

var (
	ErrBusy   = errors.New("printer busy")
	ErrClosed = errors.New("bridge closed")
)

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(message string)
}

// ScriptHost invokes a named function in the front end.
type ScriptHost interface {
	Call(callback string, args ...any)
}

// Prompter asks the user for a capability. The answer comes back through
// Bridge.OnPermissionResult.
type Prompter interface {
	RequestPermission(capability string)
}

// LabelPrinter prints a composed label canvas.
type LabelPrinter interface {
	Print(ctx context.Context, canvas *imaging.Bitmap) (printer.Result, error)
}

// Options wires a Bridge.
type Options struct {
	Printer     LabelPrinter
	Compositor  *label.Compositor
	Synthesizer speech.Synthesizer
	Recognizer  speech.Recognizer
	Notifier    Notifier
	Script      ScriptHost
	Prompter    Prompter

	NamePrefix     string // for the "no paired printer" message
	QueueSize      int
	PermissionMode PermissionMode
	Log            *slog.Logger
}

// Bridge is the native side of the front end.
type Bridge struct {
	printer    LabelPrinter
	compositor *label.Compositor
	synth      speech.Synthesizer
	recognizer speech.Recognizer
	notifier   Notifier
	script     ScriptHost
	prompter   Prompter
	prefix     string
	log        *slog.Logger

	perms *permissions
	disp  *dispatcher

	ctx        context.Context
	cancel     context.CancelFunc
	queue      chan printJob
	workerDone chan struct{}
	closeOnce  sync.Once

	// dispatcher-owned
	pending        string
	speechCallback string
	speechPending  bool
	listening      bool
}

// New creates a Bridge and starts its dispatcher and print worker. ctx
// bounds queued prints and recognition sessions; Close stops both.
func New(ctx context.Context, opts Options) *Bridge {
	if opts.QueueSize < 1 {
		opts.QueueSize = 4
	}
	if opts.NamePrefix == "" {
		opts.NamePrefix = printer.DefaultNamePrefix
	}
	if opts.Compositor == nil {
		opts.Compositor = label.NewCompositor(label.Default, nil)
	}
	if opts.Synthesizer == nil {
		opts.Synthesizer = speech.NoSynthesizer{}
	}
	if opts.Recognizer == nil {
		opts.Recognizer = speech.NoRecognizer{}
	}
	if opts.Notifier == nil {
		opts.Notifier = discard{}
	}
	if opts.Script == nil {
		opts.Script = discard{}
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	b := &Bridge{
		printer:    opts.Printer,
		compositor: opts.Compositor,
		synth:      opts.Synthesizer,
		recognizer: opts.Recognizer,
		notifier:   opts.Notifier,
		script:     opts.Script,
		prompter:   opts.Prompter,
		prefix:     opts.NamePrefix,
		log:        opts.Log,
		perms:      newPermissions(opts.PermissionMode),
		disp:       newDispatcher(),
		ctx:        ctx,
		cancel:     cancel,
		queue:      make(chan printJob, opts.QueueSize),
		workerDone: make(chan struct{}),
	}
	go b.worker()
	return b
}

// Close cancels queued prints and any recognition, then drains the
// dispatcher. It is safe to call more than once.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.cancel()
		<-b.workerDone
		b.recognizer.Cancel()
		b.synth.Stop()
		b.disp.close()
	})
}

// PermissionGranted reports the current state of capability.
func (b *Bridge) PermissionGranted(capability string) bool {
	return b.perms.granted(capability)
}

// QueueLen returns the number of prints waiting for the worker.
func (b *Bridge) QueueLen() int {
	return len(b.queue)
}

func (b *Bridge) post(f func()) {
	if !b.disp.post(f) {
		b.log.Debug("dispatcher closed, dropping event")
	}
}

// notify must run on the dispatcher.
func (b *Bridge) notify(msg string) {
	b.log.Info("notification", "message", msg)
	b.notifier.Notify(msg)
}

type discard struct{}

func (discard) Notify(string)            {}
func (discard) Call(string, ...any)      {}
func (discard) RequestPermission(string) {}
