package bridge

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"titantag/internal/imaging"
	"titantag/internal/label"
	"titantag/internal/printer"
	"titantag/internal/speech"
)

type fakePrinter struct {
	mu      sync.Mutex
	printed []*imaging.Bitmap
	err     error
	started chan struct{}
	release chan struct{}
}

func (p *fakePrinter) Print(ctx context.Context, canvas *imaging.Bitmap) (printer.Result, error) {
	if p.started != nil {
		p.started <- struct{}{}
	}
	if p.release != nil {
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printed = append(p.printed, canvas)
	if p.err != nil {
		return printer.Result{}, p.err
	}
	return printer.Result{Device: printer.BluetoothDevice{Name: "SK58-2A1F", MAC: "DC:0D:30:A1:B2:C3"}, Bytes: 10813}, nil
}

func (p *fakePrinter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.printed)
}

type call struct {
	name string
	args []any
}

// host records notifications, script calls and permission prompts.
type host struct {
	notes   chan string
	calls   chan call
	prompts chan string
}

func newHost() *host {
	return &host{
		notes:   make(chan string, 16),
		calls:   make(chan call, 16),
		prompts: make(chan string, 16),
	}
}

func (h *host) Notify(msg string)                   { h.notes <- msg }
func (h *host) Call(name string, args ...any)       { h.calls <- call{name, args} }
func (h *host) RequestPermission(capability string) { h.prompts <- capability }

func next[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		var zero T
		t.Fatalf("timed out waiting for event")
		return zero
	}
}

func none[T any](t *testing.T, ch chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected event %v", v)
	case <-time.After(100 * time.Millisecond):
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBridge(t *testing.T, p LabelPrinter, h *host, mut func(*Options)) *Bridge {
	t.Helper()
	opts := Options{
		Printer:  p,
		Notifier: h,
		Script:   h,
		Prompter: h,
		Log:      quietLogger(),
	}
	if mut != nil {
		mut(&opts)
	}
	b := New(context.Background(), opts)
	t.Cleanup(b.Close)
	return b
}

func TestPrintLabelSuccess(t *testing.T) {
	p := &fakePrinter{}
	h := newHost()
	b := newTestBridge(t, p, h, nil)

	b.PrintLabel("  FIND-042  ")
	if got := next(t, h.notes); got != msgSent+"SK58-2A1F" {
		t.Errorf("notification = %q", got)
	}
	if p.count() != 1 {
		t.Fatalf("printed %d labels, want 1", p.count())
	}
	canvas := p.printed[0]
	if canvas.Width != 360 || canvas.Height != 240 {
		t.Errorf("canvas = %dx%d, want 360x240", canvas.Width, canvas.Height)
	}
	want, _ := label.NewCompositor(label.Default, nil).Composite("FIND-042")
	if !canvas.Equal(want) {
		t.Errorf("printed canvas is not the composed label for the trimmed id")
	}
}

func TestPrintLabelMissingID(t *testing.T) {
	p := &fakePrinter{}
	h := newHost()
	b := newTestBridge(t, p, h, nil)

	b.PrintLabel("   ")
	if got := next(t, h.notes); got != msgMissingID {
		t.Errorf("notification = %q, want missing id", got)
	}
	b.disp.barrier()
	if p.count() != 0 {
		t.Errorf("printer called for an empty id")
	}
}

func TestPrintLabelOutcomeMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{printer.ErrPermissionDenied, msgNoPermission},
		{printer.ErrAdapterUnavailable, msgUnavailable},
		{fmt.Errorf("%w: boom", printer.ErrAdapterUnavailable), msgUnavailable},
		{printer.ErrAdapterDisabled, msgEnableBluetooth},
		{fmt.Errorf("%w: none", printer.ErrDeviceNotFound), msgNoPrinter + "SK58"},
		{&printer.ConnectionError{Device: "SK58", Op: "connect", Err: errors.New("host is down")}, msgFailed + "host is down"},
		{errors.New("odd"), msgFailed + "odd"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			h := newHost()
			b := newTestBridge(t, &fakePrinter{err: tt.err}, h, nil)

			b.PrintLabel("FIND-042")
			if got := next(t, h.notes); got != tt.want {
				t.Errorf("notification = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrintLabelPermissionGranted(t *testing.T) {
	p := &fakePrinter{}
	h := newHost()
	b := newTestBridge(t, p, h, func(o *Options) { o.PermissionMode = PermissionPrompt })

	b.PrintLabel("FIND-001")
	if got := next(t, h.notes); got != msgPermissionRequired {
		t.Errorf("notification = %q, want permission required", got)
	}
	if got := next(t, h.prompts); got != CapabilityBluetooth {
		t.Errorf("prompted for %q", got)
	}

	// A second request replaces the parked one.
	b.PrintLabel("FIND-002")
	next(t, h.notes)
	next(t, h.prompts)

	b.disp.barrier()
	if b.pending != "FIND-002" {
		t.Errorf("pending = %q, want FIND-002", b.pending)
	}
	if p.count() != 0 {
		t.Fatalf("printed before permission was granted")
	}

	b.OnPermissionResult(CapabilityBluetooth, true)
	if got := next(t, h.notes); got != msgSent+"SK58-2A1F" {
		t.Errorf("notification = %q", got)
	}
	none(t, h.notes)
	if p.count() != 1 {
		t.Fatalf("printed %d labels, want 1", p.count())
	}
	want, _ := label.NewCompositor(label.Default, nil).Composite("FIND-002")
	if !p.printed[0].Equal(want) {
		t.Errorf("printed label is not for the latest id")
	}

	// Granted now: prints go straight through.
	b.PrintLabel("FIND-003")
	if got := next(t, h.notes); got != msgSent+"SK58-2A1F" {
		t.Errorf("notification = %q", got)
	}
	none(t, h.prompts)
}

func TestPrintLabelPermissionDenied(t *testing.T) {
	p := &fakePrinter{}
	h := newHost()
	b := newTestBridge(t, p, h, func(o *Options) { o.PermissionMode = PermissionPrompt })

	b.PrintLabel("FIND-001")
	next(t, h.notes)
	next(t, h.prompts)

	b.OnPermissionResult(CapabilityBluetooth, false)
	if got := next(t, h.notes); got != msgPermissionDenied {
		t.Errorf("notification = %q, want denied", got)
	}
	b.disp.barrier()
	if b.pending != "" || p.count() != 0 {
		t.Errorf("pending = %q, printed = %d after denial", b.pending, p.count())
	}
}

func TestPrintLabelDenyMode(t *testing.T) {
	p := &fakePrinter{}
	h := newHost()
	b := newTestBridge(t, p, h, func(o *Options) { o.PermissionMode = PermissionDeny })

	b.PrintLabel("FIND-001")
	if got := next(t, h.notes); got != msgPermissionRequired {
		t.Errorf("notification = %q", got)
	}
	if got := next(t, h.notes); got != msgPermissionDenied {
		t.Errorf("notification = %q", got)
	}
	none(t, h.prompts)

	if _, err := b.PrintLabelSync(context.Background(), "FIND-001"); !errors.Is(err, printer.ErrPermissionDenied) {
		t.Errorf("PrintLabelSync() error = %v, want ErrPermissionDenied", err)
	}
}

func TestPrintLabelBusy(t *testing.T) {
	p := &fakePrinter{started: make(chan struct{}, 4), release: make(chan struct{})}
	h := newHost()
	b := newTestBridge(t, p, h, func(o *Options) { o.QueueSize = 1 })

	b.PrintLabel("FIND-001")
	next(t, p.started) // worker is busy with the first print

	b.PrintLabel("FIND-002") // fills the queue
	b.PrintLabel("FIND-003") // rejected
	if got := next(t, h.notes); got != msgBusy {
		t.Errorf("notification = %q, want busy", got)
	}
	if _, err := b.PrintLabelSync(context.Background(), "FIND-004"); !errors.Is(err, ErrBusy) {
		t.Errorf("PrintLabelSync() error = %v, want ErrBusy", err)
	}

	close(p.release)
	next(t, h.notes)
	next(t, h.notes)
	if p.count() != 2 {
		t.Errorf("printed %d labels, want 2", p.count())
	}
}

func TestPrintLabelSync(t *testing.T) {
	p := &fakePrinter{}
	b := newTestBridge(t, p, newHost(), nil)

	res, err := b.PrintLabelSync(context.Background(), "FIND-042")
	if err != nil {
		t.Fatalf("PrintLabelSync() error = %v", err)
	}
	if res.Device.Name != "SK58-2A1F" {
		t.Errorf("device = %q", res.Device.Name)
	}

	if _, err := b.PrintLabelSync(context.Background(), " "); !errors.Is(err, label.ErrInvalidInput) {
		t.Errorf("empty id error = %v, want ErrInvalidInput", err)
	}

	var encErr *label.EncodingError
	if _, err := b.PrintLabelSync(context.Background(), strings.Repeat("x", 5000)); !errors.As(err, &encErr) {
		t.Errorf("oversized id error = %v, want *label.EncodingError", err)
	}
}

func TestPrintAfterClose(t *testing.T) {
	h := newHost()
	b := New(context.Background(), Options{Printer: &fakePrinter{}, Notifier: h, Log: quietLogger()})
	b.Close()
	b.Close()

	if _, err := b.PrintLabelSync(context.Background(), "FIND-042"); !errors.Is(err, ErrClosed) {
		t.Errorf("PrintLabelSync() after Close error = %v, want ErrClosed", err)
	}
	b.PrintLabel("FIND-042")
	none(t, h.notes)
}

func TestRenderQRPreview(t *testing.T) {
	b := newTestBridge(t, &fakePrinter{}, newHost(), nil)

	if got := b.RenderQRPreview("  "); got != "" {
		t.Errorf("blank text preview = %q, want empty", got)
	}
	if got := b.RenderQRPreview(strings.Repeat("x", 5000)); got != "" {
		t.Errorf("oversized text preview not empty")
	}

	url := b.RenderQRPreview("FIND-042")
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("preview = %q", url)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if bnd := img.Bounds(); bnd.Dx() != PreviewSize || bnd.Dy() != PreviewSize {
		t.Errorf("preview = %dx%d, want %dx%d", bnd.Dx(), bnd.Dy(), PreviewSize, PreviewSize)
	}
	// No quiet zone: the finder pattern starts at the corner.
	if !imaging.IsMark(img.At(5, 5)) {
		t.Errorf("expected a dark module near the top-left corner")
	}
}

// fakeSynth finishes or fails every utterance right away.
type fakeSynth struct {
	fail     bool
	startErr error
	spoken   chan string
}

func (s *fakeSynth) Available() bool { return true }

func (s *fakeSynth) Speak(id, text string, l *speech.UtteranceListener) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.spoken <- text
	if l != nil {
		if s.fail {
			go l.OnError(id, errors.New("audio device"))
		} else {
			go l.OnDone(id)
		}
	}
	return nil
}

func (s *fakeSynth) Stop() error { return nil }

func TestSpeak(t *testing.T) {
	s := &fakeSynth{spoken: make(chan string, 4)}
	h := newHost()
	b := newTestBridge(t, &fakePrinter{}, h, func(o *Options) { o.Synthesizer = s })

	if !b.IsSpeechAvailable() {
		t.Errorf("IsSpeechAvailable() = false")
	}

	b.Speak("שלום")
	if got := next(t, s.spoken); got != "שלום" {
		t.Errorf("spoken %q", got)
	}
	none(t, h.calls)

	b.SpeakWithCallback("תודה", "onSpoken")
	next(t, s.spoken)
	if c := next(t, h.calls); c.name != "onSpoken" || len(c.args) != 0 {
		t.Errorf("callback = %+v", c)
	}
	none(t, h.calls)
}

func TestSpeakWithCallbackOnError(t *testing.T) {
	for _, s := range []*fakeSynth{
		{fail: true, spoken: make(chan string, 4)},
		{startErr: errors.New("no espeak"), spoken: make(chan string, 4)},
	} {
		h := newHost()
		b := newTestBridge(t, &fakePrinter{}, h, func(o *Options) { o.Synthesizer = s })

		b.SpeakWithCallback("תודה", "onSpoken")
		if c := next(t, h.calls); c.name != "onSpoken" {
			t.Errorf("callback = %+v", c)
		}
		none(t, h.calls)
	}
}

func TestSpeechUnavailable(t *testing.T) {
	b := newTestBridge(t, &fakePrinter{}, newHost(), nil)
	if b.IsSpeechAvailable() {
		t.Errorf("IsSpeechAvailable() = true without a synthesizer")
	}
}

// fakeRecognizer hands its listener to the test.
type fakeRecognizer struct {
	available bool
	startErr  error
	started   chan speech.RecognitionListener
	stopped   chan struct{}
	cancelled chan struct{}
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{
		available: true,
		started:   make(chan speech.RecognitionListener, 4),
		stopped:   make(chan struct{}, 4),
		cancelled: make(chan struct{}, 4),
	}
}

func (r *fakeRecognizer) Available() bool { return r.available }

func (r *fakeRecognizer) Start(_ context.Context, l speech.RecognitionListener) error {
	if r.startErr != nil {
		return r.startErr
	}
	r.started <- l
	return nil
}

func (r *fakeRecognizer) Stop()   { r.stopped <- struct{}{} }
func (r *fakeRecognizer) Cancel() { r.cancelled <- struct{}{} }

func wantCall(t *testing.T, h *host, text any, isFinal bool, errCode any) {
	t.Helper()
	c := next(t, h.calls)
	if c.name != "onSpeech" || len(c.args) != 3 {
		t.Fatalf("callback = %+v", c)
	}
	if c.args[0] != text || c.args[1] != isFinal || c.args[2] != errCode {
		t.Errorf("callback args = %v, want [%v %v %v]", c.args, text, isFinal, errCode)
	}
}

func TestTranscription(t *testing.T) {
	r := newFakeRecognizer()
	h := newHost()
	b := newTestBridge(t, &fakePrinter{}, h, func(o *Options) { o.Recognizer = r })

	b.StartTranscription("onSpeech")
	l := next(t, r.started)

	l.OnPartial("שלו")
	wantCall(t, h, "שלו", false, nil)
	l.OnFinal("שלום")
	wantCall(t, h, "שלום", true, nil)

	b.StartTranscription("onSpeech")
	l = next(t, r.started)
	l.OnError(speech.ErrorNoMatch)
	wantCall(t, h, nil, true, "error:7")

	b.StartTranscription("onSpeech")
	next(t, r.started)
	b.StopTranscription()
	next(t, r.stopped)
}

func TestTranscriptionRestartCancelsActive(t *testing.T) {
	r := newFakeRecognizer()
	b := newTestBridge(t, &fakePrinter{}, newHost(), func(o *Options) { o.Recognizer = r })

	b.StartTranscription("onSpeech")
	next(t, r.started)
	b.StartTranscription("onSpeech")
	next(t, r.cancelled)
	next(t, r.started)
}

func TestTranscriptionFailures(t *testing.T) {
	t.Run("not available", func(t *testing.T) {
		r := newFakeRecognizer()
		r.available = false
		h := newHost()
		b := newTestBridge(t, &fakePrinter{}, h, func(o *Options) { o.Recognizer = r })

		b.StartTranscription("onSpeech")
		wantCall(t, h, nil, true, "not_available")
	})

	t.Run("start failed", func(t *testing.T) {
		r := newFakeRecognizer()
		r.startErr = errors.New("no microphone")
		h := newHost()
		b := newTestBridge(t, &fakePrinter{}, h, func(o *Options) { o.Recognizer = r })

		b.StartTranscription("onSpeech")
		wantCall(t, h, nil, true, "start_failed")
	})

	t.Run("no callback name", func(t *testing.T) {
		r := newFakeRecognizer()
		r.available = false
		h := newHost()
		b := newTestBridge(t, &fakePrinter{}, h, func(o *Options) { o.Recognizer = r })

		b.StartTranscription("")
		none(t, h.calls)
	})
}

func TestTranscriptionPermission(t *testing.T) {
	r := newFakeRecognizer()
	h := newHost()
	b := newTestBridge(t, &fakePrinter{}, h, func(o *Options) {
		o.Recognizer = r
		o.PermissionMode = PermissionPrompt
	})

	b.StartTranscription("onSpeech")
	if got := next(t, h.prompts); got != CapabilityMicrophone {
		t.Fatalf("prompted for %q", got)
	}
	none(t, r.started)

	b.OnPermissionResult(CapabilityMicrophone, true)
	next(t, r.started)

	// Granted without a waiting start.
	b.OnPermissionResult(CapabilityMicrophone, true)
	none(t, r.started)
	none(t, h.calls)
}

func TestStopTranscriptionDropsWaitingStart(t *testing.T) {
	r := newFakeRecognizer()
	h := newHost()
	b := newTestBridge(t, &fakePrinter{}, h, func(o *Options) {
		o.Recognizer = r
		o.PermissionMode = PermissionPrompt
	})

	b.StartTranscription("onSpeech")
	next(t, h.prompts)
	b.StopTranscription()
	next(t, r.stopped)

	b.disp.barrier()
	if b.speechPending {
		t.Errorf("start still waiting on the permission after StopTranscription")
	}

	b.OnPermissionResult(CapabilityMicrophone, true)
	none(t, r.started)
	none(t, h.calls)
}

func TestTranscriptionPermissionDenied(t *testing.T) {
	r := newFakeRecognizer()
	h := newHost()
	b := newTestBridge(t, &fakePrinter{}, h, func(o *Options) {
		o.Recognizer = r
		o.PermissionMode = PermissionPrompt
	})

	b.StartTranscription("onSpeech")
	next(t, h.prompts)
	b.OnPermissionResult(CapabilityMicrophone, false)
	wantCall(t, h, nil, true, "permission_denied")
	none(t, r.started)
}
