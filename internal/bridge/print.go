package bridge

import (
	"context"
	"errors"
	"strings"

	"titantag/internal/imaging"
	"titantag/internal/label"
	"titantag/internal/printer"
)

// PreviewSize is the side of the QR preview image in pixels.
const PreviewSize = 256

// User-facing notifications.
const (
	msgMissingID          = "מזהה ממצא חסר"
	msgPermissionRequired = "נדרשת הרשאת Bluetooth כדי להדפיס"
	msgPermissionDenied   = "הרשאת Bluetooth נדחתה"
	msgNoPermission       = "אין הרשאת Bluetooth"
	msgUnavailable        = "Bluetooth לא זמין במכשיר"
	msgEnableBluetooth    = "נא להפעיל Bluetooth ולנסות שוב"
	msgNoPrinter          = "לא נמצאה מדפסת מזווגת בשם שמתחיל ב-"
	msgSent               = "נשלח להדפסה: "
	msgFailed             = "הדפסה נכשלה: "
	msgBusy               = "המדפסת עסוקה, נסו שוב בעוד רגע"
)

type printJob struct {
	ctx   context.Context
	id    string
	reply chan printOutcome // nil: report with a notification
}

type printOutcome struct {
	res printer.Result
	err error
}

// RenderQRPreview returns a PNG data URL of a QR code for text, or "" when
// text is blank or cannot be encoded.
func (b *Bridge) RenderQRPreview(text string) string {
	m, err := b.preview(text)
	if err != nil {
		b.log.Debug("qr preview failed", "error", err)
		return ""
	}
	url, err := m.DataURL()
	if err != nil {
		b.log.Debug("qr preview failed", "error", err)
		return ""
	}
	return url
}

// PreviewPNG returns the QR preview for text as PNG bytes.
func (b *Bridge) PreviewPNG(text string) ([]byte, error) {
	m, err := b.preview(text)
	if err != nil {
		return nil, err
	}
	return m.PNG()
}

func (b *Bridge) preview(text string) (*imaging.Bitmap, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, label.ErrInvalidInput
	}
	m, err := b.compositor.Provider.Matrix(text, PreviewSize)
	if err != nil {
		return nil, &label.EncodingError{Text: text, Err: err}
	}
	return m, nil
}

// PrintLabel prints a label for the find id in the background. The
// outcome is reported as a notification.
func (b *Bridge) PrintLabel(id string) {
	id = strings.TrimSpace(id)
	b.post(func() {
		if id == "" {
			b.notify(msgMissingID)
			return
		}
		if !b.perms.granted(CapabilityBluetooth) {
			if b.pending != "" && b.pending != id {
				b.log.Info("pending print replaced", "dropped", b.pending, "id", id)
			}
			b.pending = id
			b.notify(msgPermissionRequired)
			b.requestPermission(CapabilityBluetooth)
			return
		}
		b.submit(id)
	})
}

// PrintLabelSync prints a label for id and waits for the result.
func (b *Bridge) PrintLabelSync(ctx context.Context, id string) (printer.Result, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return printer.Result{}, label.ErrInvalidInput
	}
	if !b.perms.granted(CapabilityBluetooth) {
		return printer.Result{}, printer.ErrPermissionDenied
	}

	reply := make(chan printOutcome, 1)
	if err := b.enqueue(printJob{ctx: ctx, id: id, reply: reply}); err != nil {
		return printer.Result{}, err
	}
	select {
	case out := <-reply:
		return out.res, out.err
	case <-ctx.Done():
		return printer.Result{}, ctx.Err()
	}
}

// submit must run on the dispatcher.
func (b *Bridge) submit(id string) {
	if err := b.enqueue(printJob{ctx: b.ctx, id: id}); err != nil {
		b.log.Warn("print not queued", "id", id, "error", err)
		b.notify(msgBusy)
	}
}

func (b *Bridge) enqueue(job printJob) error {
	if b.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case b.queue <- job:
		b.log.Debug("print queued", "id", job.id, "depth", len(b.queue))
		return nil
	default:
		return ErrBusy
	}
}

func (b *Bridge) worker() {
	defer close(b.workerDone)
	for {
		select {
		case <-b.ctx.Done():
			for {
				select {
				case job := <-b.queue:
					b.finish(job, printer.Result{}, ErrClosed)
				default:
					return
				}
			}
		case job := <-b.queue:
			if err := job.ctx.Err(); err != nil {
				b.finish(job, printer.Result{}, err)
				continue
			}
			res, err := b.print(job.ctx, job.id)
			b.finish(job, res, err)
		}
	}
}

func (b *Bridge) print(ctx context.Context, id string) (printer.Result, error) {
	canvas, err := b.compositor.Composite(id)
	if err != nil {
		return printer.Result{}, err
	}
	if b.printer == nil {
		return printer.Result{}, printer.ErrAdapterUnavailable
	}
	ctx, cancel := mergeCancel(ctx, b.ctx)
	defer cancel()
	return b.printer.Print(ctx, canvas)
}

func (b *Bridge) finish(job printJob, res printer.Result, err error) {
	if err != nil {
		b.log.Warn("print failed", "id", job.id, "error", err)
	} else {
		b.log.Info("print done", "id", job.id, "device", res.Device.Name)
	}
	if job.reply != nil {
		job.reply <- printOutcome{res: res, err: err}
		return
	}
	msg := b.outcomeMessage(res, err)
	b.post(func() { b.notify(msg) })
}

func (b *Bridge) outcomeMessage(res printer.Result, err error) string {
	var cerr *printer.ConnectionError
	switch {
	case err == nil:
		return msgSent + res.Device.Name
	case errors.Is(err, label.ErrInvalidInput):
		return msgMissingID
	case errors.Is(err, printer.ErrPermissionDenied):
		return msgNoPermission
	case errors.Is(err, printer.ErrAdapterUnavailable):
		return msgUnavailable
	case errors.Is(err, printer.ErrAdapterDisabled):
		return msgEnableBluetooth
	case errors.Is(err, printer.ErrDeviceNotFound):
		return msgNoPrinter + b.prefix
	case errors.As(err, &cerr):
		return msgFailed + cerr.Err.Error()
	default:
		return msgFailed + err.Error()
	}
}

// mergeCancel returns a context done when either parent is.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
