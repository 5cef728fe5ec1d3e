package label

import (
	"strings"

	"titantag/internal/imaging"
)

const (
	captionGapDots  = 8
	minCaptionDots  = 24
	captionFontSize = 8
)

// Compositor renders label text as a QR code placed on a canvas the size of
// the physical label.
type Compositor struct {
	Spec     Spec
	Provider MatrixProvider

	// Caption prints the text itself in the band below the QR when the
	// band is tall enough. The QR area is never affected.
	Caption bool
}

// NewCompositor returns a compositor for spec. A nil provider selects the
// go-qrcode provider.
func NewCompositor(spec Spec, provider MatrixProvider) *Compositor {
	if provider == nil {
		provider = NewQRCodeProvider()
	}
	return &Compositor{Spec: spec, Provider: provider}
}

// Composite returns an all-white WidthDots x HeightDots canvas with the QR
// for text copied in, horizontally centred and top-aligned at the margin.
func (c *Compositor) Composite(text string) (*imaging.Bitmap, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrInvalidInput
	}

	side := c.Spec.QRSideDots()
	qr, err := c.Provider.Matrix(text, side)
	if err != nil {
		return nil, &EncodingError{Text: text, Err: err}
	}

	canvas := imaging.NewBitmap(c.Spec.WidthDots(), c.Spec.HeightDots())
	x, y := c.Spec.QROrigin(qr.Width)
	canvas.Blit(qr, x, y)

	if c.Caption {
		if err := c.drawCaption(canvas, text, y+qr.Height); err != nil {
			return nil, err
		}
	}

	return canvas, nil
}

func (c *Compositor) drawCaption(canvas *imaging.Bitmap, text string, qrBottom int) error {
	top := qrBottom + captionGapDots
	height := canvas.Height - c.Spec.MarginDots - top
	width := canvas.Width - 2*c.Spec.MarginDots
	if height < minCaptionDots || width <= 0 {
		return nil
	}

	caption, err := imaging.RenderCaption(text, width, height, imaging.CaptionOptions{
		FontSize:      captionFontSize,
		WordBreakOnly: true,
	})
	if err != nil {
		return err
	}
	canvas.Blit(caption, c.Spec.MarginDots, top)
	return nil
}
