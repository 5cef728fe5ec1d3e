package label

import (
	"fmt"

	"github.com/skip2/go-qrcode"

	"titantag/internal/imaging"
)

// MatrixProvider turns text into a square QR dot matrix of exactly side x side dots.
type MatrixProvider interface {
	Matrix(text string, side int) (*imaging.Bitmap, error)
}

// QRCodeProvider generates medium error-correction QR symbols without a
// quiet zone; the label margin provides it instead.
type QRCodeProvider struct {
	Level qrcode.RecoveryLevel
}

// NewQRCodeProvider returns a provider using medium error correction.
func NewQRCodeProvider() *QRCodeProvider {
	return &QRCodeProvider{Level: qrcode.Medium}
}

// Matrix scales every module to the same whole number of dots and centres
// the symbol, so the returned bitmap is exactly side x side. Symbols with
// more modules than side dots cannot be drawn and fail.
func (p *QRCodeProvider) Matrix(text string, side int) (*imaging.Bitmap, error) {
	q, err := qrcode.New(text, p.Level)
	if err != nil {
		return nil, err
	}
	q.DisableBorder = true

	modules := q.Bitmap()
	n := len(modules)
	if n == 0 {
		return nil, fmt.Errorf("empty QR symbol")
	}
	if n > side {
		return nil, fmt.Errorf("QR symbol of %d modules does not fit in %d dots", n, side)
	}

	scale := side / n
	pad := (side - n*scale) / 2

	m := imaging.NewBitmap(side, side)
	for my, row := range modules {
		for mx, set := range row {
			if !set {
				continue
			}
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					m.Set(pad+mx*scale+dx, pad+my*scale+dy, true)
				}
			}
		}
	}
	return m, nil
}
