// Package label composes QR labels onto a monochrome canvas sized to the
// physical label stock.
package label

// MinQRDots is the smallest QR side that still scans reliably.
const MinQRDots = 40

// Spec describes the physical label stock and the QR placed on it.
type Spec struct {
	HeightMM   int // feed direction
	WidthMM    int // across the print head
	DotsPerMM  int
	QRSizeMM   int
	MarginDots int
	GapMM      int // blank feed between consecutive labels
}

// Default is the 45 mm x 30 mm stock used with SK58 printers at 203 dpi.
var Default = Spec{
	HeightMM:   30,
	WidthMM:    45,
	DotsPerMM:  8,
	QRSizeMM:   20,
	MarginDots: 0,
	GapMM:      15,
}

func (s Spec) WidthDots() int  { return s.WidthMM * s.DotsPerMM }
func (s Spec) HeightDots() int { return s.HeightMM * s.DotsPerMM }
func (s Spec) GapDots() int    { return s.GapMM * s.DotsPerMM }

// MaxQRDots is the largest square that fits inside the margins.
func (s Spec) MaxQRDots() int {
	return min(s.WidthDots()-2*s.MarginDots, s.HeightDots()-2*s.MarginDots)
}

// QRSideDots is the requested QR size clamped to [MinQRDots, MaxQRDots].
// The lower bound wins when the margins leave less than MinQRDots.
func (s Spec) QRSideDots() int {
	return max(MinQRDots, min(s.QRSizeMM*s.DotsPerMM, s.MaxQRDots()))
}

// QROrigin returns where the QR's top-left dot lands on the canvas:
// centred horizontally, top-aligned at the margin.
func (s Spec) QROrigin(side int) (x, y int) {
	return max(0, (s.WidthDots()-side)/2), s.MarginDots
}
