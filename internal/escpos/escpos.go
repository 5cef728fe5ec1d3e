package escpos

import "bytes"

// Command bytes understood by SK58-class receipt/label printers.
var (
	cmdReset              = []byte{0x1B, 0x40}       // ESC @
	cmdLineSpacing        = []byte{0x1B, 0x33}       // ESC 3 n
	cmdDefaultLineSpacing = []byte{0x1B, 0x32}       // ESC 2
	cmdFeedDots           = []byte{0x1D, 0x4A}       // GS J n
	cmdRasterImage        = []byte{0x1D, 0x76, 0x30} // GS v 0 m
)

// Command builds ESC/POS byte sequences
type Command struct {
	buf bytes.Buffer
}

func New() *Command {
	return &Command{}
}

// Reset clears the printer's mode settings
func (c *Command) Reset() *Command {
	c.buf.Write(cmdReset)
	return c
}

// LineSpacing sets line spacing to n dots
func (c *Command) LineSpacing(n byte) *Command {
	c.buf.Write(cmdLineSpacing)
	c.buf.WriteByte(n)
	return c
}

// DefaultLineSpacing restores the firmware's default line spacing
func (c *Command) DefaultLineSpacing() *Command {
	c.buf.Write(cmdDefaultLineSpacing)
	return c
}

// Feed advances the paper by dots. The argument is a single byte on the
// wire, so values outside 1..255 are omitted rather than wrapped.
func (c *Command) Feed(dots int) *Command {
	if dots < 1 || dots > 255 {
		return c
	}
	c.buf.Write(cmdFeedDots)
	c.buf.WriteByte(byte(dots))
	return c
}

// Raster appends an encoded raster packet (see EncodeRaster)
func (c *Command) Raster(packet []byte) *Command {
	c.buf.Write(packet)
	return c
}

// Bytes returns the raw command bytes to send to printer
func (c *Command) Bytes() []byte {
	return c.buf.Bytes()
}

// Len returns the number of bytes built so far
func (c *Command) Len() int {
	return c.buf.Len()
}

// LabelJob builds the complete byte sequence for one label: reset, zero
// line spacing, the raster, the inter-label gap feed and default spacing.
func LabelJob(raster []byte, gapDots int) []byte {
	return New().
		Reset().
		LineSpacing(0).
		Raster(raster).
		Feed(gapDots).
		DefaultLineSpacing().
		Bytes()
}
