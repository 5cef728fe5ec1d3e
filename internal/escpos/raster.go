package escpos

import (
	"fmt"

	"titantag/internal/imaging"
)

// MaxField is the largest value of a 16-bit raster header field.
const MaxField = 0xFFFF

// RasterHeaderLen is the size of the GS v 0 header.
const RasterHeaderLen = 8

// RangeError reports a raster dimension that does not fit the protocol's
// 16-bit header fields.
type RangeError struct {
	Field string
	Value int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("raster %s %d exceeds protocol limit %d", e.Field, e.Value, MaxField)
}

// BytesPerRow returns the packed row width for a bitmap width.
func BytesPerRow(width int) int {
	return (width + 7) / 8
}

// EncodeRaster packs b into a GS v 0 raster packet: the 8-byte header
// followed by rows of ceil(width/8) bytes, most significant bit first.
func EncodeRaster(b *imaging.Bitmap) ([]byte, error) {
	bytesPerRow := BytesPerRow(b.Width)
	if bytesPerRow > MaxField {
		return nil, &RangeError{Field: "row width", Value: bytesPerRow}
	}
	if b.Height > MaxField {
		return nil, &RangeError{Field: "row count", Value: b.Height}
	}

	out := make([]byte, RasterHeaderLen+bytesPerRow*b.Height)
	copy(out, cmdRasterImage)
	out[3] = 0x00 // normal density
	out[4] = byte(bytesPerRow & 0xFF)
	out[5] = byte(bytesPerRow >> 8)
	out[6] = byte(b.Height & 0xFF)
	out[7] = byte(b.Height >> 8)

	image := out[RasterHeaderLen:]
	for y := 0; y < b.Height; y++ {
		row := image[y*bytesPerRow:]
		for x := 0; x < b.Width; x++ {
			if b.At(x, y) {
				row[x/8] |= 0x80 >> (x % 8)
			}
		}
	}

	return out, nil
}
