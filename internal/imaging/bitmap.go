package imaging

// Bitmap is a monochrome dot grid. true marks a printed (black) dot.
// A new Bitmap is all white.
type Bitmap struct {
	Width  int
	Height int
	bits   []bool
}

// NewBitmap allocates an all-white bitmap. Negative sizes are treated as zero.
func NewBitmap(width, height int) *Bitmap {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Bitmap{
		Width:  width,
		Height: height,
		bits:   make([]bool, width*height),
	}
}

// At reports whether the dot at (x, y) is marked. Out of range dots are white.
func (b *Bitmap) At(x, y int) bool {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return false
	}
	return b.bits[y*b.Width+x]
}

// Set marks or clears the dot at (x, y). Out of range writes are ignored.
func (b *Bitmap) Set(x, y int, mark bool) {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return
	}
	b.bits[y*b.Width+x] = mark
}

// Blit copies src into b with its top-left corner at (x, y), white dots
// included. Parts of src falling outside b are clipped.
func (b *Bitmap) Blit(src *Bitmap, x, y int) {
	for sy := 0; sy < src.Height; sy++ {
		dy := y + sy
		if dy < 0 || dy >= b.Height {
			continue
		}
		for sx := 0; sx < src.Width; sx++ {
			dx := x + sx
			if dx < 0 || dx >= b.Width {
				continue
			}
			b.bits[dy*b.Width+dx] = src.bits[sy*src.Width+sx]
		}
	}
}

// Marks returns the number of marked dots.
func (b *Bitmap) Marks() int {
	n := 0
	for _, v := range b.bits {
		if v {
			n++
		}
	}
	return n
}

// Equal reports whether both bitmaps have the same size and dots.
func (b *Bitmap) Equal(o *Bitmap) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.Width != o.Width || b.Height != o.Height {
		return false
	}
	for i := range b.bits {
		if b.bits[i] != o.bits[i] {
			return false
		}
	}
	return true
}
