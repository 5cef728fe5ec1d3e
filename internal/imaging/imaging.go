package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// LumaThreshold is the perceptual luminance below which a pixel prints.
const LumaThreshold = 128

// LoadImage loads an image from file
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

// IsMark applies the luminance rule (0.30 R + 0.59 G + 0.11 B < 128) to a
// single color. Fully transparent pixels count as white paper.
func IsMark(c color.Color) bool {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	if n.A == 0 {
		return false
	}
	lum := (int(n.R)*30 + int(n.G)*59 + int(n.B)*11) / 100
	return lum < LumaThreshold
}

// FromImage converts an arbitrary image to a bitmap of the same size.
func FromImage(img image.Image) *Bitmap {
	bounds := img.Bounds()
	b := NewBitmap(bounds.Dx(), bounds.Dy())
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			if IsMark(img.At(bounds.Min.X+x, bounds.Min.Y+y)) {
				b.bits[y*b.Width+x] = true
			}
		}
	}
	return b
}

// Fit scales img to fit within width x height keeping its aspect ratio,
// thresholds it and places it horizontally centred at the top of a white
// bitmap of exactly width x height.
func Fit(img image.Image, width, height int) *Bitmap {
	out := NewBitmap(width, height)
	if width == 0 || height == 0 || img.Bounds().Empty() {
		return out
	}
	resized := FromImage(resizeToFit(img, width, height))
	out.Blit(resized, (width-resized.Width)/2, 0)
	return out
}

// resizeToFit scales image to fit within bounds while maintaining aspect ratio
func resizeToFit(img image.Image, maxW, maxH int) image.Image {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	scaleW := float64(maxW) / float64(srcW)
	scaleH := float64(maxH) / float64(srcH)
	scale := scaleW
	if scaleH < scaleW {
		scale = scaleH
	}

	newW := int(float64(srcW) * scale)
	newH := int(float64(srcH) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	// Nearest-neighbor keeps edges hard, which is what a thermal head wants.
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))

	for y := 0; y < newH; y++ {
		for x := 0; x < newW; x++ {
			srcX := int(float64(x) / scale)
			srcY := int(float64(y) / scale)
			if srcX >= srcW {
				srcX = srcW - 1
			}
			if srcY >= srcH {
				srcY = srcH - 1
			}
			dst.Set(x, y, img.At(bounds.Min.X+srcX, bounds.Min.Y+srcY))
		}
	}

	return dst
}

// Image renders the bitmap as a black on white grayscale image.
func (b *Bitmap) Image() image.Image {
	img := image.NewGray(image.Rect(0, 0, b.Width, b.Height))

	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			if b.bits[y*b.Width+x] {
				img.SetGray(x, y, color.Gray{0})
			} else {
				img.SetGray(x, y, color.Gray{255})
			}
		}
	}

	return img
}

// PNG encodes the bitmap as a PNG file.
func (b *Bitmap) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, b.Image()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DataURL encodes the bitmap as an embeddable data:image/png;base64 URL.
func (b *Bitmap) DataURL() (string, error) {
	data, err := b.PNG()
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}
