package imaging

import (
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

// CaptionDPI matches an 8 dots/mm print head.
const CaptionDPI = 203

// CaptionOptions configures caption rendering
type CaptionOptions struct {
	FontSize      float64 // points at CaptionDPI
	WordBreakOnly bool    // Only break lines on spaces, not mid-word
}

// RenderCaption renders text centred into a width x height bitmap.
// Lines that do not fit vertically are dropped.
func RenderCaption(text string, width, height int, opts CaptionOptions) (*Bitmap, error) {
	if width <= 0 || height <= 0 {
		return NewBitmap(width, height), nil
	}

	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)

	c := freetype.NewContext()
	c.SetDPI(CaptionDPI)
	c.SetFont(f)
	c.SetFontSize(opts.FontSize)
	c.SetClip(img.Bounds())
	c.SetDst(img)
	c.SetSrc(&image.Uniform{color.Black})
	c.SetHinting(font.HintingFull)

	face := truetype.NewFace(f, &truetype.Options{Size: opts.FontSize, DPI: CaptionDPI})
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	lineHeight := metrics.Height.Ceil()

	var lines []string
	if opts.WordBreakOnly {
		lines = wrapTextWordOnly(text, face, width)
	} else {
		lines = wrapText(text, face, width)
	}
	if lineHeight > 0 {
		if fit := height / lineHeight; len(lines) > fit {
			lines = lines[:fit]
		}
	}

	y := (height-len(lines)*lineHeight)/2 + ascent
	for _, line := range lines {
		x := (width - measureString(face, line)) / 2
		if _, err := c.DrawString(line, freetype.Pt(x, y)); err != nil {
			return nil, err
		}
		y += lineHeight
	}

	return FromImage(img), nil
}

// wrapText splits text into lines that fit within maxWidth (breaks anywhere)
func wrapText(text string, face font.Face, maxWidth int) []string {
	var lines []string
	var currentLine string

	for _, char := range text {
		if char == '\n' {
			lines = append(lines, currentLine)
			currentLine = ""
			continue
		}
		testLine := currentLine + string(char)
		if measureString(face, testLine) > maxWidth && currentLine != "" {
			lines = append(lines, currentLine)
			currentLine = string(char)
		} else {
			currentLine = testLine
		}
	}

	if currentLine != "" {
		lines = append(lines, currentLine)
	}

	return lines
}

// wrapTextWordOnly splits text into lines, only breaking at word boundaries
func wrapTextWordOnly(text string, face font.Face, maxWidth int) []string {
	var lines []string

	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}

		currentLine := words[0]
		for _, word := range words[1:] {
			testLine := currentLine + " " + word
			if measureString(face, testLine) <= maxWidth {
				currentLine = testLine
				continue
			}
			lines = append(lines, currentLine)
			if measureString(face, word) > maxWidth {
				currentLine = breakLongWord(word, face, maxWidth, &lines)
			} else {
				currentLine = word
			}
		}

		if currentLine != "" {
			lines = append(lines, currentLine)
		}
	}

	return lines
}

// breakLongWord breaks a single word that's too long to fit
func breakLongWord(word string, face font.Face, maxWidth int, lines *[]string) string {
	var currentPart string
	for _, char := range word {
		testPart := currentPart + string(char)
		if measureString(face, testPart) > maxWidth && currentPart != "" {
			*lines = append(*lines, currentPart)
			currentPart = string(char)
		} else {
			currentPart = testPart
		}
	}
	return currentPart
}

// measureString returns the width of a string in pixels
func measureString(face font.Face, s string) int {
	var width fixed.Int26_6
	for _, r := range s {
		adv, ok := face.GlyphAdvance(r)
		if ok {
			width += adv
		}
	}
	return width.Ceil()
}
