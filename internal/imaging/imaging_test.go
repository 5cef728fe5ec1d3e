package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func TestIsMark(t *testing.T) {
	tests := []struct {
		name  string
		color color.Color
		want  bool
	}{
		{"black", color.Black, true},
		{"white", color.White, false},
		{"transparent", color.NRGBA{0, 0, 0, 0}, false},
		{"pure red", color.NRGBA{255, 0, 0, 255}, true},    // lum 76
		{"pure green", color.NRGBA{0, 255, 0, 255}, false}, // lum 150
		{"gray 127", color.Gray{127}, true},
		{"gray 128", color.Gray{128}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMark(tt.color); got != tt.want {
				t.Errorf("IsMark(%v) = %v, want %v", tt.color, got, tt.want)
			}
		})
	}
}

func TestBitmapSetAndBlit(t *testing.T) {
	b := NewBitmap(4, 3)
	if b.Marks() != 0 {
		t.Fatalf("new bitmap has %d marks, want 0", b.Marks())
	}

	b.Set(1, 1, true)
	b.Set(10, 10, true) // ignored
	if !b.At(1, 1) || b.At(10, 10) {
		t.Errorf("Set/At mismatch")
	}

	src := NewBitmap(2, 2)
	src.Set(0, 0, true)
	src.Set(1, 1, true)

	b.Blit(src, 3, 2)
	if !b.At(3, 2) {
		t.Errorf("blit did not copy (0,0) to (3,2)")
	}
	if b.Marks() != 2 {
		t.Errorf("clipped blit marks = %d, want 2", b.Marks())
	}

	// White dots of src overwrite marks in b.
	b.Blit(NewBitmap(2, 2), 0, 0)
	if b.At(1, 1) {
		t.Errorf("blit of white source kept mark at (1,1)")
	}
}

func TestFromImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(5, 5, 8, 7))
	for y := 5; y < 7; y++ {
		for x := 5; x < 8; x++ {
			img.Set(x, y, color.White)
		}
	}
	img.Set(6, 6, color.Black)

	b := FromImage(img)
	if b.Width != 3 || b.Height != 2 {
		t.Fatalf("size = %dx%d, want 3x2", b.Width, b.Height)
	}
	if !b.At(1, 1) || b.Marks() != 1 {
		t.Errorf("expected a single mark at (1,1), got %d marks", b.Marks())
	}
}

func TestFit(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range img.Pix {
		img.Pix[i] = 0
	}

	b := Fit(img, 40, 20)
	if b.Width != 40 || b.Height != 20 {
		t.Fatalf("size = %dx%d, want 40x20", b.Width, b.Height)
	}
	// Square source scaled to 20x20, centred horizontally.
	if b.At(9, 0) || !b.At(10, 0) || !b.At(29, 19) || b.At(30, 0) {
		t.Errorf("unexpected placement of fitted image")
	}
	if b.Marks() != 400 {
		t.Errorf("marks = %d, want 400", b.Marks())
	}
}

func TestDataURL(t *testing.T) {
	b := NewBitmap(8, 8)
	b.Set(0, 0, true)

	url, err := b.DataURL()
	if err != nil {
		t.Fatalf("DataURL() error = %v", err)
	}
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("DataURL() = %q, missing prefix", url)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatalf("payload is not base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("payload is not a PNG: %v", err)
	}
	if !FromImage(img).Equal(b) {
		t.Errorf("decoded PNG does not match bitmap")
	}
}

func TestRenderCaption(t *testing.T) {
	b, err := RenderCaption("FIND-042", 360, 60, CaptionOptions{FontSize: 8})
	if err != nil {
		t.Fatalf("RenderCaption() error = %v", err)
	}
	if b.Width != 360 || b.Height != 60 {
		t.Fatalf("size = %dx%d, want 360x60", b.Width, b.Height)
	}
	if b.Marks() == 0 {
		t.Errorf("caption rendered no dots")
	}

	empty, err := RenderCaption("", 360, 60, CaptionOptions{FontSize: 8})
	if err != nil {
		t.Fatalf("RenderCaption(\"\") error = %v", err)
	}
	if empty.Marks() != 0 {
		t.Errorf("empty caption rendered %d dots", empty.Marks())
	}
}
