package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"titantag/internal/bridge"
	"titantag/internal/config"
	"titantag/internal/imaging"
	"titantag/internal/label"
	"titantag/internal/printer"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDirectPrintHonoursDenyMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Permissions.Mode = "deny"
	s := NewStack(cfg, quietLogger())

	canvas := imaging.NewBitmap(label.Default.WidthDots(), label.Default.HeightDots())
	_, err := s.Printer.Print(context.Background(), canvas)
	if !errors.Is(err, printer.ErrPermissionDenied) {
		t.Errorf("Print() error = %v, want ErrPermissionDenied", err)
	}
}

func TestPermitted(t *testing.T) {
	tests := []struct {
		mode string
		want bool
	}{
		{"grant", true},
		{"prompt", true},
		{"deny", false},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			cfg := config.Defaults()
			cfg.Permissions.Mode = tt.mode
			if got := NewStack(cfg, quietLogger()).permitted(); got != tt.want {
				t.Errorf("permitted() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPermittedFollowsBridge(t *testing.T) {
	cfg := config.Defaults()
	s := NewStack(cfg, quietLogger())
	b := s.Bridge(context.Background(), nil, bridge.PermissionDeny)
	defer b.Close()

	if s.permitted() {
		t.Errorf("permitted() = true while the bridge denies Bluetooth")
	}
}

func TestPartialInterval(t *testing.T) {
	if got := partialInterval(0); got >= 0 {
		t.Errorf("partialInterval(0) = %v, want disabled", got)
	}
	if got := partialInterval(2e9); got != 2e9 {
		t.Errorf("partialInterval(2s) = %v", got)
	}
}
