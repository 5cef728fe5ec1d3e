// Package app builds the printing and speech components from configuration.
// Both the HTTP service and the desktop shell start from here.
package app

import (
	"context"
	"log/slog"
	"time"

	"titantag/internal/bridge"
	"titantag/internal/config"
	"titantag/internal/label"
	"titantag/internal/printer"
	"titantag/internal/speech"
)

// Host is the front end as seen by the bridge.
type Host interface {
	bridge.Notifier
	bridge.ScriptHost
	bridge.Prompter
}

// Stack holds the components behind a bridge.
type Stack struct {
	Config      *config.Config
	Printer     *printer.Printer
	Compositor  *label.Compositor
	Synthesizer speech.Synthesizer
	Recognizer  speech.Recognizer

	log    *slog.Logger
	bridge *bridge.Bridge
}

// NewStack creates the platform printer adapter and the speech engines
// enabled in cfg.
func NewStack(cfg *config.Config, log *slog.Logger) *Stack {
	s := &Stack{Config: cfg, log: log}

	adapter := printer.NewPlatformAdapter(printer.Options{
		Transport: printer.Transport(cfg.Printer.Transport),
		Channel:   cfg.Printer.Channel,
		Port:      cfg.Printer.Port,
		BaudRate:  cfg.Printer.BaudRate,
		Log:       log,
	})
	s.Printer = printer.New(adapter, printer.Config{
		NamePrefix: cfg.Printer.NamePrefix,
		GapDots:    label.Default.GapDots(),
		Permitted:  s.permitted,
		Log:        log,
	})

	s.Compositor = label.NewCompositor(label.Default, nil)
	s.Compositor.Caption = cfg.Label.Caption

	s.Synthesizer = speech.NoSynthesizer{}
	if tts := cfg.Speech.TTS; tts.Enabled {
		s.Synthesizer = speech.NewESpeak(speech.ESpeakConfig{
			Binary:    tts.Binary,
			Voice:     tts.Voice,
			Speed:     tts.Speed,
			Pitch:     tts.Pitch,
			Amplitude: tts.Amplitude,
		}, log)
	}

	s.Recognizer = speech.NoRecognizer{}
	if asr := cfg.Speech.ASR; asr.Enabled {
		rec := speech.Arecord{
			Binary:      asr.Recorder,
			Device:      asr.Device,
			MaxDuration: asr.MaxDuration.Duration,
		}
		s.Recognizer = speech.NewWhisperRecognizer(speech.WhisperConfig{
			APIKey:          asr.APIKey,
			BaseURL:         asr.BaseURL,
			Model:           asr.Model,
			Language:        asr.Language,
			RequestTimeout:  asr.Timeout.Duration,
			PartialInterval: partialInterval(asr.PartialInterval.Duration),
		}, rec, log)
	}

	return s
}

// Bridge starts a bridge over the stack reporting to host. mode overrides
// the configured permission mode when non-empty.
func (s *Stack) Bridge(ctx context.Context, host Host, mode bridge.PermissionMode) *bridge.Bridge {
	if mode == "" {
		mode = bridge.PermissionMode(s.Config.Permissions.Mode)
	}
	s.bridge = bridge.New(ctx, bridge.Options{
		Printer:        s.Printer,
		Compositor:     s.Compositor,
		Synthesizer:    s.Synthesizer,
		Recognizer:     s.Recognizer,
		Notifier:       host,
		Script:         host,
		Prompter:       host,
		NamePrefix:     s.Config.Printer.NamePrefix,
		QueueSize:      s.Config.Printer.QueueSize,
		PermissionMode: mode,
		Log:            s.log,
	})
	return s.bridge
}

// partialInterval maps the config's "zero disables" onto the recognizer's
// "negative disables".
func partialInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return -1
	}
	return d
}

// permitted checks the bridge's Bluetooth grant again at session start.
// Without a bridge the caller is trusted unless the configured mode denies.
func (s *Stack) permitted() bool {
	if s.bridge == nil {
		return s.Config.Permissions.Mode != string(bridge.PermissionDeny)
	}
	return s.bridge.PermissionGranted(bridge.CapabilityBluetooth)
}
