package speech

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// ESpeakConfig holds configuration for espeak-ng playback
type ESpeakConfig struct {
	Binary    string // espeak-ng executable
	Voice     string // Voice variant (e.g., "he", "he+f1")
	Speed     int    // Speech speed in words per minute (default: 150)
	Pitch     int    // Pitch adjustment, 0 to 99 (default: 50)
	Amplitude int    // Volume/amplitude, 0 to 200 (default: 100)
}

// DefaultESpeakConfig returns the default configuration for the Hebrew voice
func DefaultESpeakConfig() ESpeakConfig {
	return ESpeakConfig{
		Binary:    "espeak-ng",
		Voice:     DefaultLanguage,
		Speed:     150,
		Pitch:     50,
		Amplitude: 100,
	}
}

// ESpeak speaks through the local sound device with espeak-ng. Only one
// utterance plays at a time.
type ESpeak struct {
	cfg ESpeakConfig
	log *slog.Logger

	// command builds the process for one utterance
	command func(text string) *exec.Cmd

	availOnce sync.Once
	avail     bool

	mu      sync.Mutex
	current *utterance
}

type utterance struct {
	id          string
	cmd         *exec.Cmd
	interrupted bool
}

// NewESpeak creates an espeak-ng synthesizer. It does not check that the
// binary exists; Available does.
func NewESpeak(cfg ESpeakConfig, log *slog.Logger) *ESpeak {
	def := DefaultESpeakConfig()
	if cfg.Binary == "" {
		cfg.Binary = def.Binary
	}
	if cfg.Voice == "" {
		cfg.Voice = def.Voice
	}
	if cfg.Speed <= 0 {
		cfg.Speed = def.Speed
	}
	if cfg.Pitch <= 0 {
		cfg.Pitch = def.Pitch
	}
	if cfg.Amplitude <= 0 {
		cfg.Amplitude = def.Amplitude
	}
	if log == nil {
		log = slog.Default()
	}

	e := &ESpeak{cfg: cfg, log: log}
	e.command = func(text string) *exec.Cmd {
		cmd := exec.Command(cfg.Binary,
			"-v", cfg.Voice,
			"-s", fmt.Sprintf("%d", cfg.Speed),
			"-p", fmt.Sprintf("%d", cfg.Pitch),
			"-a", fmt.Sprintf("%d", cfg.Amplitude),
			"--stdin",
		)
		cmd.Stdin = strings.NewReader(text)
		return cmd
	}
	return e
}

// Available reports whether espeak-ng runs and has a voice for the
// configured language. The answer is computed once.
func (e *ESpeak) Available() bool {
	e.availOnce.Do(func() {
		lang, _, _ := strings.Cut(e.cfg.Voice, "+")
		out, err := exec.Command(e.cfg.Binary, "--voices="+lang).Output()
		if err != nil {
			e.log.Warn("espeak-ng not usable", "error", err)
			return
		}
		e.avail = hasVoice(string(out), lang)
		if !e.avail {
			e.log.Warn("espeak-ng has no voice for language", "language", lang)
		}
	})
	return e.avail
}

// hasVoice checks `espeak-ng --voices=<lang>` output for lang.
func hasVoice(out, lang string) bool {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		// Pty Language Age/Gender VoiceName File Other Languages
		if len(fields) >= 2 && fields[0] != "Pty" && fields[1] == lang {
			return true
		}
	}
	return false
}

func (e *ESpeak) Speak(id, text string, l *UtteranceListener) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.interruptLocked()

	cmd := e.command(text)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("espeak-ng failed: %w", err)
	}
	u := &utterance{id: id, cmd: cmd}
	e.current = u
	e.log.Debug("utterance started", "id", id)
	l.start(id)

	go func() {
		err := cmd.Wait()

		e.mu.Lock()
		interrupted := u.interrupted
		if e.current == u {
			e.current = nil
		}
		e.mu.Unlock()

		switch {
		case interrupted:
			e.log.Debug("utterance interrupted", "id", id)
		case err != nil:
			e.log.Warn("utterance failed", "id", id, "error", err)
			l.fail(id, err)
		default:
			e.log.Debug("utterance done", "id", id)
			l.done(id)
		}
	}()
	return nil
}

func (e *ESpeak) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.interruptLocked()
	return nil
}

func (e *ESpeak) interruptLocked() {
	if e.current == nil {
		return
	}
	e.current.interrupted = true
	if p := e.current.cmd.Process; p != nil {
		p.Kill()
	}
	e.current = nil
}
