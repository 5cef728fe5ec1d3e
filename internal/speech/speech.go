// Package speech provides text-to-speech and Hebrew speech recognition
// engines for the bridge.
package speech

import (
	"context"
	"errors"
	"fmt"
)

// DefaultLanguage is the language both engines are configured for.
const DefaultLanguage = "he"

var ErrUnavailable = errors.New("speech engine not available")

// ErrorCode classifies a recognition failure. The values follow the codes
// the web front end already understands.
type ErrorCode int

const (
	ErrorNetwork ErrorCode = 2
	ErrorAudio   ErrorCode = 3
	ErrorServer  ErrorCode = 4
	ErrorClient  ErrorCode = 5
	ErrorNoMatch ErrorCode = 7
)

func (c ErrorCode) String() string {
	return fmt.Sprintf("error:%d", int(c))
}

// UtteranceListener receives the lifecycle of one utterance. Nil hooks are
// skipped. An utterance interrupted by a newer one reports nothing after
// OnStart.
type UtteranceListener struct {
	OnStart func(id string)
	OnDone  func(id string)
	OnError func(id string, err error)
}

func (l *UtteranceListener) start(id string) {
	if l != nil && l.OnStart != nil {
		l.OnStart(id)
	}
}

func (l *UtteranceListener) done(id string) {
	if l != nil && l.OnDone != nil {
		l.OnDone(id)
	}
}

func (l *UtteranceListener) fail(id string, err error) {
	if l != nil && l.OnError != nil {
		l.OnError(id, err)
	}
}

// Synthesizer speaks text.
type Synthesizer interface {
	// Available reports whether the configured language can be spoken.
	Available() bool

	// Speak stops any utterance in progress and starts speaking text.
	// It returns once playback has started; l, if not nil, is told how it ends.
	Speak(id, text string, l *UtteranceListener) error

	// Stop interrupts the current utterance.
	Stop() error
}

// RecognitionListener receives results of one recognition session.
type RecognitionListener struct {
	OnPartial func(text string)
	OnFinal   func(text string)
	OnError   func(code ErrorCode)
}

func (l RecognitionListener) partial(text string) {
	if l.OnPartial != nil {
		l.OnPartial(text)
	}
}

func (l RecognitionListener) final(text string) {
	if l.OnFinal != nil {
		l.OnFinal(text)
	}
}

func (l RecognitionListener) fail(code ErrorCode) {
	if l.OnError != nil {
		l.OnError(code)
	}
}

// Recognizer turns speech into text.
type Recognizer interface {
	Available() bool

	// Start begins listening. Results arrive on l from another goroutine.
	Start(ctx context.Context, l RecognitionListener) error

	// Stop ends capture; the final result or error still follows.
	Stop()

	// Cancel abandons the session; nothing more is reported.
	Cancel()
}

// NoSynthesizer is used when no speech engine is configured.
type NoSynthesizer struct{}

func (NoSynthesizer) Available() bool { return false }

func (NoSynthesizer) Speak(string, string, *UtteranceListener) error { return ErrUnavailable }

func (NoSynthesizer) Stop() error { return nil }

// NoRecognizer is used when no transcription backend is configured.
type NoRecognizer struct{}

func (NoRecognizer) Available() bool { return false }

func (NoRecognizer) Start(context.Context, RecognitionListener) error { return ErrUnavailable }

func (NoRecognizer) Stop() {}

func (NoRecognizer) Cancel() {}
