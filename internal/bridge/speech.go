package bridge

import (
	"github.com/google/uuid"

	"titantag/internal/speech"
)

// Speak interrupts anything being spoken and speaks text.
func (b *Bridge) Speak(text string) {
	b.post(func() {
		if err := b.synth.Speak(uuid.NewString(), text, nil); err != nil {
			b.log.Warn("speak failed", "error", err)
		}
	})
}

// SpeakWithCallback speaks text and calls callback once when that
// utterance ends, whether it finished or failed. An utterance cut off by
// a newer one never calls back.
func (b *Bridge) SpeakWithCallback(text, callback string) {
	id := uuid.NewString()
	fire := func() {
		b.post(func() { b.script.Call(callback) })
	}
	l := &speech.UtteranceListener{
		OnDone: func(string) { fire() },
		OnError: func(_ string, err error) {
			b.log.Warn("utterance failed", "id", id, "error", err)
			fire()
		},
	}
	b.post(func() {
		if err := b.synth.Speak(id, text, l); err != nil {
			b.log.Warn("speak failed", "id", id, "error", err)
			b.script.Call(callback)
		}
	})
}

// IsSpeechAvailable reports whether the synthesizer can speak the
// configured language.
func (b *Bridge) IsSpeechAvailable() bool {
	return b.synth.Available()
}

// StartTranscription starts listening and reports results to the front-end
// function callback as (text, isFinal, error).
func (b *Bridge) StartTranscription(callback string) {
	b.post(func() {
		b.speechCallback = callback
		if !b.recognizer.Available() {
			b.speechResult(nil, true, "not_available")
			return
		}
		if !b.perms.granted(CapabilityMicrophone) {
			b.speechPending = true
			b.requestPermission(CapabilityMicrophone)
			return
		}
		b.startTranscription()
	})
}

// StopTranscription ends listening. The final result still arrives. A
// start still waiting for the microphone permission is dropped.
func (b *Bridge) StopTranscription() {
	b.post(func() {
		b.speechPending = false
		b.recognizer.Stop()
		b.listening = false
	})
}

// startTranscription must run on the dispatcher.
func (b *Bridge) startTranscription() {
	if b.listening {
		b.recognizer.Cancel()
	}
	b.listening = true

	l := speech.RecognitionListener{
		OnPartial: func(text string) {
			b.post(func() { b.speechResult(&text, false, "") })
		},
		OnFinal: func(text string) {
			b.post(func() {
				b.listening = false
				b.speechResult(&text, true, "")
			})
		},
		OnError: func(code speech.ErrorCode) {
			b.post(func() {
				b.listening = false
				b.speechResult(nil, true, code.String())
			})
		},
	}
	if err := b.recognizer.Start(b.ctx, l); err != nil {
		b.log.Warn("failed to start recognizer", "error", err)
		b.listening = false
		b.speechResult(nil, true, "start_failed")
	}
}

// speechResult calls the transcription callback with (text, isFinal, err).
// A nil text and an empty errCode are sent as null.
func (b *Bridge) speechResult(text *string, isFinal bool, errCode string) {
	if b.speechCallback == "" {
		return
	}
	var t, e any
	if text != nil {
		t = *text
	}
	if errCode != "" {
		e = errCode
	}
	b.script.Call(b.speechCallback, t, isFinal, e)
}
