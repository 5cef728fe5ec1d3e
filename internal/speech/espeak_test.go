package speech

import (
	"os/exec"
	"testing"
	"time"
)

func TestHasVoice(t *testing.T) {
	out := `Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  he              --/M      Hebrew             sem/he
`
	if !hasVoice(out, "he") {
		t.Errorf("hasVoice(he) = false")
	}
	if hasVoice(out, "ar") {
		t.Errorf("hasVoice(ar) = true")
	}
	if hasVoice("Pty Language Age/Gender VoiceName File Other Languages\n", "he") {
		t.Errorf("header only output matched")
	}
}

// fakeESpeak runs name instead of espeak-ng for every utterance.
func fakeESpeak(t *testing.T, name string, args ...string) *ESpeak {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
	e := NewESpeak(ESpeakConfig{}, quietLogger())
	e.command = func(string) *exec.Cmd { return exec.Command(name, args...) }
	return e
}

type events struct {
	started chan string
	done    chan string
	failed  chan string
}

func listen() (*UtteranceListener, events) {
	ev := events{
		started: make(chan string, 4),
		done:    make(chan string, 4),
		failed:  make(chan string, 4),
	}
	return &UtteranceListener{
		OnStart: func(id string) { ev.started <- id },
		OnDone:  func(id string) { ev.done <- id },
		OnError: func(id string, err error) { ev.failed <- id },
	}, ev
}

func expect(t *testing.T, ch chan string, want string) {
	t.Helper()
	select {
	case id := <-ch:
		if id != want {
			t.Errorf("event for %q, want %q", id, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no event for %q", want)
	}
}

func TestESpeakDone(t *testing.T) {
	e := fakeESpeak(t, "true")
	l, ev := listen()

	if err := e.Speak("u1", "שלום", l); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	expect(t, ev.started, "u1")
	expect(t, ev.done, "u1")
}

func TestESpeakError(t *testing.T) {
	e := fakeESpeak(t, "false")
	l, ev := listen()

	if err := e.Speak("u1", "שלום", l); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	expect(t, ev.failed, "u1")
}

func TestESpeakInterrupted(t *testing.T) {
	e := fakeESpeak(t, "sleep", "5")
	first, firstEv := listen()
	second, secondEv := listen()

	if err := e.Speak("u1", "ראשון", first); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if err := e.Speak("u2", "שני", second); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	expect(t, secondEv.started, "u2")

	e.Stop()

	select {
	case id := <-firstEv.done:
		t.Errorf("interrupted utterance %q reported done", id)
	case id := <-firstEv.failed:
		t.Errorf("interrupted utterance %q reported an error", id)
	case id := <-secondEv.failed:
		t.Errorf("stopped utterance %q reported an error", id)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestESpeakStartFailure(t *testing.T) {
	e := NewESpeak(ESpeakConfig{Binary: "/nonexistent/espeak-ng"}, quietLogger())
	if err := e.Speak("u1", "x", nil); err == nil {
		t.Errorf("Speak() succeeded without a binary")
	}
	if e.Available() {
		t.Errorf("Available() = true without a binary")
	}
}
