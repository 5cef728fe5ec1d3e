package speech

import (
	"context"
	"encoding/binary"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
)

// WhisperConfig configures the transcription backend.
type WhisperConfig struct {
	APIKey   string
	BaseURL  string // any Whisper-compatible endpoint; empty for OpenAI
	Model    string
	Language string

	// RequestTimeout bounds one transcription call.
	RequestTimeout time.Duration

	// PartialInterval is how often the audio captured so far is
	// transcribed as a partial result. Negative disables partials.
	PartialInterval time.Duration

	// Breaker settings: trips after FailureThreshold consecutive network or
	// server failures and stays open for OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration

	TempDir string
}

// WhisperRecognizer records an utterance and transcribes it with a
// Whisper-compatible API. While recording, the audio so far is transcribed
// every PartialInterval and reported as a partial result; the transcription
// of the complete recording is the final one.
type WhisperRecognizer struct {
	cfg      WhisperConfig
	client   *openai.Client
	breaker  *gobreaker.CircuitBreaker
	recorder Recorder
	log      *slog.Logger

	mu     sync.Mutex
	active *recognition
}

type recognition struct {
	stop      context.CancelFunc
	cancelled bool
}

// NewWhisperRecognizer creates a recognizer capturing audio with rec.
func NewWhisperRecognizer(cfg WhisperConfig, rec Recorder, log *slog.Logger) *WhisperRecognizer {
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.PartialInterval == 0 {
		cfg.PartialInterval = 3 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	r := &WhisperRecognizer{
		cfg:      cfg,
		client:   openai.NewClientWithConfig(oc),
		recorder: rec,
		log:      log,
	}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "transcription",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// a rejected request says nothing about the service's health
			return err == nil || classify(err) == ErrorClient
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return r
}

func (r *WhisperRecognizer) Available() bool {
	return r.cfg.APIKey != "" && r.recorder != nil && r.recorder.Available()
}

// Start records until Stop, Cancel or the recorder's own limit, then
// transcribes. An active session is cancelled first.
func (r *WhisperRecognizer) Start(ctx context.Context, l RecognitionListener) error {
	if !r.Available() {
		return ErrUnavailable
	}

	f, err := os.CreateTemp(r.cfg.TempDir, "titantag-*.wav")
	if err != nil {
		return err
	}
	path := f.Name()
	f.Close()

	r.Cancel()

	recCtx, stop := context.WithCancel(ctx)
	wait, err := r.recorder.Start(recCtx, path)
	if err != nil {
		stop()
		os.Remove(path)
		return err
	}

	rec := &recognition{stop: stop}
	r.mu.Lock()
	r.active = rec
	r.mu.Unlock()

	r.log.Debug("recording started", "file", path)
	go r.run(rec, path, wait, l)
	return nil
}

func (r *WhisperRecognizer) run(rec *recognition, path string, wait func() error, l RecognitionListener) {
	defer os.Remove(path)
	defer rec.stop()

	recErr := r.record(rec, path, wait, l)
	if r.cancelled(rec) {
		return
	}
	if recErr != nil {
		r.log.Warn("recording failed", "error", recErr)
		r.clear(rec)
		l.fail(ErrorAudio)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.RequestTimeout)
	defer cancel()
	text, err := r.Transcribe(ctx, path)

	abandoned := r.cancelled(rec)
	r.clear(rec)
	if abandoned {
		return
	}
	switch {
	case err != nil:
		code := classify(err)
		r.log.Warn("transcription failed", "error", err, "code", int(code))
		l.fail(code)
	case text == "":
		l.fail(ErrorNoMatch)
	default:
		l.final(text)
	}
}

// record waits for the capture to end, reporting partial transcriptions of
// the audio so far in the meantime.
func (r *WhisperRecognizer) record(rec *recognition, path string, wait func() error, l RecognitionListener) error {
	done := make(chan error, 1)
	go func() { done <- wait() }()

	if r.cfg.PartialInterval < 0 {
		return <-done
	}
	ticker := time.NewTicker(r.cfg.PartialInterval)
	defer ticker.Stop()

	var last string
	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			text, ok := r.partial(path)
			if !ok || text == last || r.cancelled(rec) {
				continue
			}
			last = text
			l.partial(text)
		}
	}
}

// partial transcribes a snapshot of the recording in progress.
func (r *WhisperRecognizer) partial(path string) (string, bool) {
	snap := path + ".partial.wav"
	defer os.Remove(snap)

	ok, err := snapshotWAV(path, snap)
	if err != nil || !ok {
		if err != nil {
			r.log.Debug("partial snapshot failed", "error", err)
		}
		return "", false
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.RequestTimeout)
	defer cancel()
	text, err := r.Transcribe(ctx, snap)
	if err != nil {
		r.log.Debug("partial transcription failed", "error", err)
		return "", false
	}
	return text, text != ""
}

const (
	wavHeaderLen = 44
	// half a second of 16 kHz 16-bit mono
	minPartialBytes = 16000
)

// snapshotWAV copies the audio captured so far into dst, with the RIFF and
// data chunk sizes set for the bytes present. It reports false while there
// is too little audio to transcribe.
func snapshotWAV(src, dst string) (bool, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return false, err
	}
	if len(data) < wavHeaderLen+minPartialBytes ||
		string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[36:40]) != "data" {
		return false, nil
	}
	data = data[:len(data)-(len(data)-wavHeaderLen)%2]
	binary.LittleEndian.PutUint32(data[4:8], uint32(len(data)-8))
	binary.LittleEndian.PutUint32(data[40:44], uint32(len(data)-wavHeaderLen))
	return true, os.WriteFile(dst, data, 0o600)
}

func (r *WhisperRecognizer) cancelled(rec *recognition) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return rec.cancelled
}

func (r *WhisperRecognizer) clear(rec *recognition) {
	r.mu.Lock()
	if r.active == rec {
		r.active = nil
	}
	r.mu.Unlock()
}

// Stop ends recording; the transcription still runs.
func (r *WhisperRecognizer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		r.active.stop()
	}
}

func (r *WhisperRecognizer) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		r.active.cancelled = true
		r.active.stop()
		r.active = nil
	}
}

// Transcribe sends the audio file at path through the circuit breaker.
func (r *WhisperRecognizer) Transcribe(ctx context.Context, path string) (string, error) {
	out, err := r.breaker.Execute(func() (interface{}, error) {
		resp, err := r.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    r.cfg.Model,
			FilePath: path,
			Language: r.cfg.Language,
		})
		if err != nil {
			return nil, err
		}
		return resp.Text, nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.(string)), nil
}

// classify maps a transcription failure to a recognition error code.
func classify(err error) ErrorCode {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrorServer
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusCode(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusCode(reqErr.HTTPStatusCode)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return ErrorAudio
	}
	return ErrorNetwork
}

func statusCode(status int) ErrorCode {
	switch {
	case status >= 500 || status == 429:
		return ErrorServer
	case status >= 400:
		return ErrorClient
	default:
		return ErrorNetwork
	}
}
