package speech

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Recorder captures microphone audio into a WAV file.
type Recorder interface {
	Available() bool

	// Start begins capturing into path. Cancelling ctx ends the capture
	// cleanly; wait returns once the file is complete.
	Start(ctx context.Context, path string) (wait func() error, err error)
}

// Arecord records 16 kHz mono WAV with ALSA's arecord.
type Arecord struct {
	Binary      string
	Device      string        // ALSA device, empty for default
	MaxDuration time.Duration // capture stops on its own after this
}

func (a Arecord) binary() string {
	if a.Binary == "" {
		return "arecord"
	}
	return a.Binary
}

func (a Arecord) Available() bool {
	_, err := exec.LookPath(a.binary())
	return err == nil
}

func (a Arecord) Start(ctx context.Context, path string) (func() error, error) {
	args := []string{"-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "wav"}
	if a.Device != "" {
		args = append(args, "-D", a.Device)
	}
	if a.MaxDuration > 0 {
		args = append(args, "-d", fmt.Sprintf("%d", int(a.MaxDuration.Seconds())))
	}
	args = append(args, path)

	cmd := exec.CommandContext(ctx, a.binary(), args...)
	// SIGINT makes arecord finish the WAV header before exiting.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", a.binary(), err)
	}

	return func() error {
		err := cmd.Wait()
		if ctx.Err() != nil {
			// stopped on request
			return nil
		}
		return err
	}, nil
}
