package label

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned for label text that is empty after trimming.
var ErrInvalidInput = errors.New("label text is empty")

// EncodingError wraps a QR generation failure.
type EncodingError struct {
	Text string
	Err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode QR for %q: %v", e.Text, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }
