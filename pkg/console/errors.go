package console

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrInvalidSequence is returned by Wait when the previous Read did not
	// return a partial record, or when Wait was already called since.
	ErrInvalidSequence = errors.New("console: Wait must directly follow a Read that returned a partial record")

	// ErrClosed is returned by operations on a closed Process.
	ErrClosed = errors.New("console: process is closed")

	// ErrPromptTimeout means the output ended before the prompt appeared.
	ErrPromptTimeout = errors.New("prompt not found before end of output")

	// ErrPromptMismatch means the child stopped writing but its last
	// fragment did not match the prompt.
	ErrPromptMismatch = errors.New("prompt does not match")
)

// OSError is a failed read, write, peek, spawn or process call.
type OSError struct {
	// Op names the failed operation, e.g. "read" or "spawn".
	Op string

	// Err is the underlying error, usually a syscall.Errno.
	Err error
}

func (e *OSError) Error() string {
	return fmt.Sprintf("console %s: %v", e.Op, e.Err)
}

func (e *OSError) Unwrap() error { return e.Err }

// Errno returns the OS error code, or 0 if there is none.
func (e *OSError) Errno() syscall.Errno {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return errno
	}
	return 0
}

func osError(op string, err error) error {
	if err == nil {
		return nil
	}
	var oe *OSError
	if errors.As(err, &oe) {
		return err
	}
	return &OSError{Op: op, Err: err}
}

// PromptError is returned by ExpectPrompt.
type PromptError struct {
	// Err is ErrPromptTimeout or ErrPromptMismatch.
	Err error

	// Pattern describes the matcher, when known.
	Pattern string

	// Last is the last record read before giving up.
	Last string
}

func (e *PromptError) Error() string {
	s := e.Err.Error()
	if e.Pattern != "" {
		s += fmt.Sprintf(" (want %q)", e.Pattern)
	}
	return s + fmt.Sprintf("; last output: %q", e.Last)
}

func (e *PromptError) Unwrap() error { return e.Err }
