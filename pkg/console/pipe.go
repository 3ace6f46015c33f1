package console

import (
	"io"
	"time"
)

// OutputPipe is the read end of the child's merged stdout/stderr pipe.
type OutputPipe interface {
	// Read performs one read. It returns io.EOF once the child's end of the
	// pipe is closed and drained.
	Read(p []byte) (int, error)

	// Available reports how many bytes can be read without blocking. It
	// returns io.EOF when the pipe is closed and empty.
	Available() (int, error)

	Close() error
}

// Child is the launched process.
type Child interface {
	// Pid returns the process identifier.
	Pid() int

	// Wait blocks until the process exits or timeout elapses and reports
	// whether it exited. A negative timeout waits forever.
	Wait(timeout time.Duration) (bool, error)

	// ExitCode returns the exit code of an exited process.
	ExitCode() (int, error)

	// Terminate kills the process with the given exit code where the
	// platform supports one.
	Terminate(code int) error

	// Close releases the process handle.
	Close() error
}

// Handles are the OS resources of a launched child. A Process owns them
// exclusively.
type Handles struct {
	Stdin  io.WriteCloser
	Stdout OutputPipe
	Child  Child
}

// SpawnFunc launches the console program described by cfg with a hidden
// window, stderr merged into stdout, and the parent's pipe ends not
// inheritable by the child.
type SpawnFunc func(cfg Config) (Handles, error)
