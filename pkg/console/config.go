package console

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Defaults applied to zero-valued Config fields.
const (
	DefaultBufferSize    = 8000
	DefaultPromptDelay   = 30 * time.Millisecond
	DefaultPromptTimeout = 5 * time.Second
	DefaultPollMin       = 1 * time.Millisecond
	DefaultPollMax       = 25 * time.Millisecond
	DefaultCloseGrace    = 100 * time.Millisecond
)

// Config describes the console program to launch and how its text is relayed.
type Config struct {
	// Command is the console program to execute (e.g., "cmd.exe", "ftp").
	Command string

	// Args are the arguments to pass to the command.
	Args []string

	// WorkDir is the working directory for the command.
	// If empty, the current working directory is used.
	WorkDir string

	// Env is a map of environment variables added to the inherited environment.
	Env map[string]string

	// EnvTunneling appends a WSLENV entry for the Env keys so that they
	// survive the WSL to Win32 boundary.
	EnvTunneling bool

	// ConvertPaths, when true and running under WSL, translates file-like
	// arguments from Linux to Windows format before launch.
	ConvertPaths bool

	// Encoding names the encoding of the child's output. Empty means UTF-8.
	// "auto" picks UTF-16 when the output starts with a UTF-16 byte-order mark.
	Encoding string

	// InputEncoding names the encoding used by Write. Empty means Encoding.
	InputEncoding string

	// Newline is appended by Write. Empty means "\n".
	Newline string

	// BufferSize is the capacity of the raw read buffer.
	BufferSize int

	// PromptDelay is how long Read waits for more output before it returns
	// unterminated text as a partial record.
	PromptDelay time.Duration

	// PromptTimeout bounds the extra wait ExpectPrompt gives a partial record
	// that does not match yet.
	PromptTimeout time.Duration

	// PollMin and PollMax bound the adaptive sleep between pipe peeks.
	PollMin time.Duration
	PollMax time.Duration

	// CloseGrace is how long Close lets the child exit on its own after its
	// input is closed, before terminating it.
	CloseGrace time.Duration

	// KeepAlive leaves the child running when the Process is closed or the
	// host exits.
	KeepAlive bool

	// Timeout is the maximum duration Run lets the command run.
	// Zero means no timeout.
	Timeout time.Duration

	// Logger receives diagnostics. Nil discards them.
	Logger *logrus.Logger

	// Spawn launches the child. Nil uses the platform launcher.
	Spawn SpawnFunc
}

// Output holds the result of Run.
type Output struct {
	// Lines are the output lines, terminators removed.
	Lines []string

	// Text is Lines joined with "\n".
	Text string

	// ExitCode is the process exit code.
	ExitCode int

	// Duration is the wall-clock time the command took to run.
	Duration time.Duration
}

var discardLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

func (c Config) logger() *logrus.Logger {
	if c.Logger == nil {
		return discardLogger
	}
	return c.Logger
}

func (c Config) bufferSize() int {
	if c.BufferSize <= 0 {
		return DefaultBufferSize
	}
	return c.BufferSize
}

func (c Config) newline() string {
	if c.Newline == "" {
		return "\n"
	}
	return c.Newline
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func (c Config) promptDelay() time.Duration   { return orDefault(c.PromptDelay, DefaultPromptDelay) }
func (c Config) promptTimeout() time.Duration { return orDefault(c.PromptTimeout, DefaultPromptTimeout) }
func (c Config) closeGrace() time.Duration    { return orDefault(c.CloseGrace, DefaultCloseGrace) }

func (c Config) backoff() backoff {
	lo := orDefault(c.PollMin, DefaultPollMin)
	hi := orDefault(c.PollMax, DefaultPollMax)
	if hi < lo {
		hi = lo
	}
	return backoff{next: lo, max: hi}
}
