// Package console relays text between the caller and a hidden console
// child process.
//
// A [Process] reads the child's merged stdout/stderr one record at a time.
// [Process.ReadLine] returns complete lines. [Process.Read] also returns
// unterminated text once the child stops writing for a moment, which lets
// the caller recognize prompts:
//
//	p, err := console.Start(console.Config{Command: "ftp", Args: []string{"example.com"}})
//	if err != nil {
//		return err
//	}
//	defer p.Close()
//
//	if _, err := p.ExpectPrompt(console.MustGlob("Name*:"), "anonymous"); err != nil {
//		return err
//	}
//	for {
//		text, ok, err := p.Read()
//		if err != nil {
//			return err
//		}
//		if !ok {
//			break
//		}
//		if !p.IsLine() {
//			// text may be a prompt; Wait tells a slow line from a prompt.
//		}
//	}
//
// End of output is reported as ok == false, not as an error.
package console

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding"
)

// Process is a running console child and its relay state. Read, ReadLine,
// Wait and ExpectPrompt must be called from one goroutine at a time; Write
// may be called concurrently with them.
type Process struct {
	cfg   Config
	log   *logrus.Entry
	res   *resources
	inEnc encoding.Encoding

	// Read side.
	buf     []byte
	dec     *textDecoder
	window  []byte
	pos     int
	pending []byte
	prevCR  bool
	eof     bool
	ended   bool
	isLine  bool
	partial bool
	merge   bool

	wmu sync.Mutex
}

// Start launches cfg.Command and returns a Process that owns it.
func Start(cfg Config) (*Process, error) {
	if cfg.Command == "" {
		return nil, errors.New("console: no command specified")
	}
	if err := validateEncodings(cfg); err != nil {
		return nil, err
	}

	spawn := cfg.Spawn
	if spawn == nil {
		spawn = spawnChild
	}
	h, err := spawn(cfg)
	if err != nil {
		return nil, osError("spawn", fmt.Errorf("failed to start command %q: %w", cfg.Command, err))
	}
	return Attach(h, cfg)
}

// Attach returns a Process that takes ownership of already launched
// handles. The handles are released if Attach fails.
func Attach(h Handles, cfg Config) (*Process, error) {
	if h.Stdin == nil || h.Stdout == nil || h.Child == nil {
		return nil, errors.New("console: incomplete handles")
	}
	if err := validateEncodings(cfg); err != nil {
		closeHandles(h)
		return nil, err
	}
	inEnc, _ := cfg.inputEncoding()

	log := cfg.logger().WithFields(logrus.Fields{
		"pid":     h.Child.Pid(),
		"command": cfg.Command,
	})
	p := &Process{
		cfg:   cfg,
		log:   log,
		inEnc: inEnc,
		res:   newResources(h, log, cfg.KeepAlive, cfg.closeGrace()),
	}
	register(p.res)
	runtime.SetFinalizer(p, (*Process).finalize)
	log.Debug("console process started")
	return p, nil
}

func validateEncodings(cfg Config) error {
	if _, err := resolveEncoding(cfg.Encoding); err != nil {
		return fmt.Errorf("console: output encoding: %w", err)
	}
	if _, err := cfg.inputEncoding(); err != nil {
		return fmt.Errorf("console: input encoding: %w", err)
	}
	return nil
}

// Pid returns the child's process identifier.
func (p *Process) Pid() int { return p.res.h.Child.Pid() }

// decodeNext reads and decodes the next non-empty chunk of output into the
// window. It returns false once the pipe is closed.
func (p *Process) decodeNext() (bool, error) {
	if p.eof {
		return false, nil
	}
	if p.buf == nil {
		enc, _ := resolveEncoding(p.cfg.Encoding)
		p.buf = make([]byte, p.cfg.bufferSize())
		p.dec = newTextDecoder(enc, isAuto(p.cfg.Encoding))
	}

	for {
		n, err := p.res.h.Stdout.Read(p.buf)
		if n > 0 {
			text, derr := p.dec.decode(p.buf[:n])
			if derr != nil {
				return false, derr
			}
			if p.setWindow(text) {
				return true, nil
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return false, osError("read", err)
			}
			p.eof = true
			tail, derr := p.dec.flush()
			if derr != nil {
				return false, derr
			}
			return p.setWindow(tail), nil
		}
	}
}

// setWindow installs text as the decoded window, dropping a leading "\n"
// that completes a "\r" at the end of the previous window.
func (p *Process) setWindow(text []byte) bool {
	if p.prevCR && len(text) > 0 {
		p.prevCR = false
		if text[0] == '\n' {
			text = text[1:]
		}
	}
	if len(text) == 0 {
		return false
	}
	p.prevCR = text[len(text)-1] == '\r'
	p.window = text
	p.pos = 0
	return true
}
