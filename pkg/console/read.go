package console

import "bytes"

// ReadLine returns the next complete line of output without its terminator.
// It blocks until a "\r", "\n" or "\r\n" arrives. ok is false at the end of
// output.
func (p *Process) ReadLine() (text string, ok bool, err error) {
	return p.readRecord(false)
}

// Read returns the next record of output. If the child stops writing
// without terminating the current line for longer than Config.PromptDelay,
// Read returns the text so far as a partial record and IsLine reports
// false; the caller may then treat it as a prompt or call Wait. ok is
// false at the end of output.
func (p *Process) Read() (text string, ok bool, err error) {
	return p.readRecord(true)
}

// IsLine reports whether the last record returned by Read or ReadLine was
// a complete line.
func (p *Process) IsLine() bool { return p.isLine }

// Ended reports whether the end of output has been reached.
func (p *Process) Ended() bool { return p.ended }

func (p *Process) readRecord(allowPartial bool) (string, bool, error) {
	if p.res.closed.Load() {
		return "", false, ErrClosed
	}
	if p.ended {
		return "", false, nil
	}
	if !p.merge {
		p.pending = p.pending[:0]
	}
	p.merge = false
	p.partial = false

	for {
		if p.pos >= len(p.window) {
			if allowPartial && len(p.pending) > 0 {
				more, err := p.peek(p.cfg.promptDelay())
				if err != nil {
					return "", false, err
				}
				if !more {
					p.isLine = false
					p.partial = true
					return string(p.pending), true, nil
				}
			}

			ok, err := p.decodeNext()
			if err != nil {
				return "", false, err
			}
			if !ok {
				p.ended = true
				if len(p.pending) == 0 {
					return "", false, nil
				}
				return p.takeLine(), true, nil
			}
			continue
		}

		rest := p.window[p.pos:]
		i := bytes.IndexAny(rest, "\r\n")
		if i < 0 {
			p.pending = append(p.pending, rest...)
			p.pos = len(p.window)
			continue
		}
		p.pending = append(p.pending, rest[:i]...)
		p.pos += i + 1
		if rest[i] == '\r' && p.pos < len(p.window) && p.window[p.pos] == '\n' {
			p.pos++
		}
		return p.takeLine(), true, nil
	}
}

func (p *Process) takeLine() string {
	s := string(p.pending)
	p.pending = p.pending[:0]
	p.isLine = true
	return s
}
