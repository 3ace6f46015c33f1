package console

import "strings"

// Write sends text to the child's input followed by Config.Newline, unless
// text already ends with it.
func (p *Process) Write(text string) error {
	return p.write(text, true)
}

// WriteRaw sends text to the child's input as is.
func (p *Process) WriteRaw(text string) error {
	return p.write(text, false)
}

func (p *Process) write(text string, newline bool) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if p.res.closed.Load() {
		return ErrClosed
	}

	if err := p.send(text); err != nil {
		return err
	}
	if nl := p.cfg.newline(); newline && !strings.HasSuffix(text, nl) {
		return p.send(nl)
	}
	return nil
}

func (p *Process) send(s string) error {
	if s == "" {
		return nil
	}
	b, err := encodeText(p.inEnc, s)
	if err != nil {
		return err
	}
	if _, err := p.res.h.Stdin.Write(b); err != nil {
		return osError("write", err)
	}
	return nil
}
