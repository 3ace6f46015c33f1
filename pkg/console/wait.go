package console

import (
	"errors"
	"io"
	"time"
)

// NoWait makes Wait return at once, requesting a merge without peeking.
const NoWait time.Duration = -1

// Wait decides what the partial record just returned by Read was. It waits
// up to timeout for more output. If more arrives, or the output ends, Wait
// returns true and the next Read returns the partial text joined with what
// follows. If nothing arrives, Wait returns false and the next Read starts
// fresh, so the partial text was most likely a prompt.
//
// A negative timeout returns true immediately. Wait must directly follow a
// Read that returned a partial record; otherwise it returns
// ErrInvalidSequence.
func (p *Process) Wait(timeout time.Duration) (bool, error) {
	if p.res.closed.Load() {
		return false, ErrClosed
	}
	if !p.partial {
		return false, ErrInvalidSequence
	}
	p.partial = false

	if timeout < 0 {
		p.merge = true
		return true, nil
	}
	more, err := p.peek(timeout)
	if err != nil {
		return false, err
	}
	p.merge = more
	return more, nil
}

// peek polls the output pipe until bytes are available, the pipe closes, or
// timeout elapses. A closed pipe counts as available: the next read will
// observe it.
func (p *Process) peek(timeout time.Duration) (bool, error) {
	if p.eof {
		return true, nil
	}
	deadline := time.Now().Add(timeout)
	b := p.cfg.backoff()
	for {
		n, err := p.res.h.Stdout.Available()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return true, nil
			}
			return false, osError("peek", err)
		}
		if n > 0 {
			return true, nil
		}

		left := time.Until(deadline)
		if left <= 0 {
			return false, nil
		}
		time.Sleep(min(b.step(), left))
	}
}

// backoff yields sleep periods that double from a floor up to a cap.
type backoff struct {
	next time.Duration
	max  time.Duration
}

func (b *backoff) step() time.Duration {
	d := b.next
	if b.next < b.max {
		b.next = min(2*b.next, b.max)
	}
	return d
}
