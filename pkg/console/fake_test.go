package console

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// fakePipe delivers each fed chunk through its own Read, the way a pipe
// delivers separate writes of a child.
type fakePipe struct {
	mu     sync.Mutex
	cond   *sync.Cond
	chunks [][]byte
	eof    bool
	closed bool
	err    error // returned by Read instead of data, once
}

func newFakePipe() *fakePipe {
	f := &fakePipe{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *fakePipe) feed(chunks ...string) {
	f.mu.Lock()
	for _, c := range chunks {
		f.chunks = append(f.chunks, []byte(c))
	}
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *fakePipe) feedBytes(b []byte) {
	f.mu.Lock()
	f.chunks = append(f.chunks, append([]byte(nil), b...))
	f.mu.Unlock()
	f.cond.Broadcast()
}

// hangUp closes the child's end.
func (f *fakePipe) hangUp() {
	f.mu.Lock()
	f.eof = true
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *fakePipe) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *fakePipe) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.chunks) == 0 && !f.eof && !f.closed && f.err == nil {
		f.cond.Wait()
	}
	if f.err != nil {
		err := f.err
		f.err = nil
		return 0, err
	}
	if len(f.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, f.chunks[0])
	if n == len(f.chunks[0]) {
		f.chunks = f.chunks[1:]
	} else {
		f.chunks[0] = f.chunks[0][n:]
	}
	return n, nil
}

func (f *fakePipe) Available() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.chunks {
		n += len(c)
	}
	if n == 0 && (f.eof || f.closed) {
		return 0, io.EOF
	}
	return n, nil
}

func (f *fakePipe) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.cond.Broadcast()
	return nil
}

// fakeStdin records what the Process writes to the child.
type fakeStdin struct {
	mu      sync.Mutex
	writes  [][]byte
	closed  bool
	err     error
	onClose func()
}

func (f *fakeStdin) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	if f.closed {
		return 0, errors.New("write on closed pipe")
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeStdin) Close() error {
	f.mu.Lock()
	first := !f.closed
	f.closed = true
	cb := f.onClose
	f.mu.Unlock()
	if first && cb != nil {
		cb()
	}
	return nil
}

func (f *fakeStdin) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.writes))
	for i, w := range f.writes {
		out[i] = string(w)
	}
	return out
}

func (f *fakeStdin) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeChild struct {
	pid  int
	done chan struct{}
	once sync.Once

	mu         sync.Mutex
	code       int
	terminated []int
	closed     bool
}

func newFakeChild(pid int) *fakeChild {
	return &fakeChild{pid: pid, done: make(chan struct{})}
}

func (c *fakeChild) exit(code int) {
	c.once.Do(func() {
		c.mu.Lock()
		c.code = code
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *fakeChild) Pid() int { return c.pid }

func (c *fakeChild) Wait(timeout time.Duration) (bool, error) {
	select {
	case <-c.done:
		return true, nil
	default:
	}
	if timeout < 0 {
		<-c.done
		return true, nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-c.done:
		return true, nil
	case <-t.C:
		return false, nil
	}
}

func (c *fakeChild) ExitCode() (int, error) {
	select {
	case <-c.done:
	default:
		return ExitCodeUnknown, errors.New("still running")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code, nil
}

func (c *fakeChild) Terminate(code int) error {
	c.mu.Lock()
	c.terminated = append(c.terminated, code)
	c.mu.Unlock()
	c.exit(code)
	return nil
}

func (c *fakeChild) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeChild) terminations() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.terminated...)
}

func (c *fakeChild) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeConsole is a scripted child: the test feeds its output and
// inspects its input.
type fakeConsole struct {
	out   *fakePipe
	in    *fakeStdin
	child *fakeChild
}

func newFakeConsole() *fakeConsole {
	return &fakeConsole{
		out:   newFakePipe(),
		in:    &fakeStdin{},
		child: newFakeChild(4242),
	}
}

func (f *fakeConsole) handles() Handles {
	return Handles{Stdin: f.in, Stdout: f.out, Child: f.child}
}

// finish makes the child print its last output and exit with code.
func (f *fakeConsole) finish(code int) {
	f.out.hangUp()
	f.child.exit(code)
}

// testConfig keeps the timing tight but well above scheduler noise.
func testConfig() Config {
	return Config{
		Command:       "fake",
		PromptDelay:   20 * time.Millisecond,
		PromptTimeout: 300 * time.Millisecond,
		CloseGrace:    10 * time.Millisecond,
	}
}

func attachFake(t *testing.T, cfg Config) (*Process, *fakeConsole) {
	t.Helper()
	f := newFakeConsole()
	p, err := Attach(f.handles(), cfg)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p, f
}

type record struct {
	Text   string
	IsLine bool
}

// readAll reads records with Read until the end of output.
func readAll(t *testing.T, p *Process) []record {
	t.Helper()
	var got []record
	for {
		text, ok, err := p.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if !ok {
			return got
		}
		got = append(got, record{text, p.IsLine()})
	}
}

func readLines(t *testing.T, p *Process) []string {
	t.Helper()
	var got []string
	for {
		text, ok, err := p.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine: %v", err)
		}
		if !ok {
			return got
		}
		got = append(got, text)
	}
}
