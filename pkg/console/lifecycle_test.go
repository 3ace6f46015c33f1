package console

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestCloseTerminatesRunningChild(t *testing.T) {
	p, f := attachFake(t, testConfig())

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if !f.in.isClosed() || !f.child.isClosed() {
		t.Error("Close left handles open")
	}
	if diff := cmp.Diff([]int{1}, f.child.terminations()); diff != "" {
		t.Errorf("terminations mismatch (-want +got):\n%s", diff)
	}
	if code := p.ExitCode(); code != 1 {
		t.Errorf("ExitCode() = %d, want 1", code)
	}
}

func TestCloseLetsChildExit(t *testing.T) {
	p, f := attachFake(t, testConfig())
	// A well-behaved child quits when its input closes.
	f.in.onClose = func() { f.child.exit(0) }

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if n := len(f.child.terminations()); n != 0 {
		t.Errorf("child terminated %d times, want 0", n)
	}
	if code := p.ExitCode(); code != 0 {
		t.Errorf("ExitCode() = %d, want 0", code)
	}
}

func TestCloseKeepAlive(t *testing.T) {
	cfg := testConfig()
	cfg.KeepAlive = true
	p, f := attachFake(t, cfg)

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if n := len(f.child.terminations()); n != 0 {
		t.Errorf("child terminated %d times, want 0", n)
	}
	if code := p.ExitCode(); code != ExitCodeUnknown {
		t.Errorf("ExitCode() = %d, want ExitCodeUnknown", code)
	}
}

func TestCloseIdempotent(t *testing.T) {
	p, f := attachFake(t, testConfig())

	for i := 0; i < 3; i++ {
		if err := p.Close(); err != nil {
			t.Fatalf("Close() #%d: %v", i, err)
		}
	}
	if n := len(f.child.terminations()); n != 1 {
		t.Errorf("child terminated %d times, want 1", n)
	}
}

func TestClosedProcess(t *testing.T) {
	p, _ := attachFake(t, testConfig())
	p.Close()

	if _, _, err := p.Read(); !errors.Is(err, ErrClosed) {
		t.Errorf("Read() error = %v, want ErrClosed", err)
	}
	if _, _, err := p.ReadLine(); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadLine() error = %v, want ErrClosed", err)
	}
	if _, err := p.Wait(NoWait); !errors.Is(err, ErrClosed) {
		t.Errorf("Wait() error = %v, want ErrClosed", err)
	}
	if err := p.Write("x"); !errors.Is(err, ErrClosed) {
		t.Errorf("Write() error = %v, want ErrClosed", err)
	}
	if err := p.TerminateNow(2); !errors.Is(err, ErrClosed) {
		t.Errorf("TerminateNow() error = %v, want ErrClosed", err)
	}
}

func TestTerminateNow(t *testing.T) {
	p, f := attachFake(t, testConfig())

	if err := p.TerminateNow(7); err != nil {
		t.Fatal(err)
	}
	if code := p.ExitCode(); code != 7 {
		t.Errorf("ExitCode() = %d, want 7", code)
	}
	p.Close()
	if diff := cmp.Diff([]int{7}, f.child.terminations()); diff != "" {
		t.Errorf("terminations mismatch (-want +got):\n%s", diff)
	}
}

func TestExited(t *testing.T) {
	p, f := attachFake(t, testConfig())
	if p.Exited() {
		t.Fatal("Exited() = true for a running child")
	}
	f.child.exit(5)
	if !p.Exited() {
		t.Fatal("Exited() = false after exit")
	}
	if err := p.TerminateNow(1); err != nil {
		t.Fatal(err)
	}
	if got := f.child.terminations(); len(got) != 0 {
		t.Errorf("exited child was terminated: %v", got)
	}
	if code := p.ExitCode(); code != 5 {
		t.Errorf("ExitCode() = %d, want 5", code)
	}
}

func TestWaitZeroAfterExit(t *testing.T) {
	c := newFakeChild(1)
	c.exit(0)
	for i := 0; i < 1000; i++ {
		if exited, _ := c.Wait(0); !exited {
			t.Fatalf("Wait(0) = false on attempt %d", i)
		}
	}
}

func TestExitCodeBlocks(t *testing.T) {
	p, f := attachFake(t, testConfig())
	go func() {
		time.Sleep(30 * time.Millisecond)
		f.child.exit(9)
	}()
	if code := p.ExitCode(); code != 9 {
		t.Errorf("ExitCode() = %d, want 9", code)
	}
}

func TestTerminateAll(t *testing.T) {
	running, fr := attachFake(t, testConfig())
	_, fd := attachFake(t, testConfig())
	fd.child.exit(0)
	keep := testConfig()
	keep.KeepAlive = true
	_, fk := attachFake(t, keep)
	closed, fc := attachFake(t, testConfig())
	closed.Close()

	if n := TerminateAll(); n != 1 {
		t.Errorf("TerminateAll() = %d, want 1", n)
	}
	if !running.Exited() || len(fr.child.terminations()) != 1 {
		t.Error("running child was not terminated")
	}
	if len(fd.child.terminations())+len(fk.child.terminations()) != 0 {
		t.Error("exited or kept-alive child was terminated")
	}
	if len(fc.child.terminations()) != 1 {
		t.Error("closed child was terminated again")
	}
}

func TestTerminateAllSkipsReleased(t *testing.T) {
	cfg := testConfig()
	cfg.KeepAlive = true
	p, f := attachFake(t, cfg)
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	// A shutdown snapshot taken just before Close still holds the entry.
	p.res.terminate.Store(true)
	register(p.res)
	defer unregister(p.res)

	if n := TerminateAll(); n != 0 {
		t.Errorf("TerminateAll() = %d, want 0", n)
	}
	if got := f.child.terminations(); len(got) != 0 {
		t.Errorf("released child was terminated: %v", got)
	}
}

func TestAttachRejectsIncompleteHandles(t *testing.T) {
	f := newFakeConsole()
	if _, err := Attach(Handles{Stdin: f.in, Stdout: f.out}, testConfig()); err == nil {
		t.Error("Attach accepted handles without a child")
	}
}

func TestAttachRejectsBadEncoding(t *testing.T) {
	f := newFakeConsole()
	cfg := testConfig()
	cfg.Encoding = "klingon"
	if _, err := Attach(f.handles(), cfg); err == nil {
		t.Fatal("Attach accepted an unknown encoding")
	}
	if !f.in.isClosed() || !f.child.isClosed() {
		t.Error("Attach did not release handles on failure")
	}
}

func TestStart(t *testing.T) {
	f := newFakeConsole()
	var got Config
	cfg := testConfig()
	cfg.Args = []string{"-n"}
	cfg.Spawn = func(c Config) (Handles, error) {
		got = c
		return f.handles(), nil
	}
	p, err := Start(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if p.Pid() != 4242 {
		t.Errorf("Pid() = %d, want 4242", p.Pid())
	}
	if got.Command != "fake" || len(got.Args) != 1 {
		t.Errorf("spawned with %+v", got)
	}
}

func TestStartErrors(t *testing.T) {
	if _, err := Start(Config{}); err == nil {
		t.Error("Start accepted an empty command")
	}

	cfg := testConfig()
	cfg.Spawn = func(Config) (Handles, error) { return Handles{}, errors.New("no such file") }
	_, err := Start(cfg)
	var oe *OSError
	if !errors.As(err, &oe) || oe.Op != "spawn" {
		t.Errorf("Start() error = %v, want spawn OSError", err)
	}
}
