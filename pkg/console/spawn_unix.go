//go:build unix

package console

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// unixPipe is the read end of an os.Pipe. Peeking goes through the raw
// connection so the descriptor keeps its non-blocking mode.
type unixPipe struct {
	f  *os.File
	rc syscall.RawConn
}

func (p *unixPipe) Read(b []byte) (int, error) { return p.f.Read(b) }

// Available reports the bytes that can be read without blocking, or io.EOF
// once the child's end is closed and the pipe drained.
func (p *unixPipe) Available() (int, error) {
	var (
		n    int
		hup  bool
		ierr error
	)
	err := p.rc.Control(func(fd uintptr) {
		n, hup, ierr = pipeAvailable(int(fd))
	})
	if err != nil {
		return 0, err
	}
	if ierr != nil {
		return 0, fmt.Errorf("pipe size: %w", ierr)
	}
	if n == 0 && hup {
		return 0, io.EOF
	}
	return n, nil
}

// pollPipe polls fd without blocking.
func pollPipe(fd int) (readable, hup bool) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	if _, err := unix.Poll(fds, 0); err != nil {
		return false, false
	}
	return fds[0].Revents&unix.POLLIN != 0, fds[0].Revents&(unix.POLLHUP|unix.POLLERR) != 0
}

func (p *unixPipe) Close() error { return p.f.Close() }

// unixChild tracks an exec.Cmd. A watcher goroutine reaps it so that Wait
// can time out.
type unixChild struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (c *unixChild) Pid() int { return c.cmd.Process.Pid }

func (c *unixChild) Wait(timeout time.Duration) (bool, error) {
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

func (c *unixChild) ExitCode() (int, error) {
	select {
	case <-c.done:
	default:
		return ExitCodeUnknown, errors.New("process has not exited")
	}
	state := c.cmd.ProcessState
	if state == nil {
		return ExitCodeUnknown, c.err
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return state.ExitCode(), nil
}

// Terminate kills the child's process group. Unix has no way to impose an
// exit code, so code is ignored.
func (c *unixChild) Terminate(code int) error {
	err := unix.Kill(-c.cmd.Process.Pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func (c *unixChild) Close() error { return nil }

// spawnChild starts cfg.Command in its own process group with stdout and
// stderr on one pipe. os.Pipe descriptors are close-on-exec, so the child
// inherits only the ends passed to it.
func spawnChild(cfg Config) (Handles, error) {
	args, err := launchArgs(cfg)
	if err != nil {
		return Handles{}, fmt.Errorf("path conversion failed: %w", err)
	}

	cmd := exec.Command(resolveCommand(cfg.Command), args...)
	cmd.Dir = cfg.WorkDir
	cmd.Env = environ(cfg)
	cmd.SysProcAttr = sysProcAttr(cfg)

	outR, outW, err := os.Pipe()
	if err != nil {
		return Handles{}, fmt.Errorf("failed to create output pipe: %w", err)
	}
	inR, inW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return Handles{}, fmt.Errorf("failed to create input pipe: %w", err)
	}

	closeAll := func() {
		for _, f := range []*os.File{outR, outW, inR, inW} {
			f.Close()
		}
	}
	rc, err := outR.SyscallConn()
	if err != nil {
		closeAll()
		return Handles{}, err
	}

	cmd.Stdin = inR
	cmd.Stdout = outW
	cmd.Stderr = outW

	// One goroutine starts and reaps the child, so a thread-bound death
	// signal stays armed for the child's lifetime.
	child := &unixChild{cmd: cmd, done: make(chan struct{})}
	started := make(chan error, 1)
	go func() {
		lockLauncherThread(cfg)
		if err := cmd.Start(); err != nil {
			started <- err
			return
		}
		started <- nil
		child.err = cmd.Wait()
		close(child.done)
	}()
	if err := <-started; err != nil {
		closeAll()
		return Handles{}, err
	}

	// Close child-side ends in the parent.
	outW.Close()
	inR.Close()

	return Handles{
		Stdin:  inW,
		Stdout: &unixPipe{f: outR, rc: rc},
		Child:  child,
	}, nil
}
