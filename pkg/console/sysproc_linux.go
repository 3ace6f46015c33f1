package console

import (
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"
)

// sysProcAttr puts the child in its own process group. Unless KeepAlive is
// set, the kernel also kills it when the thread that started it exits.
func sysProcAttr(cfg Config) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{Setpgid: true}
	if !cfg.KeepAlive {
		attr.Pdeathsig = syscall.SIGKILL
	}
	return attr
}

// lockLauncherThread pins the goroutine that starts and reaps the child to
// its OS thread. Pdeathsig tracks that thread, not the process, so the
// thread must outlive the child; the goroutine never unlocks, and the
// runtime retires the thread only after the child has been reaped.
func lockLauncherThread(cfg Config) {
	if !cfg.KeepAlive {
		runtime.LockOSThread()
	}
}

// pipeAvailable reports the bytes queued in the pipe, and whether the
// write end is closed.
func pipeAvailable(fd int) (int, bool, error) {
	n, err := unix.IoctlGetInt(fd, unix.TIOCINQ)
	if err != nil || n > 0 {
		return n, false, err
	}
	_, hup := pollPipe(fd)
	return 0, hup, nil
}
