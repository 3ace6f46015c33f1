//go:build unix && !linux

package console

import "syscall"

func sysProcAttr(cfg Config) *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func lockLauncherThread(Config) {}

// pipeAvailable reports 1 when a read will not block; the BSDs have no
// portable queue-size ioctl in x/sys.
func pipeAvailable(fd int) (int, bool, error) {
	readable, hup := pollPipe(fd)
	if readable {
		return 1, false, nil
	}
	return 0, hup, nil
}
