//go:build windows

package console

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
	"unicode/utf16"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modkernel32       = windows.NewLazySystemDLL("kernel32.dll")
	procPeekNamedPipe = modkernel32.NewProc("PeekNamedPipe")
)

const stillActive = 259

// winPipe uses synchronous ReadFile/PeekNamedPipe on the raw handle; the Go
// runtime's asynchronous file layer does not serve anonymous pipes.
type winPipe struct {
	h windows.Handle
}

func (p *winPipe) Read(b []byte) (int, error) {
	var n uint32
	if err := windows.ReadFile(p.h, b, &n, nil); err != nil {
		// The child closed its end: normal end of output.
		if errors.Is(err, windows.ERROR_BROKEN_PIPE) {
			return int(n), io.EOF
		}
		return int(n), fmt.Errorf("ReadFile: %w", err)
	}
	return int(n), nil
}

func (p *winPipe) Available() (int, error) {
	var avail uint32
	r1, _, err := procPeekNamedPipe.Call(uintptr(p.h), 0, 0, 0, uintptr(unsafe.Pointer(&avail)), 0)
	if r1 == 0 {
		if errors.Is(err, windows.ERROR_BROKEN_PIPE) {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("PeekNamedPipe: %w", err)
	}
	return int(avail), nil
}

func (p *winPipe) Close() error { return windows.CloseHandle(p.h) }

type winWriter struct {
	h windows.Handle
}

func (w *winWriter) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	var n uint32
	if err := windows.WriteFile(w.h, b, &n, nil); err != nil {
		return int(n), fmt.Errorf("WriteFile: %w", err)
	}
	return int(n), nil
}

func (w *winWriter) Close() error { return windows.CloseHandle(w.h) }

type winChild struct {
	h   windows.Handle
	job windows.Handle // kill-on-close job, 0 with KeepAlive
	pid int
}

func (c *winChild) Pid() int { return c.pid }

func (c *winChild) Wait(timeout time.Duration) (bool, error) {
	ms := uint32(windows.INFINITE)
	if timeout >= 0 {
		ms = uint32(timeout / time.Millisecond)
	}
	ev, err := windows.WaitForSingleObject(c.h, ms)
	if err != nil {
		return false, fmt.Errorf("WaitForSingleObject: %w", err)
	}
	return ev == windows.WAIT_OBJECT_0, nil
}

func (c *winChild) ExitCode() (int, error) {
	var code uint32
	if err := windows.GetExitCodeProcess(c.h, &code); err != nil {
		return ExitCodeUnknown, fmt.Errorf("GetExitCodeProcess: %w", err)
	}
	if code == stillActive {
		if exited, _ := c.Wait(0); !exited {
			return ExitCodeUnknown, errors.New("process has not exited")
		}
	}
	return int(int32(code)), nil
}

func (c *winChild) Terminate(code int) error {
	if err := windows.TerminateProcess(c.h, uint32(code)); err != nil {
		// Access is denied once the process is gone.
		if exited, _ := c.Wait(0); exited {
			return nil
		}
		return fmt.Errorf("TerminateProcess: %w", err)
	}
	return nil
}

func (c *winChild) Close() error {
	err := windows.CloseHandle(c.h)
	if c.job != 0 {
		err = errors.Join(err, windows.CloseHandle(c.job))
	}
	return err
}

// spawnChild starts cfg.Command hidden, with stdin and merged
// stdout/stderr on anonymous pipes. Only the child's pipe ends are
// inheritable, and only they are passed through the handle list.
func spawnChild(cfg Config) (Handles, error) {
	sa := &windows.SecurityAttributes{InheritHandle: 1}
	sa.Length = uint32(unsafe.Sizeof(*sa))

	var inR, inW, outR, outW windows.Handle
	if err := windows.CreatePipe(&inR, &inW, sa, 0); err != nil {
		return Handles{}, fmt.Errorf("create input pipe: %w", err)
	}
	if err := windows.CreatePipe(&outR, &outW, sa, 0); err != nil {
		closeAll(inR, inW)
		return Handles{}, fmt.Errorf("create output pipe: %w", err)
	}
	fail := func(err error) (Handles, error) {
		closeAll(inR, inW, outR, outW)
		return Handles{}, err
	}
	for _, h := range []windows.Handle{inW, outR} {
		if err := windows.SetHandleInformation(h, windows.HANDLE_FLAG_INHERIT, 0); err != nil {
			return fail(fmt.Errorf("SetHandleInformation: %w", err))
		}
	}

	attrs, err := windows.NewProcThreadAttributeList(1)
	if err != nil {
		return fail(fmt.Errorf("NewProcThreadAttributeList: %w", err))
	}
	defer attrs.Delete()
	inherit := []windows.Handle{inR, outW}
	err = attrs.Update(windows.PROC_THREAD_ATTRIBUTE_HANDLE_LIST,
		unsafe.Pointer(&inherit[0]), uintptr(len(inherit))*unsafe.Sizeof(inherit[0]))
	if err != nil {
		return fail(fmt.Errorf("UpdateProcThreadAttribute: %w", err))
	}

	si := windows.StartupInfoEx{ProcThreadAttributeList: attrs.List()}
	si.Cb = uint32(unsafe.Sizeof(si))
	si.Flags = windows.STARTF_USESTDHANDLES | windows.STARTF_USESHOWWINDOW
	si.ShowWindow = windows.SW_HIDE
	si.StdInput = inR
	si.StdOutput = outW
	si.StdErr = outW

	cmdLine, err := windows.UTF16PtrFromString(commandLine(cfg))
	if err != nil {
		return fail(err)
	}
	var dir *uint16
	if cfg.WorkDir != "" {
		if dir, err = windows.UTF16PtrFromString(cfg.WorkDir); err != nil {
			return fail(err)
		}
	}

	flags := uint32(windows.CREATE_NO_WINDOW | windows.CREATE_UNICODE_ENVIRONMENT |
		windows.EXTENDED_STARTUPINFO_PRESENT | windows.CREATE_SUSPENDED)

	var pi windows.ProcessInformation
	err = windows.CreateProcess(nil, cmdLine, nil, nil, true, flags,
		envBlock(environ(cfg)), dir, &si.StartupInfo, &pi)
	if err != nil {
		return fail(fmt.Errorf("CreateProcess: %w", err))
	}
	defer windows.CloseHandle(pi.Thread)

	// Close child-side ends in the parent.
	closeAll(inR, outW)

	child := &winChild{h: pi.Process, pid: int(pi.ProcessId)}
	if !cfg.KeepAlive {
		// The job dies with this process, and takes the child with it.
		if job, err := killOnCloseJob(); err == nil {
			if err := windows.AssignProcessToJobObject(job, pi.Process); err == nil {
				child.job = job
			} else {
				windows.CloseHandle(job)
			}
		}
	}
	if _, err := windows.ResumeThread(pi.Thread); err != nil {
		windows.TerminateProcess(pi.Process, 1)
		child.Close()
		closeAll(inW, outR)
		return Handles{}, fmt.Errorf("ResumeThread: %w", err)
	}

	return Handles{
		Stdin:  &winWriter{h: inW},
		Stdout: &winPipe{h: outR},
		Child:  child,
	}, nil
}

func killOnCloseJob() (windows.Handle, error) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return 0, err
	}
	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	_, err = windows.SetInformationJobObject(job, windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)), uint32(unsafe.Sizeof(info)))
	if err != nil {
		windows.CloseHandle(job)
		return 0, err
	}
	return job, nil
}

// commandLine quotes the program and its arguments for CreateProcess.
func commandLine(cfg Config) string {
	exe := cfg.Command
	if p, err := exec.LookPath(exe); err == nil {
		exe = p
	}
	parts := make([]string, 0, len(cfg.Args)+1)
	parts = append(parts, windows.EscapeArg(exe))
	for _, a := range cfg.Args {
		parts = append(parts, windows.EscapeArg(a))
	}
	return strings.Join(parts, " ")
}

// envBlock encodes env as a CREATE_UNICODE_ENVIRONMENT block; nil inherits.
func envBlock(env []string) *uint16 {
	if env == nil {
		return nil
	}
	var b []uint16
	for _, e := range env {
		b = append(b, utf16.Encode([]rune(e))...)
		b = append(b, 0)
	}
	b = append(b, 0)
	return &b[0]
}

func closeAll(hs ...windows.Handle) {
	for _, h := range hs {
		windows.CloseHandle(h)
	}
}
