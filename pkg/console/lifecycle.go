package console

import (
	"errors"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ExitCodeUnknown is returned by ExitCode when the code cannot be queried.
const ExitCodeUnknown = math.MinInt32

// resources are the handles a Process owns. They are tracked apart from the
// Process so that the host-exit registry does not keep a Process reachable.
type resources struct {
	h     Handles
	log   *logrus.Entry
	grace time.Duration

	terminate atomic.Bool // kill the child on release
	closed    atomic.Bool

	// hmu is held while the handles are released and while another
	// goroutine uses the child handle, so a released handle is never used.
	hmu sync.Mutex
	once      sync.Once
	err       error

	mu       sync.Mutex
	exitCode int
	exited   bool
}

func newResources(h Handles, log *logrus.Entry, keepAlive bool, grace time.Duration) *resources {
	r := &resources{h: h, log: log, grace: grace, exitCode: ExitCodeUnknown}
	r.terminate.Store(!keepAlive)
	return r
}

// wait blocks up to timeout for the child and caches its exit code.
func (r *resources) wait(timeout time.Duration) bool {
	r.mu.Lock()
	exited := r.exited
	r.mu.Unlock()
	if exited {
		return true
	}
	if r.closed.Load() {
		return false
	}

	exited, err := r.h.Child.Wait(timeout)
	if err != nil {
		r.log.WithError(err).Debug("wait for console process failed")
		return false
	}
	if !exited {
		return false
	}
	code, err := r.h.Child.ExitCode()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.exited {
		r.exited = true
		if err == nil {
			r.exitCode = code
		}
	}
	return true
}

func (r *resources) release() error {
	r.once.Do(func() {
		unregister(r)

		var errs []error
		if err := r.h.Stdin.Close(); err != nil {
			errs = append(errs, osError("close", err))
		}
		if r.terminate.Load() && !r.wait(r.grace) {
			r.log.Debug("terminating console process on close")
			if err := r.h.Child.Terminate(1); err != nil {
				errs = append(errs, osError("terminate", err))
			}
			r.wait(r.grace)
		}
		r.wait(0)

		r.hmu.Lock()
		r.closed.Store(true)
		if err := r.h.Stdout.Close(); err != nil {
			errs = append(errs, osError("close", err))
		}
		if err := r.h.Child.Close(); err != nil {
			errs = append(errs, osError("close", err))
		}
		r.hmu.Unlock()
		r.err = errors.Join(errs...)
		r.log.Debug("console process released")
	})
	return r.err
}

func closeHandles(h Handles) {
	h.Stdin.Close()
	h.Stdout.Close()
	h.Child.Close()
}

// ExitCode waits for the child to exit and returns its exit code, or
// ExitCodeUnknown if it cannot be determined.
func (p *Process) ExitCode() int {
	if !p.res.wait(-1) {
		return ExitCodeUnknown
	}
	p.res.mu.Lock()
	defer p.res.mu.Unlock()
	return p.res.exitCode
}

// Exited reports whether the child has exited.
func (p *Process) Exited() bool {
	return p.res.wait(0)
}

// TerminateNow kills the child immediately with the given exit code. Close
// no longer needs to terminate it afterwards.
func (p *Process) TerminateNow(code int) error {
	p.res.hmu.Lock()
	defer p.res.hmu.Unlock()
	if p.res.closed.Load() {
		return ErrClosed
	}
	p.res.terminate.Store(false)
	if p.res.wait(0) {
		return nil
	}
	p.log.WithField("code", code).Debug("terminating console process")
	if err := p.res.h.Child.Terminate(code); err != nil {
		return osError("terminate", err)
	}
	return nil
}

// Close closes the child's input, terminates the child if it does not exit
// within Config.CloseGrace (unless Config.KeepAlive is set), and releases
// all handles. Close is safe to call more than once.
func (p *Process) Close() error {
	runtime.SetFinalizer(p, nil)
	return p.res.release()
}

func (p *Process) finalize() {
	if p.res.closed.Load() {
		return
	}
	p.log.Warn("console process was not closed; releasing it from the finalizer")
	p.res.release()
}

var live = struct {
	sync.Mutex
	m map[*resources]struct{}
}{m: make(map[*resources]struct{})}

func register(r *resources) {
	live.Lock()
	live.m[r] = struct{}{}
	live.Unlock()
}

func unregister(r *resources) {
	live.Lock()
	delete(live.m, r)
	live.Unlock()
}

// TerminateAll kills every still running child of open Processes that
// would be terminated on Close. Hosts call it on shutdown so that children
// are not orphaned. It returns the number of children terminated.
func TerminateAll() int {
	live.Lock()
	rs := make([]*resources, 0, len(live.m))
	for r := range live.m {
		rs = append(rs, r)
	}
	live.Unlock()

	n := 0
	for _, r := range rs {
		if r.terminateAtShutdown() {
			n++
		}
	}
	return n
}

func (r *resources) terminateAtShutdown() bool {
	r.hmu.Lock()
	defer r.hmu.Unlock()
	// Released after the snapshot was taken.
	if r.closed.Load() || !r.terminate.Load() || r.wait(0) {
		return false
	}
	if err := r.h.Child.Terminate(1); err != nil {
		r.log.WithError(err).Warn("failed to terminate console process at shutdown")
		return false
	}
	r.log.Debug("terminated console process at shutdown")
	return true
}
