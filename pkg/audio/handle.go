package audio

import (
	"context"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// KillWait is how long a terminated player process may take to exit before
// it is killed.
const KillWait = time.Second

// HandleKind tags what backs a playback Handle.
type HandleKind int

const (
	KindNone HandleKind = iota
	KindProcess
	KindManaged
)

// String returns human-readable kind
func (k HandleKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindProcess:
		return "process"
	case KindManaged:
		return "managed"
	default:
		return "unknown"
	}
}

// Handle owns one playing clip. Stop releases it exactly once whatever the
// backend: a player process gets SIGTERM, then SIGKILL after KillWait; a
// managed playback gets its stop function. Wait blocks until playback ends.
type Handle struct {
	kind HandleKind
	done chan struct{}
	stop func()

	mu  sync.Mutex
	err error

	stopOnce  sync.Once
	requested atomic.Bool
}

var commandContext = exec.CommandContext

// NoHandle returns a handle for nothing; it is already finished.
func NoHandle() *Handle {
	h := &Handle{kind: KindNone, done: make(chan struct{}), stop: func() {}}
	close(h.done)
	return h
}

// StartProcess launches an external player and returns its handle.
func StartProcess(name string, args ...string) (*Handle, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := commandContext(ctx, name, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = KillWait

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, err
	}

	h := &Handle{kind: KindProcess, done: make(chan struct{}), stop: cancel}
	go func() {
		err := cmd.Wait()
		cancel()
		h.finish(err)
	}()
	return h, nil
}

// NewManaged wraps in-process playback. stop must make done close.
func NewManaged(stop func(), done <-chan struct{}) *Handle {
	h := &Handle{kind: KindManaged, done: make(chan struct{}), stop: stop}
	go func() {
		<-done
		h.finish(nil)
	}()
	return h
}

func (h *Handle) finish(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// Kind returns the backing variant.
func (h *Handle) Kind() HandleKind {
	if h == nil {
		return KindNone
	}
	return h.kind
}

// Done is closed when playback has ended.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until playback ends. A stopped process reports no error.
func (h *Handle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.requested.Load() {
		return nil
	}
	return h.err
}

// Halt asks the backend to stop and returns without waiting. A process that
// ignores SIGTERM is killed KillWait later by the handle's own goroutine.
func (h *Handle) Halt() {
	if h == nil {
		return
	}
	h.stopOnce.Do(func() {
		h.requested.Store(true)
		h.stop()
	})
}

// Stop ends playback and waits for the backend to let go. Safe to call
// repeatedly and on nil handles.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.Halt()
	<-h.done
}
