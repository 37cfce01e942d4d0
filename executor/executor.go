// Package executor provides the three worker pools the discovery and
// eventing core schedules its blocking work on: an unbounded server
// pool for long-lived receive loops, a bounded pool for short-lived
// sends, and a single FIFO worker for user-visible callbacks.
package executor

import (
	"context"
	"runtime"
	"sync"

	"github.com/thejerf/suture/v4"

	"github.com/lanctl/upnpcp/logging"
)

// ServeFunc adapts a plain cancellable function to suture.Service so it
// can be supervised by the server pool.
type ServeFunc func(ctx context.Context) error

// Serve implements suture.Service.
func (f ServeFunc) Serve(ctx context.Context) error { return f(ctx) }

// Executors bundles the server, I/O and callback pools behind a single
// lifecycle. One Executors is normally shared by every ssdp.Server and
// gena.Manager in a control point.
type Executors struct {
	l logging.Logger

	serverSpv *suture.Supervisor
	serverCtx context.Context
	serverCan context.CancelFunc

	ioSem  chan struct{}
	ioWG   sync.WaitGroup
	ioDone chan struct{}

	cbCh   chan func()
	cbDone chan struct{}
	cbWG   sync.WaitGroup

	mu         sync.Mutex
	terminated bool
}

// New creates an Executors with ioConcurrency bounded I/O workers. A
// value <= 0 selects min(runtime.NumCPU()*2, 8), the I/O pool's
// recommended default.
func New(l logging.Logger, ioConcurrency int) *Executors {
	if ioConcurrency <= 0 {
		ioConcurrency = runtime.NumCPU() * 2
		if ioConcurrency > 8 {
			ioConcurrency = 8
		}
		if ioConcurrency < 1 {
			ioConcurrency = 1
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Executors{
		l:         l.Named("executor"),
		serverSpv: suture.NewSimple("server-pool"),
		serverCtx: ctx,
		serverCan: cancel,
		ioSem:     make(chan struct{}, ioConcurrency),
		ioDone:    make(chan struct{}),
		cbCh:      make(chan func(), 64),
		cbDone:    make(chan struct{}),
	}
	go func() {
		_ = e.serverSpv.Serve(e.serverCtx)
	}()
	e.cbWG.Add(1)
	go e.runCallbacks()
	return e
}

// SubmitServer schedules a long-lived task (typically a receive loop)
// on the server pool. The task runs until it returns or the Executors
// is terminated; it is never restarted by the supervisor on our
// behalf since a receive loop's own owner (the Datagram Server) is
// responsible for noticing completion and re-opening if desired.
func (e *Executors) SubmitServer(task func(ctx context.Context) error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminated {
		return
	}
	e.serverSpv.Add(ServeFunc(func(ctx context.Context) error {
		_ = task(ctx)
		return suture.ErrDoNotRestart
	}))
}

// SubmitIO schedules a short-lived task (send, descriptor fetch) on the
// bounded I/O pool. It returns false without running task if the pool
// is saturated or terminated — the caller logs and drops, per the I/O
// pool's reject-on-saturation discipline.
func (e *Executors) SubmitIO(task func()) bool {
	e.mu.Lock()
	if e.terminated {
		e.mu.Unlock()
		return false
	}
	e.mu.Unlock()

	select {
	case e.ioSem <- struct{}{}:
	default:
		e.l.Debugw("io pool saturated, dropping task")
		return false
	}
	e.ioWG.Add(1)
	go func() {
		defer func() {
			<-e.ioSem
			e.ioWG.Done()
		}()
		task()
	}()
	return true
}

// SubmitCallback enqueues a user-visible notification on the single
// FIFO callback worker, preserving delivery order. It returns false if
// the Executors has been terminated.
func (e *Executors) SubmitCallback(task func()) bool {
	e.mu.Lock()
	if e.terminated {
		e.mu.Unlock()
		return false
	}
	e.mu.Unlock()

	select {
	case e.cbCh <- task:
		return true
	case <-e.cbDone:
		return false
	}
}

func (e *Executors) runCallbacks() {
	defer e.cbWG.Done()
	for {
		select {
		case task := <-e.cbCh:
			task()
		case <-e.cbDone:
			return
		}
	}
}

// Terminate stops all three pools. Submissions made after Terminate
// returns silently return false. Terminate waits for in-flight I/O and
// callback tasks to finish but does not wait for server-pool tasks,
// which observe ctx cancellation cooperatively on their own schedule.
func (e *Executors) Terminate() {
	e.mu.Lock()
	if e.terminated {
		e.mu.Unlock()
		return
	}
	e.terminated = true
	e.mu.Unlock()

	e.serverCan()
	close(e.cbDone)
	e.cbWG.Wait()
	e.ioWG.Wait()
}
