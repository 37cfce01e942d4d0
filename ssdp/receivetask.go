package ssdp

import (
	"context"
	"net"
	"sync"
	"time"
)

// Receiver is invoked for each accepted datagram, in receive order, on
// the goroutine running the receive loop.
type Receiver interface {
	OnReceive(source *net.UDPAddr, data []byte)
}

// receiveTask implements the receive loop: join (for the notify
// role), signal ready, loop until cancelled, leave. It borrows conn
// for its lifetime and never closes it — the
// owning Server is exclusively responsible for socket lifecycle.
//
// A task is scheduled on the shared server pool, whose context is only
// cancelled wholesale on Executors.Terminate. Server.Stop needs to
// cancel a single task without tearing down the pool, so each task
// also carries its own stop signal; the loop exits on whichever fires
// first.
type receiveTask struct {
	conn        multicastConn
	iface       *net.Interface
	group       net.IP
	bindPort    int
	receiver    Receiver
	readTimeout time.Duration

	readyOnce sync.Once
	ready     chan struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
}

func newReceiveTask(conn multicastConn, iface *net.Interface, group net.IP, bindPort int, receiver Receiver, readTimeout time.Duration) *receiveTask {
	return &receiveTask{
		conn:        conn,
		iface:       iface,
		group:       group,
		bindPort:    bindPort,
		receiver:    receiver,
		readTimeout: readTimeout,
		ready:       make(chan struct{}),
		stopCh:      make(chan struct{}),
	}
}

// cancel requests the loop stop. Idempotent.
func (t *receiveTask) cancel() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// waitReady blocks until the loop has joined its group (or, for the
// search role, reached the loop head), the task is cancelled, or
// timeout elapses, whichever comes first.
func (t *receiveTask) waitReady(timeout time.Duration) bool {
	select {
	case <-t.ready:
		return true
	case <-t.stopCh:
		return false
	case <-time.After(timeout):
		return false
	}
}

func (t *receiveTask) markReady() {
	t.readyOnce.Do(func() { close(t.ready) })
}

func (t *receiveTask) cancelled() bool {
	select {
	case <-t.stopCh:
		return true
	default:
		return false
	}
}

// run is the receiveTask's server-pool body. Any IO error other than a
// read timeout terminates the loop and is returned to the server pool;
// the task is not restarted. poolCtx is the shared
// server-pool lifetime, cancelled only on Executors.Terminate; the
// task's own stopCh (set by Server.Stop) is checked independently so
// one server can be stopped without affecting its siblings.
func (t *receiveTask) run(poolCtx context.Context) error {
	if t.bindPort == ssdpNotifyPort {
		if err := t.conn.JoinGroup(t.iface, &net.UDPAddr{IP: t.group}); err != nil {
			return err
		}
	}
	t.markReady()

	buf := make([]byte, 1500)
	for {
		if t.cancelled() {
			t.leaveGroup()
			return nil
		}
		select {
		case <-poolCtx.Done():
			t.leaveGroup()
			return nil
		default:
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(t.readTimeout))
		n, src, err := t.conn.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			t.leaveGroup()
			return err
		}

		if t.cancelled() {
			t.leaveGroup()
			return nil
		}

		if udpSrc, ok := src.(*net.UDPAddr); ok {
			t.receiver.OnReceive(udpSrc, append([]byte(nil), buf[:n]...))
		}
	}
}

func (t *receiveTask) leaveGroup() {
	if t.bindPort == ssdpNotifyPort {
		_ = t.conn.LeaveGroup(t.iface, &net.UDPAddr{IP: t.group})
	}
}
