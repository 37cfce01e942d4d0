// Package ssdp implements the SSDP discovery substrate: the
// per-interface datagram server core, SSDP message parsing, the
// notify-receiver and search-responder roles built on it, and the
// pure LOCATION validator.
package ssdp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/lanctl/upnpcp/addrmode"
	"github.com/lanctl/upnpcp/executor"
	"github.com/lanctl/upnpcp/logging"
)

// ssdpNotifyPort is the bind port that selects the notify role (join
// the multicast group). Any other bind port, canonically 0, selects
// the ephemeral search role.
const ssdpNotifyPort = 1900

// DefaultReadTimeout is the receive loop's socket read timeout — the
// sole mechanism that makes Stop responsive when closing the socket
// from another goroutine does not reliably unblock a pending read.
const DefaultReadTimeout = 750 * time.Millisecond

// ReadyWait bounds how long Send waits for a just-started receive task
// to finish joining its group before giving up on the send.
const ReadyWait = 500 * time.Millisecond

// ErrInvalidState is returned by Start when called before Open.
var ErrInvalidState = errors.New("ssdp: not open")

// Server is the per-(interface, mode, role) multicast socket owner:
// Open/Close manage the socket, Start/Stop manage the receive task,
// Send dispatches outbound datagrams through the bound I/O pool.
type Server struct {
	mode      addrmode.Mode
	iface     *net.Interface
	ifaceAddr net.IP
	prefixLen int
	bindPort  int

	executors   *executor.Executors
	receiver    Receiver
	readTimeout time.Duration
	l           logging.Logger

	mu   sync.Mutex
	conn multicastConn
	task *receiveTask
}

// New creates a Server bound to iface in mode, listening on bindPort
// (1900 selects the notify/join role, 0 the ephemeral search role).
// Construction fails with addrmode.ErrNoSuitableAddress if iface lacks
// an address of mode's family.
func New(executors *executor.Executors, l logging.Logger, mode addrmode.Mode, iface *net.Interface, bindPort int, receiver Receiver) (*Server, error) {
	addr, err := mode.PickInterfaceAddress(iface)
	if err != nil {
		return nil, err
	}
	role := "search"
	if bindPort == ssdpNotifyPort {
		role = "notify"
	}
	return &Server{
		mode:        mode,
		iface:       iface,
		ifaceAddr:   addr,
		prefixLen:   addrmode.PrefixLength(iface, addr),
		bindPort:    bindPort,
		executors:   executors,
		receiver:    receiver,
		readTimeout: DefaultReadTimeout,
		l:           l.Named(fmt.Sprintf("ssdp.%s.%s", role, iface.Name)),
	}, nil
}

// InterfaceAddress returns the local address this server binds to on
// its interface.
func (s *Server) InterfaceAddress() net.IP { return s.ifaceAddr }

// PrefixLength returns the subnet prefix length of InterfaceAddress.
func (s *Server) PrefixLength() int { return s.prefixLen }

// Open creates the multicast socket. It is idempotent: calling Open on
// an already-open Server closes the prior socket first.
func (s *Server) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.stopLocked()
		_ = s.conn.Close()
		s.conn = nil
	}
	conn, err := openMulticastSocket(s.mode, s.iface, s.bindPort)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// Close stops the receive task and releases the socket. Safe to call
// from any goroutine, and idempotent.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Start begins the receive loop on the server pool. It requires Open
// to have been called first and is idempotent: a running task is
// stopped and replaced.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrInvalidState
	}
	s.stopLocked()

	task := newReceiveTask(s.conn, s.iface, s.mode.GroupAddress(), s.bindPort, s.receiver, s.readTimeout)
	s.task = task
	s.executors.SubmitServer(task.run)
	return nil
}

// Stop signals the receive task to cancel and returns immediately. The
// loop observes cancellation on its next iteration or read-timeout
// boundary; Stop does not wait for it to exit.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Server) stopLocked() {
	// The server-pool context is shared across the whole pool and only
	// cancelled on Executors.Terminate, so Stop() cancels this one task
	// through its own stop channel and then drops the reference.
	if s.task != nil {
		s.task.cancel()
		s.task = nil
	}
}

// Send serializes and transmits message to the mode's multicast
// SocketAddress via the bound I/O pool. It is a no-op if no receive
// task exists or the task is not yet ready to send.
func (s *Server) Send(message *OutboundMessage) {
	s.executors.SubmitIO(func() {
		s.mu.Lock()
		task := s.task
		conn := s.conn
		s.mu.Unlock()
		if task == nil || conn == nil {
			return
		}
		if !task.waitReady(ReadyWait) {
			return
		}
		data := message.WriteData()
		if _, err := conn.WriteTo(data, s.mode.SocketAddress()); err != nil {
			s.l.Debugw("send failed", "error", err.Error())
		}
	})
}
