package ssdp

import (
	"net"
	"time"

	"github.com/lanctl/upnpcp/addrmode"
	"github.com/lanctl/upnpcp/executor"
	"github.com/lanctl/upnpcp/logging"
)

// NotificationListener receives parsed NOTIFY frames from a
// NotifyReceiver, in receive order.
type NotificationListener interface {
	OnNotify(msg *Message)
}

// NotifyReceiver is the port-1900, group-joining role of the Datagram
// Server Core: it receives multicast NOTIFY (and stray M-SEARCH
// responses reflected onto the group) and delivers parsed messages
// upward. Location validation is deliberately not applied here — it
// is the higher layer's responsibility to call IsInvalidLocation
// before treating a delivered Message as authoritative.
type NotifyReceiver struct {
	server   *Server
	listener NotificationListener
}

// NewNotifyReceiver constructs a NotifyReceiver bound to iface in mode.
func NewNotifyReceiver(executors *executor.Executors, l logging.Logger, mode addrmode.Mode, iface *net.Interface, listener NotificationListener) (*NotifyReceiver, error) {
	nr := &NotifyReceiver{listener: listener}
	server, err := New(executors, l, mode, iface, ssdpNotifyPort, nr)
	if err != nil {
		return nil, err
	}
	nr.server = server
	return nr, nil
}

// Open, Start, Stop and Close delegate to the underlying Server.
func (nr *NotifyReceiver) Open() error  { return nr.server.Open() }
func (nr *NotifyReceiver) Start() error { return nr.server.Start() }
func (nr *NotifyReceiver) Stop()        { nr.server.Stop() }
func (nr *NotifyReceiver) Close() error { return nr.server.Close() }

// OnReceive implements ssdp.Receiver. It parses each datagram and, on
// success, hands the resulting Message to the listener.
func (nr *NotifyReceiver) OnReceive(source *net.UDPAddr, data []byte) {
	msg, err := Parse(data, source, nr.server.InterfaceAddress(), nr.server.PrefixLength(), time.Now())
	if err != nil {
		return
	}
	nr.listener.OnNotify(msg)
}
