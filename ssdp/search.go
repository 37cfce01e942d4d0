package ssdp

import (
	"net"
	"time"

	"github.com/lanctl/upnpcp/addrmode"
	"github.com/lanctl/upnpcp/executor"
	"github.com/lanctl/upnpcp/logging"
)

// SearchResponseListener receives parsed unicast M-SEARCH responses.
type SearchResponseListener interface {
	OnSearchResponse(msg *Message)
}

// SearchResponder is the ephemeral-port role of the Datagram Server
// Core: it emits M-SEARCH datagrams to the multicast group and
// receives the unicast responses devices send back.
type SearchResponder struct {
	server   *Server
	mode     addrmode.Mode
	listener SearchResponseListener
}

// NewSearchResponder constructs a SearchResponder bound to iface in
// mode. Its bind port is always 0 (ephemeral, search role — no group
// join).
func NewSearchResponder(executors *executor.Executors, l logging.Logger, mode addrmode.Mode, iface *net.Interface, listener SearchResponseListener) (*SearchResponder, error) {
	sr := &SearchResponder{mode: mode, listener: listener}
	server, err := New(executors, l, mode, iface, 0, sr)
	if err != nil {
		return nil, err
	}
	sr.server = server
	return sr, nil
}

func (sr *SearchResponder) Open() error  { return sr.server.Open() }
func (sr *SearchResponder) Start() error { return sr.server.Start() }
func (sr *SearchResponder) Stop()        { sr.server.Stop() }
func (sr *SearchResponder) Close() error { return sr.server.Close() }

// Search emits an M-SEARCH for searchTarget with the given MX
// (response window, seconds). Delivery is best-effort, exactly like
// any other Server.Send: dropped silently if the receive task is not
// yet ready.
func (sr *SearchResponder) Search(searchTarget string, mx int) {
	sr.server.Send(NewMSearch(sr.mode, searchTarget, mx))
}

// OnReceive implements ssdp.Receiver.
func (sr *SearchResponder) OnReceive(source *net.UDPAddr, data []byte) {
	msg, err := Parse(data, source, sr.server.InterfaceAddress(), sr.server.PrefixLength(), time.Now())
	if err != nil {
		return
	}
	sr.listener.OnSearchResponse(msg)
}
