package ssdp

import (
	"net"

	"github.com/lanctl/upnpcp/addrmode"
	"github.com/lanctl/upnpcp/executor"
	"github.com/lanctl/upnpcp/logging"
)

// Discovery bundles one NotifyReceiver and one SearchResponder per
// (interface, address-mode) pair — the set of Datagram Servers a
// control point needs to discover devices on a given set of local
// interfaces, in both IPv4 and IPv6-link-local where available.
type Discovery struct {
	notify []*NotifyReceiver
	search []*SearchResponder
	l      logging.Logger
}

// NewDiscovery builds a Discovery across ifaces and modes. Interfaces
// lacking a suitable address for a given mode are skipped rather than
// failing the whole construction — a single interface without, say, a
// link-local IPv6 address should not prevent discovery on its IPv4
// address, or on other interfaces.
func NewDiscovery(executors *executor.Executors, l logging.Logger, ifaces []net.Interface, modes []addrmode.Mode, notifyListener NotificationListener, searchListener SearchResponseListener) *Discovery {
	l = l.Named("ssdp")
	d := &Discovery{l: l}
	for i := range ifaces {
		iface := ifaces[i]
		for _, mode := range modes {
			if nr, err := NewNotifyReceiver(executors, l, mode, &iface, notifyListener); err == nil {
				d.notify = append(d.notify, nr)
			} else {
				l.Debugw("skipping notify receiver", "iface", iface.Name, "mode", mode, "error", err.Error())
			}
			if sr, err := NewSearchResponder(executors, l, mode, &iface, searchListener); err == nil {
				d.search = append(d.search, sr)
			} else {
				l.Debugw("skipping search responder", "iface", iface.Name, "mode", mode, "error", err.Error())
			}
		}
	}
	return d
}

// Open opens every Datagram Server. It keeps going on individual
// failures, returning the last error seen, so one bad interface does
// not block discovery on the rest.
func (d *Discovery) Open() (err error) {
	for _, nr := range d.notify {
		if e := nr.Open(); e != nil {
			err = e
			d.l.Warnw("open failed", "error", e.Error())
		}
	}
	for _, sr := range d.search {
		if e := sr.Open(); e != nil {
			err = e
			d.l.Warnw("open failed", "error", e.Error())
		}
	}
	return
}

// Start starts every Datagram Server's receive loop.
func (d *Discovery) Start() (err error) {
	for _, nr := range d.notify {
		if e := nr.Start(); e != nil {
			err = e
		}
	}
	for _, sr := range d.search {
		if e := sr.Start(); e != nil {
			err = e
		}
	}
	return
}

// Stop stops every receive loop.
func (d *Discovery) Stop() {
	for _, nr := range d.notify {
		nr.Stop()
	}
	for _, sr := range d.search {
		sr.Stop()
	}
}

// Close closes every socket.
func (d *Discovery) Close() {
	for _, nr := range d.notify {
		_ = nr.Close()
	}
	for _, sr := range d.search {
		_ = sr.Close()
	}
}

// Search emits an M-SEARCH for searchTarget on every search
// responder — one per (interface, mode) pair — so a full discovery
// round reaches every local segment the process has a presence on.
func (d *Discovery) Search(searchTarget string, mx int) {
	for _, sr := range d.search {
		sr.Search(searchTarget, mx)
	}
}
