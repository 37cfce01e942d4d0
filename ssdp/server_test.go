package ssdp

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/lanctl/upnpcp/addrmode"
	"github.com/lanctl/upnpcp/executor"
	"github.com/lanctl/upnpcp/logging"
)

func testLogger() logging.Logger {
	return logging.New(logging.Config{OutputPaths: []string{"/dev/null"}})
}

type noopReceiver struct{}

func (noopReceiver) OnReceive(source *net.UDPAddr, data []byte) {}

type fakeWrite struct {
	data []byte
	dst  net.Addr
}

// fakeMulticastConn stands in for a real ipv4Conn/ipv6Conn, the same
// way gena/manager_test.go's fakeRequester stands in for an HTTP round
// trip: Server/receiveTask only ever touch it through the
// multicastConn interface, so no real socket is needed to exercise
// their logic.
type fakeMulticastConn struct {
	mu      sync.Mutex
	writes  []fakeWrite
	writeCh chan struct{}
}

func newFakeMulticastConn() *fakeMulticastConn {
	return &fakeMulticastConn{writeCh: make(chan struct{}, 8)}
}

func (c *fakeMulticastConn) JoinGroup(ifi *net.Interface, group net.Addr) error  { return nil }
func (c *fakeMulticastConn) LeaveGroup(ifi *net.Interface, group net.Addr) error { return nil }
func (c *fakeMulticastConn) SetTTL(ttl int) error                                { return nil }
func (c *fakeMulticastConn) SetReadDeadline(t time.Time) error                   { return nil }
func (c *fakeMulticastConn) LocalAddr() net.Addr                                 { return nil }
func (c *fakeMulticastConn) Close() error                                        { return nil }

func (c *fakeMulticastConn) ReadFrom(b []byte) (int, net.Addr, error) {
	select {}
}

func (c *fakeMulticastConn) WriteTo(b []byte, dst net.Addr) (int, error) {
	c.mu.Lock()
	c.writes = append(c.writes, fakeWrite{append([]byte(nil), b...), dst})
	c.mu.Unlock()
	select {
	case c.writeCh <- struct{}{}:
	default:
	}
	return len(b), nil
}

func (c *fakeMulticastConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func testServer(conn multicastConn, task *receiveTask) *Server {
	return &Server{
		mode:      addrmode.IPv4,
		iface:     &net.Interface{Name: "lo0"},
		bindPort:  ssdpNotifyPort,
		executors: executor.New(testLogger(), 2),
		l:         testLogger(),
		conn:      conn,
		task:      task,
	}
}

// TestSendNoopsBeforeReady proves Send drops the message without
// writing anything if the receive task has not yet signalled ready.
func TestSendNoopsBeforeReady(t *testing.T) {
	conn := newFakeMulticastConn()
	task := newReceiveTask(conn, &net.Interface{Name: "lo0"}, addrmode.IPv4.GroupAddress(), ssdpNotifyPort, noopReceiver{}, DefaultReadTimeout)
	s := testServer(conn, task)
	defer s.executors.Terminate()

	s.Send(NewMSearch(addrmode.IPv4, "ssdp:all", 2))

	select {
	case <-conn.writeCh:
		t.Fatalf("Send wrote a packet before the task was ready")
	case <-time.After(ReadyWait + 200*time.Millisecond):
	}
	if n := conn.writeCount(); n != 0 {
		t.Errorf("writeCount = %d, want 0", n)
	}
}

// TestSendWritesOncePacketOnceReady proves that once the receive task
// is ready, Send transmits exactly one packet to the mode's multicast
// socket address.
func TestSendWritesOncePacketOnceReady(t *testing.T) {
	conn := newFakeMulticastConn()
	task := newReceiveTask(conn, &net.Interface{Name: "lo0"}, addrmode.IPv4.GroupAddress(), ssdpNotifyPort, noopReceiver{}, DefaultReadTimeout)
	task.markReady()
	s := testServer(conn, task)
	defer s.executors.Terminate()

	msg := NewMSearch(addrmode.IPv4, "ssdp:all", 2)
	s.Send(msg)

	select {
	case <-conn.writeCh:
	case <-time.After(time.Second):
		t.Fatalf("Send never wrote a packet once ready")
	}

	if n := conn.writeCount(); n != 1 {
		t.Fatalf("writeCount = %d, want 1", n)
	}
	got := conn.writes[0]
	want := addrmode.IPv4.SocketAddress()
	if got.dst.String() != want.String() {
		t.Errorf("dst = %v, want %v", got.dst, want)
	}
	if string(got.data) != string(msg.WriteData()) {
		t.Errorf("data mismatch")
	}
}
