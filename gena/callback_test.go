package gena

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lanctl/upnpcp/executor"
)

type recordingListener struct {
	mu    sync.Mutex
	sids  []string
	seqs  []int
	bodys []string
}

func (l *recordingListener) OnNotify(sid string, seq int, body []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sids = append(l.sids, sid)
	l.seqs = append(l.seqs, seq)
	l.bodys = append(l.bodys, string(body))
}

func TestHandleNotifyDispatchesToListener(t *testing.T) {
	listener := &recordingListener{}
	ex := executor.New(testLogger(), 2)
	defer ex.Terminate()
	cs := NewCallbackServer(ex, testLogger(), listener)

	body := `<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0"><e:property><Volume>10</Volume></e:property></e:propertyset>`
	r := httptest.NewRequest("NOTIFY", "/", strings.NewReader(body))
	r.Header.Set("SID", "uuid:abc")
	r.Header.Set("SEQ", "3")
	w := httptest.NewRecorder()

	// Routed through the router (not handleNotify directly) so the
	// logNotify middleware runs first, exactly as it does in production.
	cs.router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		listener.mu.Lock()
		n := len(listener.sids)
		listener.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	listener.mu.Lock()
	defer listener.mu.Unlock()
	if len(listener.sids) != 1 || listener.sids[0] != "uuid:abc" {
		t.Fatalf("sids = %v", listener.sids)
	}
	if listener.seqs[0] != 3 {
		t.Errorf("seq = %d, want 3", listener.seqs[0])
	}
	if listener.bodys[0] != body {
		t.Errorf("body mismatch")
	}
}

func TestHandleNotifyRejectsMissingSID(t *testing.T) {
	ex := executor.New(testLogger(), 2)
	defer ex.Terminate()
	cs := NewCallbackServer(ex, testLogger(), &recordingListener{})

	r := httptest.NewRequest("NOTIFY", "/", strings.NewReader(""))
	w := httptest.NewRecorder()
	cs.router.ServeHTTP(w, r)

	if w.Code != http.StatusPreconditionFailed {
		t.Errorf("status = %d, want 412", w.Code)
	}
}

func TestParseSeq(t *testing.T) {
	cases := map[string]int{"0": 0, "42": 42, "": 0, "abc": 0}
	for in, want := range cases {
		if got := parseSeq(in); got != want {
			t.Errorf("parseSeq(%q) = %d, want %d", in, got, want)
		}
	}
}
