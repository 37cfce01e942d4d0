package gena

import (
	"context"
	"io"
	"log"
	"net"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/lanctl/upnpcp/executor"
	"github.com/lanctl/upnpcp/logging"
)

// notifyLoggerKey is the context key handleNotify uses to pull the
// callback server's logger back out of the request context logNotify
// attached it to, a few middleware layers up.
type notifyLoggerKey struct{}

// logNotify is the mux middleware NewCallbackServer registers on the
// NOTIFY route: it attaches l to the request context so handleNotify
// can derive a per-subscription logger from it via
// logging.ForSubscription once it has read the SID header.
func logNotify(l logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), notifyLoggerKey{}, l)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// notifyLogger retrieves the Logger logNotify attached to ctx. It
// panics if called outside a request that passed through logNotify —
// handleNotify is only ever reached via the router that registers it.
func notifyLogger(ctx context.Context) logging.Logger {
	l, ok := ctx.Value(notifyLoggerKey{}).(logging.Logger)
	if !ok {
		log.Panic("gena: handleNotify reached without its request logger attached")
	}
	return l
}

// NotificationListener receives a parsed NOTIFY event body, keyed by
// the subscription ID the device sent it under.
type NotificationListener interface {
	OnNotify(sid string, seq int, body []byte)
}

// CallbackServer is the HTTP endpoint UPnP devices deliver GENA
// NOTIFY requests to. Its address is what Manager's CALLBACK header
// points a device at during SUBSCRIBE.
type CallbackServer struct {
	executors *executor.Executors
	listener  NotificationListener
	l         logging.Logger

	router *mux.Router
	ln     net.Listener
	srv    *http.Server
}

// NewCallbackServer builds a CallbackServer that will listen on addr
// (":0" for an ephemeral port) once Start is called.
func NewCallbackServer(executors *executor.Executors, l logging.Logger, listener NotificationListener) *CallbackServer {
	l = l.Named("gena.callback")
	r := mux.NewRouter()
	cs := &CallbackServer{executors: executors, listener: listener, l: l, router: r}

	r.Methods("NOTIFY").Path("/").HandlerFunc(cs.handleNotify)
	r.Use(logNotify(l))

	cs.srv = &http.Server{Handler: handlers.LoggingHandler(notifyAccessLogWriter{l}, r)}
	return cs
}

// Start binds addr and submits the accept loop to the server pool. It
// must be called at most once.
func (cs *CallbackServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	cs.ln = ln
	cs.executors.SubmitServer(cs.serve)
	return nil
}

// Addr returns the bound address, valid only after Start succeeds.
func (cs *CallbackServer) Addr() net.Addr {
	if cs.ln == nil {
		return nil
	}
	return cs.ln.Addr()
}

// Port returns the bound TCP port, valid only after Start succeeds.
func (cs *CallbackServer) Port() int {
	if tcpAddr, ok := cs.Addr().(*net.TCPAddr); ok {
		return tcpAddr.Port
	}
	return 0
}

func (cs *CallbackServer) serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = cs.srv.Close()
	}()
	err := cs.srv.Serve(cs.ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close shuts the HTTP server down; the server pool's serve loop
// observes the resulting error and returns.
func (cs *CallbackServer) Close() error {
	return cs.srv.Close()
}

func (cs *CallbackServer) handleNotify(w http.ResponseWriter, r *http.Request) {
	l := notifyLogger(r.Context())

	sid := r.Header.Get("SID")
	if sid == "" {
		l.Debugw("rejecting NOTIFY with no SID")
		http.Error(w, "missing SID", http.StatusPreconditionFailed)
		return
	}
	l = logging.ForSubscription(l, sid)
	seq := parseSeq(r.Header.Get("SEQ"))

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		l.Debugw("error reading NOTIFY body", "error", err.Error())
		http.Error(w, "error reading body", http.StatusBadRequest)
		return
	}
	l.Debugw("received NOTIFY", "seq", seq)

	// Handed to the callback pool before responding, so a slow user
	// handler never delays the 200 OK the device is waiting on.
	cs.executors.SubmitCallback(func() {
		cs.listener.OnNotify(sid, seq, body)
	})
	w.WriteHeader(http.StatusOK)
}

func parseSeq(header string) int {
	var seq int
	for _, c := range header {
		if c < '0' || c > '9' {
			return 0
		}
		seq = seq*10 + int(c-'0')
	}
	return seq
}

// notifyAccessLogWriter adapts logging.Logger to the io.Writer
// gorilla/handlers.LoggingHandler writes Apache-style access log
// lines to.
type notifyAccessLogWriter struct {
	l logging.Logger
}

func (w notifyAccessLogWriter) Write(p []byte) (int, error) {
	w.l.Debugw("access", "line", string(p))
	return len(p), nil
}
