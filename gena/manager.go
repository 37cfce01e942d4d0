package gena

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lanctl/upnpcp/executor"
	"github.com/lanctl/upnpcp/logging"
)

// ErrSubscribeFailed names the failure of a SUBSCRIBE/RENEW/UNSUBSCRIBE
// round trip that does not satisfy the wire contract: non-200 response,
// missing SID, or an unparseable TIMEOUT. Manager reports such failures
// by returning false; it does not return or log this value.
var ErrSubscribeFailed = errors.New("gena: subscribe failed")

// Endpoint is the service-side collaborator the manager subscribes
// to: enough to build the wire request and to key the registry.
type Endpoint interface {
	// ID uniquely identifies the subscribable service, typically
	// "<device-UDN>/<service-id>".
	ID() string
	EventSubURL() string
	LocalAddress() net.IP
}

// Listener receives asynchronous lifecycle notifications the manager
// cannot return synchronously from subscribe/unsubscribe.
type Listener interface {
	OnExpired(sub *Subscription)
}

// Requester is the transport Manager sends GENA requests over;
// *HTTPClient satisfies it.
type Requester interface {
	Request(ctx context.Context, method, rawURL string, reqHeaders http.Header) (status int, headers http.Header, err error)
}

// renewalMargin is how far ahead of expiry the scheduler renews a
// lease: the larger of a fixed floor and a fraction of the lease
// itself, so a long lease is not renewed needlessly early while a
// short one still gets a safety margin.
const (
	renewalMarginFloor         = 10 * time.Second
	renewalMarginFractionOfTTL = 0.10
)

// Manager is the Subscription Manager: it owns the registry of active
// subscriptions and the background renewal scheduler that keeps them
// alive without caller intervention.
type Manager struct {
	http      Requester
	eventPort int
	executors *executor.Executors
	l         logging.Logger
	listener  Listener

	mu    sync.Mutex
	subs  map[string]*Subscription
	queue renewalQueue
	wake  chan struct{}
}

// NewManager builds a Manager. eventPort is the bound port of the
// event callback server (0 is legal but produces a CALLBACK header
// with no explicit port, relying on HTTP's default).
func NewManager(executors *executor.Executors, l logging.Logger, http Requester, eventPort int, listener Listener) *Manager {
	m := &Manager{
		http:      http,
		eventPort: eventPort,
		executors: executors,
		l:         l.Named("gena.manager"),
		listener:  listener,
		subs:      make(map[string]*Subscription),
		wake:      make(chan struct{}, 1),
	}
	executors.SubmitServer(m.runScheduler)
	return m
}

// Subscribe subscribes to endpoint, renewing an existing lease if one
// is already tracked rather than starting a fresh SUBSCRIBE. On
// success, the subscription is registered with the renewal scheduler
// when keepRenew is set.
func (m *Manager) Subscribe(ctx context.Context, endpoint Endpoint, keepRenew bool) bool {
	m.mu.Lock()
	sub, exists := m.subs[endpoint.ID()]
	m.mu.Unlock()

	if exists && sub.SID != "" {
		return m.renew(ctx, endpoint, sub, keepRenew)
	}
	return m.subscribeNew(ctx, endpoint, keepRenew)
}

// RenewSubscribe renews endpoint's lease if it holds a SID, else
// performs a fresh SUBSCRIBE without registering for auto-renewal.
func (m *Manager) RenewSubscribe(ctx context.Context, endpoint Endpoint) bool {
	m.mu.Lock()
	sub, exists := m.subs[endpoint.ID()]
	m.mu.Unlock()

	if exists && sub.SID != "" {
		return m.renew(ctx, endpoint, sub, sub.KeepRenew)
	}
	return m.subscribeNew(ctx, endpoint, false)
}

// Unsubscribe sends UNSUBSCRIBE and clears endpoint's tracked
// subscription regardless of the wire result — a device that does not
// answer is not worth retrying, and the manager must not hold state
// for an endpoint the caller has given up on.
func (m *Manager) Unsubscribe(ctx context.Context, endpoint Endpoint) bool {
	m.mu.Lock()
	sub, exists := m.subs[endpoint.ID()]
	if exists {
		sub.State = Unsubscribing
		delete(m.subs, endpoint.ID())
		m.queue.remove(sub)
	}
	m.mu.Unlock()

	if !exists {
		return true
	}
	m.signalWake()

	headers := http.Header{}
	headers.Set("SID", sub.SID)
	headers.Set("Content-Length", "0")
	status, _, err := m.http.Request(ctx, "UNSUBSCRIBE", endpoint.EventSubURL(), headers)
	m.mu.Lock()
	sub.State = Unsubscribed
	m.mu.Unlock()
	if err != nil {
		logging.ForSubscription(m.l, sub.SID).Debugw("unsubscribe failed", "endpoint", endpoint.ID(), "error", err.Error())
		return false
	}
	return status == http.StatusOK
}

func (m *Manager) subscribeNew(ctx context.Context, endpoint Endpoint, keepRenew bool) bool {
	// Registered as Subscribing before the round trip even starts, so a
	// caller reading sub.State mid-flight observes the SUBSCRIBE in
	// progress rather than jumping straight from Unsubscribed to Active.
	sub := &Subscription{
		Endpoint:  endpoint,
		KeepRenew: keepRenew,
		State:     Subscribing,
		heapIndex: -1,
	}
	m.mu.Lock()
	m.subs[endpoint.ID()] = sub
	m.mu.Unlock()

	headers := http.Header{}
	headers.Set("NT", "upnp:event")
	headers.Set("Callback", m.callbackHeader(endpoint))
	headers.Set("Timeout", fmt.Sprintf("Second-%d", int(DefaultSubscriptionTimeout/time.Second)))
	headers.Set("Content-Length", "0")

	status, respHeaders, err := m.http.Request(ctx, "SUBSCRIBE", endpoint.EventSubURL(), headers)
	if err != nil {
		m.l.Debugw("subscribe failed", "endpoint", endpoint.ID(), "error", err.Error())
		m.forgetPending(endpoint, sub)
		return false
	}
	sid, timeout, ok := parseSubscribeResponse(status, respHeaders)
	if !ok {
		m.forgetPending(endpoint, sub)
		return false
	}

	m.mu.Lock()
	sub.SID = sid
	sub.Start = time.Now()
	sub.Timeout = timeout
	sub.State = Active
	if sub.KeepRenew {
		heapPush(&m.queue, sub)
	}
	m.mu.Unlock()
	m.signalWake()
	return true
}

// forgetPending drops sub from the registry if it is still the entry
// registered for endpoint, undoing subscribeNew's provisional
// Subscribing registration after a failed SUBSCRIBE.
func (m *Manager) forgetPending(endpoint Endpoint, sub *Subscription) {
	m.mu.Lock()
	if current, ok := m.subs[endpoint.ID()]; ok && current == sub {
		delete(m.subs, endpoint.ID())
	}
	m.mu.Unlock()
}

func (m *Manager) renew(ctx context.Context, endpoint Endpoint, sub *Subscription, keepRenew bool) bool {
	sid := sub.SID

	m.mu.Lock()
	sub.State = Renewing
	m.mu.Unlock()

	headers := http.Header{}
	headers.Set("SID", sid)
	headers.Set("Timeout", fmt.Sprintf("Second-%d", int(DefaultSubscriptionTimeout/time.Second)))
	headers.Set("Content-Length", "0")

	status, respHeaders, err := m.http.Request(ctx, "SUBSCRIBE", endpoint.EventSubURL(), headers)
	if err != nil {
		logging.ForSubscription(m.l, sid).Debugw("renew failed", "endpoint", endpoint.ID(), "error", err.Error())
		m.revertRenewing(sub)
		return false
	}

	m.mu.Lock()
	current, stillTracked := m.subs[endpoint.ID()]
	if !stillTracked || current.SID != sid {
		// Lost the race with a concurrent Unsubscribe, or the SID was
		// rotated out from under us: this response is stale.
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()

	newSID, timeout, ok := parseSubscribeResponse(status, respHeaders)
	if !ok {
		m.revertRenewing(sub)
		return false
	}
	if newSID != sid {
		// A device that hands back a different SID has effectively
		// dropped the old subscription; the caller must full-subscribe.
		logging.ForSubscription(m.l, sid).Debugw("renew returned a different SID, treating as failure", "endpoint", endpoint.ID())
		m.revertRenewing(sub)
		return false
	}

	m.mu.Lock()
	current, stillTracked = m.subs[endpoint.ID()]
	if !stillTracked || current.SID != sid {
		m.mu.Unlock()
		return false
	}
	current.Start = time.Now()
	current.Timeout = timeout
	current.KeepRenew = keepRenew
	current.State = Active
	m.queue.remove(current)
	if keepRenew {
		heapPush(&m.queue, current)
	}
	m.mu.Unlock()
	m.signalWake()
	return true
}

// revertRenewing restores sub to Active after a failed RENEW: the old
// lease is not expiring just because one renewal attempt failed, so
// the scheduler will simply try again as Expiry approaches.
func (m *Manager) revertRenewing(sub *Subscription) {
	m.mu.Lock()
	if sub.State == Renewing {
		sub.State = Active
	}
	m.mu.Unlock()
}

func (m *Manager) callbackHeader(endpoint Endpoint) string {
	ip := endpoint.LocalAddress()
	if m.eventPort == 0 {
		return fmt.Sprintf("<http://%s/>", ip.String())
	}
	return fmt.Sprintf("<http://%s/>", net.JoinHostPort(ip.String(), strconv.Itoa(m.eventPort)))
}

func (m *Manager) signalWake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// runScheduler is the manager's server-pool body: it sleeps until the
// earliest tracked lease needs renewing, renews it, and repeats. It
// re-reads the earliest expiry after every subscribe, renew and
// unsubscribe via wake,
// so a fresh subscription with a shorter lease preempts a longer
// sleep already in progress.
func (m *Manager) runScheduler(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		m.mu.Lock()
		next := m.queue.peek()
		m.mu.Unlock()

		var wait time.Duration
		if next == nil {
			wait = time.Hour
		} else {
			wait = time.Until(next.Expiry().Add(-renewalMargin(next.Timeout)))
			if wait < 0 {
				wait = 0
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return nil
		case <-m.wake:
			continue
		case <-timer.C:
		}

		m.renewDue(ctx)
	}
}

func (m *Manager) renewDue(ctx context.Context) {
	now := time.Now()
	for {
		m.mu.Lock()
		next := m.queue.peek()
		if next == nil || time.Until(next.Expiry().Add(-renewalMargin(next.Timeout))) > 0 {
			m.mu.Unlock()
			return
		}
		m.queue.remove(next)
		m.mu.Unlock()

		if next.expired(now) {
			m.expire(next)
			continue
		}
		if !m.renew(ctx, next.Endpoint, next, true) {
			m.expire(next)
		}
	}
}

func (m *Manager) expire(sub *Subscription) {
	m.mu.Lock()
	if current, ok := m.subs[sub.Endpoint.ID()]; ok && current == sub {
		delete(m.subs, sub.Endpoint.ID())
	}
	m.mu.Unlock()

	sub.State = Expired
	logging.ForSubscription(m.l, sub.SID).Debugw("subscription expired", "endpoint", sub.Endpoint.ID())
	if m.listener != nil {
		m.executors.SubmitCallback(func() {
			m.listener.OnExpired(sub)
		})
	}
}

func renewalMargin(timeout time.Duration) time.Duration {
	fraction := time.Duration(float64(timeout) * renewalMarginFractionOfTTL)
	if fraction > renewalMarginFloor {
		return fraction
	}
	return renewalMarginFloor
}

func parseSubscribeResponse(status int, headers http.Header) (sid string, timeout time.Duration, ok bool) {
	if status != http.StatusOK {
		return "", 0, false
	}
	sid = headers.Get("SID")
	if sid == "" {
		return "", 0, false
	}
	timeout, ok = parseTimeout(headers.Get("Timeout"))
	if !ok {
		return "", 0, false
	}
	return sid, timeout, true
}

// parseTimeout accepts "Second-<N>" or the deprecated "infinite",
// which UPnP 1.1 maps to the default lease rather than an unbounded
// one.
func parseTimeout(header string) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if strings.EqualFold(header, "infinite") {
		return DefaultSubscriptionTimeout, true
	}
	const prefix = "Second-"
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(prefix)) {
		return 0, false
	}
	n, err := strconv.Atoi(header[len(prefix):])
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}
