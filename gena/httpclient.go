// Package gena implements the General Event Notification Architecture
// half of the control point: subscribing to service state changes,
// keeping leases renewed, and receiving the resulting NOTIFY
// callbacks.
package gena

import (
	"context"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds how long a single SUBSCRIBE/RENEW/UNSUBSCRIBE
// round trip may take before the manager treats it as a failure.
const DefaultTimeout = 10 * time.Second

// HTTPClient is the minimal synchronous request/response surface the
// Subscription Manager needs: an absolute URL, a method, headers, and
// a response carrying a status code and headers. It carries no
// GENA-specific knowledge.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient builds an HTTPClient with the given round-trip
// timeout.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// Do implements soap.Doer, so the same facade can carry SOAP action
// invocations alongside GENA control traffic.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

// Request sends method to rawURL with the given headers and no body,
// returning the response status and headers. The response body is
// always drained and closed; GENA responses carry none of interest.
func (c *HTTPClient) Request(ctx context.Context, method, rawURL string, headers http.Header) (status int, respHeaders http.Header, err error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, nil, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	return resp.StatusCode, resp.Header, nil
}
