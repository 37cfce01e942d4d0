package soap

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"

	"go.uber.org/zap/buffer"

	"github.com/lanctl/upnpcp/logging"
)

var bufferPool = buffer.NewPool()

// Doer is the subset of *http.Client an Invoker needs; gena.HTTPClient
// satisfies it, and tests can substitute a fake.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Invoker sends SOAP action requests and decodes their responses. It
// holds no per-call state, so a single Invoker is shared across every
// service on every discovered device.
type Invoker struct {
	http Doer
	l    logging.Logger
}

// NewInvoker builds an Invoker that sends requests through client.
func NewInvoker(client Doer, l logging.Logger) *Invoker {
	return &Invoker{http: client, l: l.Named("soap")}
}

// Invoke calls the action named actionName, defined by serviceType, at
// controlURL. args is marshalled as the request's sole child element;
// on success, the device's response payload is unmarshalled into
// reply. On a SOAP fault, Invoke returns a *Fault; on any other
// failure (transport, malformed response), it returns a plain error.
func (inv *Invoker) Invoke(ctx context.Context, controlURL, serviceType, actionName string, args, reply interface{}) error {
	body, err := inv.buildRequest(serviceType, actionName, args)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, controlURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPAction", fmt.Sprintf(`"%s#%s"`, serviceType, actionName))

	resp, err := inv.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return inv.decodeResponse(resp, reply)
}

func (inv *Invoker) buildRequest(serviceType, actionName string, args interface{}) (*bytes.Reader, error) {
	b := bufferPool.Get()
	defer b.Free()

	if _, err := b.Write(envelopeHeader); err != nil {
		return nil, err
	}
	enc := xml.NewEncoder(b)
	start := xml.StartElement{Name: xml.Name{Space: serviceType, Local: actionName}}
	if err := enc.EncodeElement(args, start); err != nil {
		return nil, err
	}
	if _, err := b.Write(envelopeFooter); err != nil {
		return nil, err
	}
	return bytes.NewReader(append([]byte(nil), b.Bytes()...)), nil
}

func (inv *Invoker) decodeResponse(resp *http.Response, reply interface{}) error {
	var env responseEnvelope
	if err := xml.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 400 {
			return Errorf("s:Client", "http status %s", resp.Status)
		}
		return err
	}
	if env.Body.Fault != nil {
		return env.Body.Fault
	}
	if reply == nil {
		return nil
	}
	return xml.Unmarshal(env.Body.Payload, reply)
}
