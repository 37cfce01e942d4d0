// Package soap builds and parses the SOAP envelopes UPnP action
// invocation runs over: request encoding, response/fault decoding, and
// the HTTP round trip that ties them together.
package soap

import (
	"encoding/xml"
	"fmt"
)

// Fault is the wire shape of a SOAP Fault, exactly as a UPnP device
// returns it in the response body when an action invocation fails.
type Fault struct {
	XMLName xml.Name    `xml:"Fault"`
	Code    string      `xml:"faultcode"`
	Message string      `xml:"faultstring"`
	Actor   string      `xml:"faultactor,omitempty"`
	Detail  FaultDetail `xml:"detail"`
}

// FaultDetail holds the raw XML of a Fault's <detail> element, since
// its content (a UPnPError, typically) is defined by the service, not
// by SOAP itself.
type FaultDetail struct {
	Raw []byte `xml:",innerxml"`
}

func (f *Fault) Error() string {
	return f.Message
}

// ConvertError wraps any non-Fault error as a client-side SOAP Fault,
// or passes an existing one through unchanged.
func ConvertError(code string, err error) *Fault {
	if fault, ok := err.(*Fault); ok {
		return fault
	}
	return &Fault{Code: code, Message: err.Error()}
}

// Errorf builds a Fault directly, for callers that detect a violation
// before ever sending a request (a malformed action name, say).
func Errorf(code, msg string, args ...interface{}) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(msg, args...)}
}
