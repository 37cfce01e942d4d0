package soap

import "encoding/xml"

var (
	envelopeHeader = []byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" ` +
		`s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/"><s:Body>`)
	envelopeFooter = []byte(`</s:Body></s:Envelope>`)
)

// responseEnvelope decodes either a well-formed action response body
// or a Fault, whichever the device sent. The action's reply element is
// captured raw (innerxml) so the caller can decode it into their own
// reply type without this package needing to know its shape.
type responseEnvelope struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Body    struct {
		Fault   *Fault `xml:"Fault"`
		Payload []byte `xml:",innerxml"`
	} `xml:"Body"`
}
