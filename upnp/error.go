package upnp

import (
	"encoding/xml"
	"fmt"

	"github.com/lanctl/upnpcp/soap"
)

// Error is the UPnPError detail element a device embeds in a SOAP
// Fault when an action invocation fails for a UPnP-defined reason
// (as opposed to a transport failure).
type Error struct {
	XMLName xml.Name `xml:"urn:schemas-upnp-org:control-1-0 UPnPError"`
	Code    uint     `xml:"errorCode"`
	Desc    string   `xml:"errorDescription"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Desc)
}

const (
	InvalidActionErrorCode        = 401
	InvalidArgsErrorCode          = 402
	ActionFailedErrorCode         = 501
	ArgumentValueInvalidErrorCode = 600
)

var (
	InvalidActionError        = Errorf(InvalidActionErrorCode, "Invalid Action")
	ArgumentValueInvalidError = Errorf(ArgumentValueInvalidErrorCode, "The argument value is invalid")
)

// Errorf builds an Error from the given code and description.
func Errorf(code uint, tpl string, args ...interface{}) *Error {
	return &Error{Code: code, Desc: fmt.Sprintf(tpl, args...)}
}

// ConvertError normalizes any action-invocation error into an *Error:
// a *soap.Fault carrying a UPnPError detail is unwrapped to it, a bare
// *Error passes through, and anything else (a transport failure, a
// malformed response) is reported as ActionFailed.
func ConvertError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	if fault, ok := err.(*soap.Fault); ok {
		if e, ok := detailError(fault); ok {
			return e
		}
		return Errorf(ActionFailedErrorCode, fault.Message)
	}
	return Errorf(ActionFailedErrorCode, err.Error())
}

func detailError(fault *soap.Fault) (*Error, bool) {
	if len(fault.Detail.Raw) == 0 {
		return nil, false
	}
	var e Error
	if err := xml.Unmarshal(fault.Detail.Raw, &e); err != nil {
		return nil, false
	}
	return &e, true
}
