package upnp

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
)

// ServiceDesc is one <service> entry from a device description
// document: the URLs a control point needs to fetch its SCPD, invoke
// its actions, and subscribe to its events.
type ServiceDesc struct {
	ServiceType string `xml:"serviceType"`
	ServiceID   string `xml:"serviceId"`
	ControlURL  string `xml:"controlURL"`
	EventSubURL string `xml:"eventSubURL"`
	SCPDURL     string `xml:"SCPDURL"`

	SCPD *SCPD `xml:"-"`
}

// resolve rewrites every URL field to an absolute URL, relative to
// base, in place.
func (s *ServiceDesc) resolve(base *url.URL) {
	s.ControlURL = resolveURL(base, s.ControlURL)
	s.EventSubURL = resolveURL(base, s.EventSubURL)
	s.SCPDURL = resolveURL(base, s.SCPDURL)
}

func resolveURL(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// SCPD is a service's parsed control protocol description: every
// action it exposes and the state variables its arguments relate to.
type SCPD struct {
	XMLName           xml.Name            `xml:"scpd"`
	SpecVersion       specVersion         `xml:"specVersion"`
	ActionList        []ActionDesc        `xml:"actionList>action"`
	ServiceStateTable []StateVariableDesc `xml:"serviceStateTable>stateVariable"`
}

// ActionDesc describes one action's name and arguments.
type ActionDesc struct {
	Name      string         `xml:"name"`
	Arguments []ArgumentDesc `xml:"argumentList>argument"`
}

// ArgumentDesc describes one action argument.
type ArgumentDesc struct {
	Name            string `xml:"name"`
	Direction       string `xml:"direction"`
	RelatedStateVar string `xml:"relatedStateVariable"`
}

// StateVariableDesc describes one service state variable, including
// whether it participates in eventing.
type StateVariableDesc struct {
	SendEvents    string    `xml:"sendEvents,attr"`
	Name          string    `xml:"name"`
	DataType      string    `xml:"dataType"`
	AllowedValues *[]string `xml:"allowedValueList>allowedValue,omitempty"`
}

// ActionByName looks up an action by name, as a control point does
// before building the SOAP request for it.
func (s *SCPD) ActionByName(name string) (ActionDesc, bool) {
	for _, a := range s.ActionList {
		if a.Name == name {
			return a, true
		}
	}
	return ActionDesc{}, false
}

// EventedVariables returns the names of every state variable this
// service marks with sendEvents="yes" — the set a GENA subscription
// to this service can deliver changes for.
func (s *SCPD) EventedVariables() (names []string) {
	for _, v := range s.ServiceStateTable {
		if v.SendEvents == "yes" {
			names = append(names, v.Name)
		}
	}
	return
}

// ParseSCPD decodes a service's control protocol description
// document.
func ParseSCPD(data []byte) (*SCPD, error) {
	var scpd SCPD
	if err := xml.Unmarshal(data, &scpd); err != nil {
		return nil, fmt.Errorf("upnp: parsing scpd: %w", err)
	}
	return &scpd, nil
}

var versionedTypeRe = regexp.MustCompile(`^(urn:schemas-upnp-org:(?:service|device):[^:]+:)(\d+)$`)

// ExpandTypes returns t together with every earlier version of the
// same versioned URN, in descending order (t first). A URN that does
// not follow the versioned-URN convention is returned unchanged, as
// its sole element.
func ExpandTypes(t string) (ts []string, err error) {
	subs := versionedTypeRe.FindStringSubmatch(t)
	if subs == nil {
		return []string{t}, nil
	}
	v, err := strconv.Atoi(subs[2])
	if err != nil {
		return nil, err
	}
	for ; v >= 1; v-- {
		ts = append(ts, fmt.Sprintf("%s%d", subs[1], v))
	}
	return ts, nil
}
