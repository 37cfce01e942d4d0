// Package upnp holds the data model a control point builds from a
// discovered device: the parsed device description document (DDD),
// its services' SCPD documents, and icon binaries loaded on demand.
package upnp

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"time"
)

// DeviceSpec is the set of fields UPnP mandates in a device
// description document, independent of how many services or icons it
// advertises.
type DeviceSpec struct {
	DeviceType       string `xml:"deviceType"`
	FriendlyName     string `xml:"friendlyName"`
	Manufacturer     string `xml:"manufacturer"`
	ManufacturerURL  string `xml:"manufacturerURL"`
	ModelDescription string `xml:"modelDescription"`
	ModelName        string `xml:"modelName"`
	ModelNumber      string `xml:"modelNumber"`
	ModelURL         string `xml:"modelURL"`
	UDN              string `xml:"UDN"`
	UPC              string `xml:"UPC"`
}

// Device is a control point's view of a discovered device: the parsed
// DDD plus the base URL it was fetched relative to, needed to resolve
// every relative URL the document contains (icons, SCPDURL,
// controlURL, eventSubURL).
type Device struct {
	DeviceSpec
	UDN      UDN
	Icons    []Icon
	Services []*ServiceDesc

	BaseURL   *url.URL
	FetchedAt time.Time
}

type rootDocument struct {
	XMLName     xml.Name    `xml:"root"`
	SpecVersion specVersion `xml:"specVersion"`
	URLBase     string      `xml:"URLBase"`
	Device      deviceDoc   `xml:"device"`
}

type specVersion struct {
	Major int `xml:"major"`
	Minor int `xml:"minor"`
}

type deviceDoc struct {
	DeviceSpec
	Icons    []Icon         `xml:"iconList>icon"`
	Services []*ServiceDesc `xml:"serviceList>service"`
}

// ParseDescription decodes a device description document fetched from
// location into a Device. baseURL is location itself unless the
// document supplies its own URLBase, per the UPnP device description
// spec; every relative URL in the document (icon, control, event
// subscription, SCPD) is resolved against it before returning.
func ParseDescription(data []byte, location *url.URL) (*Device, error) {
	var doc rootDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("upnp: parsing device description: %w", err)
	}

	base := location
	if doc.URLBase != "" {
		u, err := url.Parse(doc.URLBase)
		if err == nil {
			base = u
		}
	}

	dev := &Device{
		DeviceSpec: doc.Device.DeviceSpec,
		UDN:        ParseUDN(doc.Device.DeviceSpec.UDN),
		Icons:      doc.Device.Icons,
		Services:   doc.Device.Services,
		BaseURL:    base,
	}
	for i := range dev.Icons {
		dev.Icons[i].resolve(base)
	}
	for _, s := range dev.Services {
		s.resolve(base)
	}
	return dev, nil
}

// DeviceTypes returns dev's device type together with every earlier
// version it is backward-compatible with, per UPnP's versioned URN
// convention (e.g. a MediaServer:2 also satisfies MediaServer:1).
func (d *Device) DeviceTypes() ([]string, error) {
	return ExpandTypes(d.DeviceType)
}

// ServiceTypes returns the service type URN of every service dev
// advertises.
func (d *Device) ServiceTypes() (res []string) {
	for _, s := range d.Services {
		res = append(res, s.ServiceType)
	}
	return
}

// ServiceByType returns the first service advertising serviceType or
// any of its earlier compatible versions, matching the loosest UPnP
// control-point convention of accepting a caller-specified base type.
func (d *Device) ServiceByType(serviceType string) *ServiceDesc {
	wanted, err := ExpandTypes(serviceType)
	if err != nil {
		wanted = []string{serviceType}
	}
	for _, s := range d.Services {
		for _, w := range wanted {
			if s.ServiceType == w {
				return s
			}
		}
	}
	return nil
}
