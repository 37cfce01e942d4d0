package ssdp

import (
	"net"
	"testing"
	"time"

	"github.com/lanctl/upnpcp/addrmode"
)

func TestParseNotify(t *testing.T) {
	data := []byte("NOTIFY * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"CACHE-CONTROL: max-age=120\r\n" +
		"LOCATION: http://192.168.1.10:80/device.xml\r\n" +
		"NT: urn:schemas-upnp-org:device:MediaServer:1\r\n" +
		"NTS: ssdp:alive\r\n" +
		"USN: uuid:abc-123::urn:schemas-upnp-org:device:MediaServer:1\r\n" +
		"\r\n")
	source := &net.UDPAddr{IP: net.ParseIP("192.168.1.10"), Port: 1900}
	iface := net.ParseIP("192.168.1.5")
	now := time.Now()

	msg, err := Parse(data, source, iface, 24, now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Method != "NOTIFY" {
		t.Errorf("Method = %q, want NOTIFY", msg.Method)
	}
	if msg.NTS != "ssdp:alive" {
		t.Errorf("NTS = %q", msg.NTS)
	}
	if msg.Location != "http://192.168.1.10:80/device.xml" {
		t.Errorf("Location = %q", msg.Location)
	}
	if msg.MaxAge != 120*time.Second {
		t.Errorf("MaxAge = %v, want 120s", msg.MaxAge)
	}
	if !msg.Expiry.Equal(now.Add(120 * time.Second)) {
		t.Errorf("Expiry = %v", msg.Expiry)
	}
	if msg.UUID != "uuid:abc-123" || msg.Type != "urn:schemas-upnp-org:device:MediaServer:1" {
		t.Errorf("UUID/Type = %q / %q", msg.UUID, msg.Type)
	}
	if !msg.ValidSegment {
		t.Errorf("ValidSegment = false, want true (same /24)")
	}
}

func TestParseHTTPResponse(t *testing.T) {
	data := []byte("HTTP/1.1 200 OK\r\n" +
		"CACHE-CONTROL: max-age=1800\r\n" +
		"LOCATION: http://10.0.0.2:8080/desc.xml\r\n" +
		"USN: uuid:xyz::upnp:rootdevice\r\n" +
		"\r\n")
	source := &net.UDPAddr{IP: net.ParseIP("10.0.0.2"), Port: 4000}
	msg, err := Parse(data, source, net.ParseIP("10.0.0.9"), 24, time.Now())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Method != "" {
		t.Errorf("Method = %q, want empty for a response frame", msg.Method)
	}
	if msg.UUID != "uuid:xyz" || msg.Type != "upnp:rootdevice" {
		t.Errorf("UUID/Type = %q / %q", msg.UUID, msg.Type)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse(nil, nil, nil, 0, time.Now()); err != ErrInvalidMessage {
		t.Errorf("empty payload: err = %v, want ErrInvalidMessage", err)
	}
	if _, err := Parse([]byte("not http at all\r\n\r\n"), nil, nil, 0, time.Now()); err != ErrInvalidMessage {
		t.Errorf("garbage payload: err = %v, want ErrInvalidMessage", err)
	}
}

func TestParseDefaultsMaxAge(t *testing.T) {
	data := []byte("NOTIFY * HTTP/1.1\r\nNTS: ssdp:alive\r\n\r\n")
	msg, err := Parse(data, nil, nil, 0, time.Now())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.MaxAge != defaultMaxAge {
		t.Errorf("MaxAge = %v, want default %v", msg.MaxAge, defaultMaxAge)
	}
}

func TestValidSegmentRejectsDifferentSubnet(t *testing.T) {
	data := []byte("NOTIFY * HTTP/1.1\r\nNTS: ssdp:alive\r\n\r\n")
	source := &net.UDPAddr{IP: net.ParseIP("172.16.5.5")}
	msg, err := Parse(data, source, net.ParseIP("192.168.1.5"), 24, time.Now())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.ValidSegment {
		t.Errorf("ValidSegment = true, want false for a mismatched /24")
	}
}

func TestNewMSearchWriteData(t *testing.T) {
	m := NewMSearch(addrmode.IPv4, "upnp:rootdevice", 3)
	data := string(m.WriteData())
	want := "M-SEARCH * HTTP/1.1\r\n" +
		"Host: 239.255.255.250:1900\r\n" +
		"Man: \"ssdp:discover\"\r\n" +
		"Mx: 3\r\n" +
		"St: upnp:rootdevice\r\n" +
		"\r\n"
	if data != want {
		t.Errorf("WriteData mismatch:\ngot:  %q\nwant: %q", data, want)
	}
}
