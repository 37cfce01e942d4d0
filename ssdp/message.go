package ssdp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lanctl/upnpcp/addrmode"
)

// ErrInvalidMessage marks a datagram that does not parse as an
// HTTP-shaped SSDP frame. Per the error taxonomy, messages carrying
// this error are dropped silently and never logged above debug level —
// UPnP networks are noisy.
var ErrInvalidMessage = errors.New("ssdp: invalid message")

const defaultMaxAge = 1800 * time.Second

var maxAgeRe = regexp.MustCompile(`(?i)max-age\s*=\s*([0-9]+)`)

// Message is an immutable, parsed SSDP datagram: a NOTIFY, an
// M-SEARCH, or an HTTP-response frame received in reply to one.
type Message struct {
	StartLine string
	Method    string // "" for HTTP-response frames
	Header    http.Header

	Source           *net.UDPAddr
	InterfaceAddress net.IP
	ReceivedAt       time.Time

	UUID string
	Type string

	NTS      string
	Location string
	MaxAge   time.Duration
	Expiry   time.Time

	// ValidSegment is true iff Source lies within the subnet described
	// by InterfaceAddress/prefixLen, as supplied to Parse.
	ValidSegment bool
}

// Parse decodes an SSDP UDP payload received on ifaceAddr (with the
// given subnet prefix length) from source at receivedAt. It never
// returns anything but ErrInvalidMessage on failure — SSDP traffic on
// a LAN segment is expected to include noise from unrelated protocols
// and malformed frames must never be treated as an error condition
// worth surfacing above debug level.
func Parse(data []byte, source *net.UDPAddr, ifaceAddr net.IP, prefixLen int, receivedAt time.Time) (*Message, error) {
	if len(data) == 0 {
		return nil, ErrInvalidMessage
	}
	text := string(data)
	var startLine, method string
	var header http.Header

	if strings.HasPrefix(text, "HTTP/") {
		resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(data)), nil)
		if err != nil {
			return nil, ErrInvalidMessage
		}
		defer resp.Body.Close()
		startLine = fmt.Sprintf("%s %s", resp.Proto, resp.Status)
		header = resp.Header
	} else {
		req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, ErrInvalidMessage
		}
		startLine = fmt.Sprintf("%s %s %s", req.Method, req.URL.RequestURI(), req.Proto)
		method = req.Method
		header = req.Header
	}

	m := &Message{
		StartLine:        startLine,
		Method:           method,
		Header:           header,
		Source:           source,
		InterfaceAddress: ifaceAddr,
		ReceivedAt:       receivedAt,
		NTS:              header.Get("NTS"),
		Location:         header.Get("LOCATION"),
	}
	m.MaxAge = parseMaxAge(header.Get("CACHE-CONTROL"))
	m.Expiry = receivedAt.Add(m.MaxAge)
	m.UUID, m.Type = parseUSN(header.Get("USN"))
	if source != nil {
		m.ValidSegment = validSegment(source.IP, ifaceAddr, prefixLen)
	}
	return m, nil
}

func parseMaxAge(cacheControl string) time.Duration {
	if cacheControl == "" {
		return defaultMaxAge
	}
	sub := maxAgeRe.FindStringSubmatch(cacheControl)
	if sub == nil {
		return defaultMaxAge
	}
	n, err := strconv.Atoi(sub[1])
	if err != nil {
		return defaultMaxAge
	}
	return time.Duration(n) * time.Second
}

func parseUSN(usn string) (uuid, typ string) {
	if !strings.HasPrefix(strings.ToLower(usn), "uuid") {
		return "", ""
	}
	if idx := strings.Index(usn, "::"); idx >= 0 {
		return usn[:idx], usn[idx+2:]
	}
	return usn, ""
}

// validSegment implements the standard subnet match: true iff source
// and iface share the top prefixLen bits. A negative or unknown
// prefixLen (interface address could not be matched) is treated as no
// match.
func validSegment(source, iface net.IP, prefixLen int) bool {
	if prefixLen < 0 || iface == nil || source == nil {
		return false
	}
	mask := net.CIDRMask(prefixLen, len(iface)*8)
	s4, i4 := source.To4(), iface.To4()
	if s4 != nil && i4 != nil {
		return s4.Mask(net.CIDRMask(prefixLen, 32)).Equal(i4.Mask(net.CIDRMask(prefixLen, 32)))
	}
	s16, i16 := source.To16(), iface.To16()
	if s16 == nil || i16 == nil {
		return false
	}
	return s16.Mask(mask).Equal(i16.Mask(mask))
}

// canonicalHeader normalizes a header key the way textproto does, so
// callers can look headers up regardless of the wire casing UPnP
// devices happen to use.
func canonicalHeader(key string) string {
	return textproto.CanonicalMIMEHeaderKey(key)
}

// OutboundMessage builds the bytes for a message this control point
// sends: an M-SEARCH request or a NOTIFY. Header order is preserved as
// added, matching UPnP devices' tendency to be strict about framing
// even though HTTP itself does not care.
type OutboundMessage struct {
	StartLine string
	headers   []string
	values    []string
}

// NewMSearch builds the M-SEARCH * HTTP/1.1 request for the given
// search target, response window (MX, seconds) and multicast mode.
func NewMSearch(mode addrmode.Mode, searchTarget string, mx int) *OutboundMessage {
	m := &OutboundMessage{StartLine: "M-SEARCH * HTTP/1.1"}
	m.addHeader("HOST", mode.String())
	m.addHeader("MAN", `"ssdp:discover"`)
	m.addHeader("MX", strconv.Itoa(mx))
	m.addHeader("ST", searchTarget)
	return m
}

func (m *OutboundMessage) addHeader(key, value string) {
	m.headers = append(m.headers, canonicalHeader(key))
	m.values = append(m.values, value)
}

// WriteData serializes the message with canonical HTTP/1.1 line
// endings and no trailing body.
func (m *OutboundMessage) WriteData() []byte {
	var b bytes.Buffer
	b.WriteString(m.StartLine)
	b.WriteString("\r\n")
	for i, key := range m.headers {
		fmt.Fprintf(&b, "%s: %s\r\n", key, m.values[i])
	}
	b.WriteString("\r\n")
	return b.Bytes()
}
