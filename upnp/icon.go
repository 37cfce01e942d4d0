package upnp

import (
	"bytes"
	"fmt"
	"io"
	"net/url"

	"github.com/h2non/filetype"
)

// Icon is one <icon> entry from a device description document. The
// advertised MIME type is kept for reference but is not trusted:
// Load sniffs the actual content instead, since devices are known to
// misreport it.
type Icon struct {
	Mimetype string `xml:"mimetype"`
	URL      string `xml:"url"`
	Width    int    `xml:"width"`
	Height   int    `xml:"height"`
	Depth    int    `xml:"depth"`

	data       []byte
	sniffedMIME string
}

func (icon *Icon) resolve(base *url.URL) {
	icon.URL = resolveURL(base, icon.URL)
}

// Load reads icon's binary content from r and sniffs its real MIME
// type. It replaces any content loaded by a previous call.
func (icon *Icon) Load(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("upnp: loading icon: %w", err)
	}
	kind, err := filetype.Match(data)
	if err != nil {
		return fmt.Errorf("upnp: sniffing icon type: %w", err)
	}
	icon.data = data
	if kind != filetype.Unknown {
		icon.sniffedMIME = kind.MIME.Value
	} else {
		icon.sniffedMIME = ""
	}
	return nil
}

// Loaded reports whether Load has been called successfully.
func (icon *Icon) Loaded() bool { return icon.data != nil }

// Data returns the icon's binary content, or nil if it has not been
// loaded.
func (icon *Icon) Data() []byte { return icon.data }

// ContentType returns the sniffed MIME type if Load succeeded and
// recognized the content, else the advertised Mimetype field.
func (icon *Icon) ContentType() string {
	if icon.sniffedMIME != "" {
		return icon.sniffedMIME
	}
	return icon.Mimetype
}

// NewReader returns a fresh reader over the icon's loaded content.
func (icon *Icon) NewReader() io.Reader {
	return bytes.NewReader(icon.data)
}
