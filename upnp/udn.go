package upnp

import (
	"strings"

	uuid "github.com/satori/go.uuid"
)

// UDN is a device's Unique Device Name, the "uuid:<value>" identifier
// UPnP uses to correlate SSDP announcements, the DDD, and GENA
// subscriptions for the same physical device across restarts.
type UDN struct {
	raw  string
	uuid uuid.UUID
	ok   bool
}

// ParseUDN accepts either a bare "uuid:..." UDN or the UUID portion
// alone. Devices are not required to use RFC 4122 UUIDs for their UDN
// (vendors are inconsistent about this in practice), so a UDN
// that fails to parse as a UUID is still kept, just without a usable
// UUID() value.
func ParseUDN(s string) UDN {
	raw := s
	value := strings.TrimPrefix(strings.ToLower(s), "uuid:")
	id, err := uuid.FromString(value)
	return UDN{raw: raw, uuid: id, ok: err == nil}
}

// String returns the UDN as originally supplied.
func (u UDN) String() string { return u.raw }

// UUID returns the parsed value and whether parsing succeeded.
func (u UDN) UUID() (uuid.UUID, bool) { return u.uuid, u.ok }

// Equal compares two UDNs by their canonical UUID form when both
// parsed successfully, falling back to a raw string comparison
// otherwise.
func (u UDN) Equal(other UDN) bool {
	if u.ok && other.ok {
		return u.uuid == other.uuid
	}
	return u.raw == other.raw
}
