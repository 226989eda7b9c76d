package protocol

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/google/uuid"
)

// mdnsSuffix terminates every mDNS candidate hostname. The part before
// it is a UUID, which packs into exactly 16 bytes on the wire.
const mdnsSuffix = ".local"

// classifyAddress determines the wire family of a candidate address and
// returns its packed form. IPv6 text is accepted in any RFC 4291 form
// (at most one "::", up to 8 groups, optional IPv4-mapped suffix);
// zoned addresses are rejected because the zone cannot be carried.
func classifyAddress(ip string) (AddrFamily, []byte, error) {
	if strings.HasSuffix(ip, mdnsSuffix) {
		id, err := uuid.Parse(strings.TrimSuffix(ip, mdnsSuffix))
		if err != nil {
			return 0, nil, fmt.Errorf("%w: mdns name %q: %v", ErrBadAddress, ip, err)
		}
		raw := id[:]
		return FamilyMDNS, raw, nil
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %q: %v", ErrBadAddress, ip, err)
	}
	if addr.Zone() != "" {
		return 0, nil, fmt.Errorf("%w: %q: zone not allowed", ErrBadAddress, ip)
	}

	if addr.Is4() {
		b := addr.As4()
		return FamilyIPv4, b[:], nil
	}
	b := addr.As16()
	return FamilyIPv6, b[:], nil
}

// ValidAddress reports whether ip would survive encoding. Used by the
// selection policy to drop candidates the codec cannot carry.
func ValidAddress(ip string) bool {
	_, _, err := classifyAddress(ip)
	return err == nil
}

// formatAddress renders a packed address back to its textual form.
// IPv6 follows RFC 5952 (the leftmost longest zero run is compressed).
func formatAddress(family AddrFamily, raw []byte) (string, error) {
	switch family {
	case FamilyIPv4:
		return netip.AddrFrom4([4]byte(raw)).String(), nil
	case FamilyIPv6:
		return netip.AddrFrom16([16]byte(raw)).String(), nil
	case FamilyMDNS:
		id, err := uuid.FromBytes(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrBadAddress, err)
		}
		return id.String() + mdnsSuffix, nil
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownFamily, family)
	}
}
