// Package protocol defines the compact payload format exchanged between
// the two devices (typically rendered as a QR code) and the candidate
// selection policy used when building an outgoing payload.
package protocol

import "errors"

// Wire constants.
const (
	// Magic is the first byte of every payload.
	Magic = 0x51

	// Version is the protocol version carried in the low three bits of
	// the second header byte.
	Version = 0

	// FingerprintSize is the length of a certificate fingerprint.
	FingerprintSize = 32

	// HeaderSize is magic(1) + version(1) + fingerprint(32).
	HeaderSize = 2 + FingerprintSize

	// MinPacketSize is the smallest valid payload: header plus one
	// IPv4 candidate record (flags 1 + address 4 + port 2).
	MinPacketSize = HeaderSize + 1 + ipv4AddrSize + portSize

	// DefaultMaxCandidates caps how many candidates Encode is normally
	// fed; the wire format itself has no limit.
	DefaultMaxCandidates = 4
)

const (
	ipv4AddrSize = 4
	ipv6AddrSize = 16
	portSize     = 2
)

// Candidate record flag layout: bits0-1 address family, bit2 protocol,
// bit3 candidate type, bits4-5 tcp subtype, bits6-7 reserved (zero on
// write, ignored on read).
const (
	flagFamilyMask   = 0x03
	flagProtocolTCP  = 0x04
	flagTypeSrflx    = 0x08
	flagTCPTypeMask  = 0x30
	flagTCPTypeShift = 4
)

// Fingerprint is the SHA-256 hash of a session's ephemeral certificate.
type Fingerprint [FingerprintSize]byte

// AddrFamily is the 2-bit address family of a candidate record.
type AddrFamily uint8

const (
	FamilyIPv4 AddrFamily = 0
	FamilyIPv6 AddrFamily = 1
	FamilyMDNS AddrFamily = 2
)

func (f AddrFamily) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	case FamilyMDNS:
		return "mdns"
	default:
		return "invalid"
	}
}

// addrSize returns the on-wire address length for the family.
func (f AddrFamily) addrSize() int {
	if f == FamilyIPv4 {
		return ipv4AddrSize
	}
	return ipv6AddrSize
}

// CandidateType distinguishes local-interface from publicly-observed
// addresses. Relay candidates are never carried on the wire.
type CandidateType uint8

const (
	TypeHost CandidateType = iota
	TypeServerReflexive
)

func (t CandidateType) String() string {
	switch t {
	case TypeHost:
		return "host"
	case TypeServerReflexive:
		return "srflx"
	default:
		return "unknown"
	}
}

// Protocol is the candidate's transport protocol.
type Protocol uint8

const (
	UDP Protocol = iota
	TCP
)

func (p Protocol) String() string {
	if p == TCP {
		return "tcp"
	}
	return "udp"
}

// TCPType is the connection setup role of a tcp candidate. It is
// meaningless for udp candidates.
type TCPType uint8

const (
	TCPPassive TCPType = iota
	TCPActive
	TCPSimultaneousOpen
)

func (t TCPType) String() string {
	switch t {
	case TCPPassive:
		return "passive"
	case TCPActive:
		return "active"
	case TCPSimultaneousOpen:
		return "so"
	default:
		return "unknown"
	}
}

// Candidate is one reachable network endpoint carried in a payload.
// IP is a dotted-decimal IPv4 address, a textual IPv6 address, or an
// mDNS hostname of the form "<uuid>.local".
type Candidate struct {
	IP       string
	Port     uint16
	Type     CandidateType
	Protocol Protocol
	TCPType  TCPType // tcp only
}

// Packet is a decoded payload: the remote certificate fingerprint plus
// its advertised candidates.
type Packet struct {
	Version     uint8
	Fingerprint Fingerprint
	Candidates  []Candidate
}

// Encode/decode failure sentinels. Decode errors wrap these with the
// offending field's context.
var (
	ErrBadFingerprint = errors.New("fingerprint must be 32 bytes")
	ErrBadAddress     = errors.New("invalid candidate address")
	ErrBadPort        = errors.New("invalid candidate port")
	ErrShortPacket    = errors.New("packet too short")
	ErrBadMagic       = errors.New("bad magic byte")
	ErrBadVersion     = errors.New("unsupported version")
	ErrTruncated      = errors.New("truncated candidate record")
	ErrUnknownFamily  = errors.New("unknown address family")
	ErrBadTCPType     = errors.New("invalid tcp subtype")
)
