package protocol

import (
	"encoding/binary"
	"fmt"
)

// Encode serializes a fingerprint and candidate list into the payload
// byte form. It fails if the fingerprint slice is not exactly 32 bytes,
// if any candidate address fails family validation, or if a port is
// zero. Candidate order is preserved; callers apply SelectCandidates
// first when a cap or preference order is wanted.
func Encode(fingerprint []byte, candidates []Candidate) ([]byte, error) {
	if len(fingerprint) != FingerprintSize {
		return nil, fmt.Errorf("%w: got %d", ErrBadFingerprint, len(fingerprint))
	}

	buf := make([]byte, HeaderSize, HeaderSize+len(candidates)*(1+ipv6AddrSize+portSize))
	buf[0] = Magic
	buf[1] = Version // version in bits0-2, reserved bits zero
	copy(buf[2:], fingerprint)

	for i, c := range candidates {
		family, addr, err := classifyAddress(c.IP)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		if c.Port == 0 {
			return nil, fmt.Errorf("candidate %d: %w: 0", i, ErrBadPort)
		}

		flags := byte(family) & flagFamilyMask
		if c.Protocol == TCP {
			flags |= flagProtocolTCP
			flags |= (byte(c.TCPType) << flagTCPTypeShift) & flagTCPTypeMask
		}
		if c.Type == TypeServerReflexive {
			flags |= flagTypeSrflx
		}

		buf = append(buf, flags)
		buf = append(buf, addr...)
		buf = binary.BigEndian.AppendUint16(buf, c.Port)
	}

	return buf, nil
}

// Decode parses a payload into a Packet. Candidate records are consumed
// sequentially until the input is exhausted; a record whose declared
// address length would read past the end is a truncation error naming
// the family being parsed.
func Decode(data []byte) (*Packet, error) {
	if len(data) < MinPacketSize {
		return nil, fmt.Errorf("%w: %d bytes (need at least %d)", ErrShortPacket, len(data), MinPacketSize)
	}
	if data[0] != Magic {
		return nil, fmt.Errorf("%w: 0x%02x", ErrBadMagic, data[0])
	}
	if v := data[1] & 0x07; v != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, v)
	}

	pkt := &Packet{Version: data[1] & 0x07}
	copy(pkt.Fingerprint[:], data[2:HeaderSize])

	rest := data[HeaderSize:]
	for len(rest) > 0 {
		flags := rest[0]
		rest = rest[1:]

		family := AddrFamily(flags & flagFamilyMask)
		if family != FamilyIPv4 && family != FamilyIPv6 && family != FamilyMDNS {
			return nil, fmt.Errorf("%w: %d", ErrUnknownFamily, flags&flagFamilyMask)
		}

		need := family.addrSize() + portSize
		if len(rest) < need {
			return nil, fmt.Errorf("%w: %s needs %d more bytes, have %d", ErrTruncated, family, need, len(rest))
		}

		ip, err := formatAddress(family, rest[:family.addrSize()])
		if err != nil {
			return nil, err
		}

		c := Candidate{
			IP:   ip,
			Port: binary.BigEndian.Uint16(rest[family.addrSize() : family.addrSize()+portSize]),
		}
		if flags&flagTypeSrflx != 0 {
			c.Type = TypeServerReflexive
		}
		if flags&flagProtocolTCP != 0 {
			c.Protocol = TCP
			sub := TCPType((flags & flagTCPTypeMask) >> flagTCPTypeShift)
			if sub > TCPSimultaneousOpen {
				return nil, fmt.Errorf("%w: %d", ErrBadTCPType, sub)
			}
			c.TCPType = sub
		}

		pkt.Candidates = append(pkt.Candidates, c)
		rest = rest[need:]
	}

	return pkt, nil
}

// IsValidPacket is a cheap pre-check of length, magic, and version.
// It lets callers fast-reject arbitrary scanned bytes without paying
// for a full parse.
func IsValidPacket(data []byte) bool {
	return len(data) >= MinPacketSize && data[0] == Magic && data[1]&0x07 == Version
}
