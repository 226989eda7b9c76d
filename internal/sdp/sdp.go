// Package sdp builds synthetic session descriptions and candidate
// lines from decoded payload data. The peer never sends a description;
// both sides reconstruct the other's from the fingerprint and the
// derived credentials, and inject candidates into the live transport
// one line at a time instead of embedding them in the text.
package sdp

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/magarcia/qwbp/internal/derive"
	"github.com/magarcia/qwbp/internal/protocol"
)

// Fixed priorities per (type, protocol) pair, in conventional ICE
// preference order: host/udp above host/tcp above server-reflexive.
const (
	priorityHostUDP  = 2130706431
	priorityHostTCP  = 2128609279
	prioritySrflxUDP = 1694498815
	prioritySrflxTCP = 1692401663
)

// Description fills the single-data-channel template with the peer's
// session id, ICE credentials, and fingerprint. An offer gets
// "a=setup:actpass", an answer "a=setup:active". Candidate lines are
// deliberately absent; see CandidateLine.
func Description(fp protocol.Fingerprint, isOffer bool, creds derive.Credentials) string {
	setup := "active"
	if isOffer {
		setup = "actpass"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "v=0\r\n")
	fmt.Fprintf(&b, "o=- %s 2 IN IP4 127.0.0.1\r\n", derive.SessionID(fp))
	fmt.Fprintf(&b, "s=-\r\n")
	fmt.Fprintf(&b, "t=0 0\r\n")
	fmt.Fprintf(&b, "a=group:BUNDLE 0\r\n")
	fmt.Fprintf(&b, "a=msid-semantic: WMS\r\n")
	fmt.Fprintf(&b, "m=application 9 UDP/DTLS/SCTP webrtc-datachannel\r\n")
	fmt.Fprintf(&b, "c=IN IP4 0.0.0.0\r\n")
	fmt.Fprintf(&b, "a=ice-ufrag:%s\r\n", creds.Ufrag)
	fmt.Fprintf(&b, "a=ice-pwd:%s\r\n", creds.Pwd)
	fmt.Fprintf(&b, "a=ice-options:trickle\r\n")
	fmt.Fprintf(&b, "a=fingerprint:sha-256 %s\r\n", derive.FormatFingerprint(fp))
	fmt.Fprintf(&b, "a=setup:%s\r\n", setup)
	fmt.Fprintf(&b, "a=mid:0\r\n")
	fmt.Fprintf(&b, "a=sctp-port:5000\r\n")
	fmt.Fprintf(&b, "a=max-message-size:262144\r\n")
	return b.String()
}

// CandidateLine renders one candidate as an injectable attribute value.
// The foundation is the first 4 bytes of SHA-256 over type, protocol,
// address, and port — stable across calls, not globally unique. Server-
// reflexive lines carry a fixed "raddr 0.0.0.0 rport 9" placeholder;
// the true mapped base is never disclosed.
func CandidateLine(c protocol.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "candidate:%d 1 %s %d %s %d typ %s",
		foundation(c), c.Protocol, priority(c), c.IP, c.Port, c.Type)
	if c.Type == protocol.TypeServerReflexive {
		b.WriteString(" raddr 0.0.0.0 rport 9")
	}
	if c.Protocol == protocol.TCP {
		fmt.Fprintf(&b, " tcptype %s", c.TCPType)
	}
	return b.String()
}

func foundation(c protocol.Candidate) uint32 {
	h := sha256.New()
	h.Write([]byte(c.Type.String()))
	h.Write([]byte(c.Protocol.String()))
	h.Write([]byte(c.IP))
	h.Write([]byte(strconv.Itoa(int(c.Port))))
	return binary.BigEndian.Uint32(h.Sum(nil)[:4])
}

func priority(c protocol.Candidate) uint32 {
	switch {
	case c.Type == protocol.TypeHost && c.Protocol == protocol.UDP:
		return priorityHostUDP
	case c.Type == protocol.TypeHost:
		return priorityHostTCP
	case c.Protocol == protocol.UDP:
		return prioritySrflxUDP
	default:
		return prioritySrflxTCP
	}
}

// Valid confirms a synthetic description carries the lines the
// transport needs: fingerprint, both ICE credentials, and the media
// line. Checked before handing text to the transport.
func Valid(desc string) bool {
	return strings.Contains(desc, "a=fingerprint:sha-256 ") &&
		strings.Contains(desc, "a=ice-ufrag:") &&
		strings.Contains(desc, "a=ice-pwd:") &&
		strings.Contains(desc, "m=application")
}
