package rtc

import (
	"github.com/pion/webrtc/v4"

	"github.com/magarcia/qwbp/internal/protocol"
)

// convertCandidate maps a pion ICE candidate onto the wire model.
// Peer-reflexive and relay candidates are dropped: prflx is never
// advertised, and relay endpoints are excluded from the payload.
func convertCandidate(c *webrtc.ICECandidate) (protocol.Candidate, bool) {
	out := protocol.Candidate{
		IP:   c.Address,
		Port: c.Port,
	}

	switch c.Typ {
	case webrtc.ICECandidateTypeHost:
		out.Type = protocol.TypeHost
	case webrtc.ICECandidateTypeSrflx:
		out.Type = protocol.TypeServerReflexive
	default:
		return protocol.Candidate{}, false
	}

	switch c.Protocol {
	case webrtc.ICEProtocolUDP:
		out.Protocol = protocol.UDP
	case webrtc.ICEProtocolTCP:
		out.Protocol = protocol.TCP
		switch c.TCPType {
		case "passive":
			out.TCPType = protocol.TCPPassive
		case "active":
			out.TCPType = protocol.TCPActive
		case "so":
			out.TCPType = protocol.TCPSimultaneousOpen
		default:
			return protocol.Candidate{}, false
		}
	default:
		return protocol.Candidate{}, false
	}

	if !protocol.ValidAddress(out.IP) {
		// Zoned link-local or otherwise uncarriable address.
		return protocol.Candidate{}, false
	}
	return out, true
}
