package rtc

import (
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/magarcia/qwbp/internal/protocol"
)

func TestConvertCandidate(t *testing.T) {
	testCases := []struct {
		name string
		in   webrtc.ICECandidate
		want protocol.Candidate
		ok   bool
	}{
		{
			name: "host udp ipv4",
			in: webrtc.ICECandidate{
				Address:  "192.168.1.5",
				Port:     54321,
				Typ:      webrtc.ICECandidateTypeHost,
				Protocol: webrtc.ICEProtocolUDP,
			},
			want: protocol.Candidate{
				IP:       "192.168.1.5",
				Port:     54321,
				Type:     protocol.TypeHost,
				Protocol: protocol.UDP,
			},
			ok: true,
		},
		{
			name: "srflx udp ipv6",
			in: webrtc.ICECandidate{
				Address:  "2001:db8::1",
				Port:     60000,
				Typ:      webrtc.ICECandidateTypeSrflx,
				Protocol: webrtc.ICEProtocolUDP,
			},
			want: protocol.Candidate{
				IP:       "2001:db8::1",
				Port:     60000,
				Type:     protocol.TypeServerReflexive,
				Protocol: protocol.UDP,
			},
			ok: true,
		},
		{
			name: "host tcp passive",
			in: webrtc.ICECandidate{
				Address:  "10.0.0.2",
				Port:     9,
				Typ:      webrtc.ICECandidateTypeHost,
				Protocol: webrtc.ICEProtocolTCP,
				TCPType:  "passive",
			},
			want: protocol.Candidate{
				IP:       "10.0.0.2",
				Port:     9,
				Type:     protocol.TypeHost,
				Protocol: protocol.TCP,
				TCPType:  protocol.TCPPassive,
			},
			ok: true,
		},
		{
			name: "host tcp simultaneous open",
			in: webrtc.ICECandidate{
				Address:  "10.0.0.2",
				Port:     4443,
				Typ:      webrtc.ICECandidateTypeHost,
				Protocol: webrtc.ICEProtocolTCP,
				TCPType:  "so",
			},
			want: protocol.Candidate{
				IP:       "10.0.0.2",
				Port:     4443,
				Type:     protocol.TypeHost,
				Protocol: protocol.TCP,
				TCPType:  protocol.TCPSimultaneousOpen,
			},
			ok: true,
		},
		{
			name: "mdns host",
			in: webrtc.ICECandidate{
				Address:  "8c6dfe26-2c5f-47b6-b7a0-43ad04d16b1a.local",
				Port:     54321,
				Typ:      webrtc.ICECandidateTypeHost,
				Protocol: webrtc.ICEProtocolUDP,
			},
			want: protocol.Candidate{
				IP:       "8c6dfe26-2c5f-47b6-b7a0-43ad04d16b1a.local",
				Port:     54321,
				Type:     protocol.TypeHost,
				Protocol: protocol.UDP,
			},
			ok: true,
		},
		{
			name: "peer reflexive dropped",
			in: webrtc.ICECandidate{
				Address:  "203.0.113.9",
				Port:     40000,
				Typ:      webrtc.ICECandidateTypePrflx,
				Protocol: webrtc.ICEProtocolUDP,
			},
		},
		{
			name: "relay dropped",
			in: webrtc.ICECandidate{
				Address:  "203.0.113.9",
				Port:     40000,
				Typ:      webrtc.ICECandidateTypeRelay,
				Protocol: webrtc.ICEProtocolUDP,
			},
		},
		{
			name: "unknown tcp subtype dropped",
			in: webrtc.ICECandidate{
				Address:  "10.0.0.2",
				Port:     9,
				Typ:      webrtc.ICECandidateTypeHost,
				Protocol: webrtc.ICEProtocolTCP,
				TCPType:  "unspecified",
			},
		},
		{
			name: "zoned link-local dropped",
			in: webrtc.ICECandidate{
				Address:  "fe80::1%eth0",
				Port:     54321,
				Typ:      webrtc.ICECandidateTypeHost,
				Protocol: webrtc.ICEProtocolUDP,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := convertCandidate(&tc.in)
			if ok != tc.ok {
				t.Fatalf("ok: got %v, want %v", ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Errorf("Got %+v, want %+v", got, tc.want)
			}
		})
	}
}
