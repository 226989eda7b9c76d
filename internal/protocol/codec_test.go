package protocol

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

// testFingerprint is the fingerprint used by the fixed-vector tests.
var testFingerprint = []byte{
	0xE7, 0x3B, 0x38, 0x46, 0x1A, 0x5D, 0x88, 0xB0,
	0xC4, 0x2E, 0x9F, 0x7A, 0x1D, 0x6C, 0x3E, 0x8B,
	0x5F, 0x4A, 0x9D, 0x2C, 0x7E, 0x1B, 0x6F, 0x3A,
	0x8D, 0x5C, 0x2E, 0x9B, 0x4F, 0x7A, 0x1C, 0x3D,
}

// TestEncodeDecodeRoundTrip verifies that encoding and decoding are
// inverse operations across all address families, protocols, and tcp
// subtypes.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		cand Candidate
	}{
		{
			name: "ipv4 host udp",
			cand: Candidate{IP: "192.168.1.5", Port: 54321, Type: TypeHost, Protocol: UDP},
		},
		{
			name: "ipv4 srflx udp",
			cand: Candidate{IP: "203.0.113.50", Port: 3478, Type: TypeServerReflexive, Protocol: UDP},
		},
		{
			name: "ipv6 host udp",
			cand: Candidate{IP: "2001:db8::1", Port: 443, Type: TypeHost, Protocol: UDP},
		},
		{
			name: "ipv6 srflx tcp passive",
			cand: Candidate{IP: "2001:db8:85a3::8a2e:370:7334", Port: 9, Type: TypeServerReflexive, Protocol: TCP, TCPType: TCPPassive},
		},
		{
			name: "mdns host udp",
			cand: Candidate{IP: "8c6dfe26-2c5f-47b6-b7a0-43ad04d16b1a.local", Port: 60000, Type: TypeHost, Protocol: UDP},
		},
		{
			name: "ipv4 host tcp active",
			cand: Candidate{IP: "10.0.0.7", Port: 9, Type: TypeHost, Protocol: TCP, TCPType: TCPActive},
		},
		{
			name: "ipv4 host tcp so",
			cand: Candidate{IP: "10.0.0.8", Port: 8080, Type: TypeHost, Protocol: TCP, TCPType: TCPSimultaneousOpen},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := Encode(testFingerprint, []Candidate{tc.cand})
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			decoded, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if decoded.Version != Version {
				t.Errorf("Version mismatch: got %d, want %d", decoded.Version, Version)
			}
			if !bytes.Equal(decoded.Fingerprint[:], testFingerprint) {
				t.Errorf("Fingerprint mismatch: got %x", decoded.Fingerprint)
			}
			if len(decoded.Candidates) != 1 {
				t.Fatalf("Expected 1 candidate, got %d", len(decoded.Candidates))
			}
			if !reflect.DeepEqual(decoded.Candidates[0], tc.cand) {
				t.Errorf("Candidate mismatch: got %+v, want %+v", decoded.Candidates[0], tc.cand)
			}
		})
	}
}

// TestEncodeSingleIPv4Vector checks the exact byte layout of a minimal
// payload: one IPv4 host udp candidate yields exactly 41 bytes.
func TestEncodeSingleIPv4Vector(t *testing.T) {
	encoded, err := Encode(testFingerprint, []Candidate{
		{IP: "192.168.1.5", Port: 54321, Type: TypeHost, Protocol: UDP},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	want := append([]byte{0x51, 0x00}, testFingerprint...)
	want = append(want, 0x00, 0xC0, 0xA8, 0x01, 0x05, 0xD4, 0x31)

	if len(encoded) != 41 {
		t.Fatalf("Expected 41 bytes, got %d", len(encoded))
	}
	if !bytes.Equal(encoded, want) {
		t.Errorf("Encoded bytes mismatch:\n got %x\nwant %x", encoded, want)
	}
}

// TestEncodeFourCandidateVector checks the layout of a payload with
// three host candidates and one server-reflexive candidate: 62 bytes,
// with the fourth record's flags byte set to 0x08.
func TestEncodeFourCandidateVector(t *testing.T) {
	encoded, err := Encode(testFingerprint, []Candidate{
		{IP: "192.168.1.5", Port: 54321, Type: TypeHost, Protocol: UDP},
		{IP: "192.168.1.6", Port: 54322, Type: TypeHost, Protocol: UDP},
		{IP: "10.0.0.100", Port: 54323, Type: TypeHost, Protocol: UDP},
		{IP: "203.0.113.50", Port: 54324, Type: TypeServerReflexive, Protocol: UDP},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if len(encoded) != 62 {
		t.Fatalf("Expected 62 bytes, got %d", len(encoded))
	}

	// Records are 7 bytes each, starting after the 34-byte header.
	fourthFlags := encoded[HeaderSize+3*7]
	if fourthFlags != 0x08 {
		t.Errorf("Fourth record flags: got 0x%02x, want 0x08", fourthFlags)
	}
}

// TestEncodeRejects verifies the synchronous encode failure cases.
func TestEncodeRejects(t *testing.T) {
	valid := Candidate{IP: "192.168.1.5", Port: 1, Type: TypeHost, Protocol: UDP}

	testCases := []struct {
		name        string
		fingerprint []byte
		cand        Candidate
		wantErr     error
	}{
		{"short fingerprint", make([]byte, 31), valid, ErrBadFingerprint},
		{"long fingerprint", make([]byte, 33), valid, ErrBadFingerprint},
		{"empty address", testFingerprint, Candidate{IP: "", Port: 1}, ErrBadAddress},
		{"ipv4 with 3 octets", testFingerprint, Candidate{IP: "10.0.0", Port: 1}, ErrBadAddress},
		{"ipv4 octet overflow", testFingerprint, Candidate{IP: "10.0.0.256", Port: 1}, ErrBadAddress},
		{"ipv6 double compression", testFingerprint, Candidate{IP: "2001::db8::1", Port: 1}, ErrBadAddress},
		{"ipv6 nine groups", testFingerprint, Candidate{IP: "1:2:3:4:5:6:7:8:9", Port: 1}, ErrBadAddress},
		{"ipv6 zoned", testFingerprint, Candidate{IP: "fe80::1%eth0", Port: 1}, ErrBadAddress},
		{"mdns bad uuid", testFingerprint, Candidate{IP: "not-a-uuid.local", Port: 1}, ErrBadAddress},
		{"hostname", testFingerprint, Candidate{IP: "example.com", Port: 1}, ErrBadAddress},
		{"zero port", testFingerprint, Candidate{IP: "192.168.1.5", Port: 0}, ErrBadPort},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Encode(tc.fingerprint, []Candidate{tc.cand})
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

// TestDecodeRejects verifies the decode failure cases: short input,
// bad magic, version bits, truncated records, and the reserved family.
func TestDecodeRejects(t *testing.T) {
	base, err := Encode(testFingerprint, []Candidate{
		{IP: "192.168.1.5", Port: 54321, Type: TypeHost, Protocol: UDP},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	badMagic := append([]byte(nil), base...)
	badMagic[0] = 0x52

	badVersion := append([]byte(nil), base...)
	badVersion[1] = 0x01

	reservedFamily := append([]byte(nil), base...)
	reservedFamily[HeaderSize] = 0x03

	badTCPType := append([]byte(nil), base...)
	badTCPType[HeaderSize] = 0x04 | 0x30 // tcp with subtype 11

	// Declared IPv6, but only 4 address bytes follow.
	truncatedIPv6 := append([]byte(nil), base...)
	truncatedIPv6[HeaderSize] = 0x01

	// Valid record followed by a lone flags byte.
	danglingRecord := append(append([]byte(nil), base...), 0x00)

	testCases := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"empty", nil, ErrShortPacket},
		{"forty bytes", base[:40], ErrShortPacket},
		{"bad magic", badMagic, ErrBadMagic},
		{"version bits set", badVersion, ErrBadVersion},
		{"reserved family", reservedFamily, ErrUnknownFamily},
		{"tcp subtype 11", badTCPType, ErrBadTCPType},
		{"truncated ipv6 record", truncatedIPv6, ErrTruncated},
		{"dangling record", danglingRecord, ErrTruncated},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.data)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

// TestDecodeIgnoresReservedFlagBits verifies that bits6-7 of a record's
// flags byte are ignored on read.
func TestDecodeIgnoresReservedFlagBits(t *testing.T) {
	encoded, err := Encode(testFingerprint, []Candidate{
		{IP: "192.168.1.5", Port: 54321, Type: TypeHost, Protocol: UDP},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	encoded[HeaderSize] |= 0xC0

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Candidates[0].IP != "192.168.1.5" {
		t.Errorf("Candidate mismatch: %+v", decoded.Candidates[0])
	}
}

// TestDecodeMultipleFamilies decodes a payload mixing all three
// families and both protocols.
func TestDecodeMultipleFamilies(t *testing.T) {
	cands := []Candidate{
		{IP: "192.168.1.5", Port: 54321, Type: TypeHost, Protocol: UDP},
		{IP: "2001:db8::1", Port: 54322, Type: TypeHost, Protocol: TCP, TCPType: TCPActive},
		{IP: "4f9c2b1a-0d3e-4f5a-8b7c-6d5e4f3a2b1c.local", Port: 54323, Type: TypeHost, Protocol: UDP},
		{IP: "203.0.113.50", Port: 54324, Type: TypeServerReflexive, Protocol: UDP},
	}

	encoded, err := Encode(testFingerprint, cands)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !reflect.DeepEqual(decoded.Candidates, cands) {
		t.Errorf("Candidates mismatch:\n got %+v\nwant %+v", decoded.Candidates, cands)
	}
}

// TestIsValidPacket verifies the cheap pre-check accepts real payloads
// and rejects arbitrary scanned bytes without error.
func TestIsValidPacket(t *testing.T) {
	encoded, err := Encode(testFingerprint, []Candidate{
		{IP: "192.168.1.5", Port: 54321, Type: TypeHost, Protocol: UDP},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if !IsValidPacket(encoded) {
		t.Error("Expected valid payload to pass")
	}

	junk := [][]byte{
		nil,
		[]byte("https://example.com/some-random-qr"),
		make([]byte, 40),
		append([]byte{0x52}, encoded[1:]...),
	}
	for i, data := range junk {
		if IsValidPacket(data) {
			t.Errorf("Case %d: expected rejection", i)
		}
	}
}
