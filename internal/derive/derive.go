// Package derive computes everything both peers can agree on from
// certificate fingerprints alone: ICE credentials, the offer/answer
// role ordering, a synthetic session id, and the short authentication
// string. Because every function here is deterministic, neither side
// ever has to transmit credentials — each computes the other's from
// the scanned fingerprint.
package derive

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/magarcia/qwbp/internal/protocol"
)

// HKDF expansion info strings. Changing either breaks interop with
// every deployed peer.
const (
	infoUfrag = "qwbp:UFRAG"
	infoPwd   = "qwbp:PWD"
)

const (
	ufragRawLen = 4  // base64url -> 6 chars
	pwdRawLen   = 18 // base64url -> 24 chars
)

// Credentials is an ICE username fragment / password pair. It is a pure
// function of a fingerprint and is never stored apart from one.
type Credentials struct {
	Ufrag string // 6 characters, base64url alphabet
	Pwd   string // 24 characters, base64url alphabet
}

// ICECredentials derives the ICE credentials for the session identified
// by fp. HKDF-SHA256 with empty salt and the fingerprint as input key
// material, expanded once per field.
func ICECredentials(fp protocol.Fingerprint) Credentials {
	return Credentials{
		Ufrag: expand(fp, infoUfrag, ufragRawLen),
		Pwd:   expand(fp, infoPwd, pwdRawLen),
	}
}

func expand(fp protocol.Fingerprint, info string, n int) string {
	r := hkdf.New(sha256.New, fp[:], nil, []byte(info))
	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		// HKDF-SHA256 yields up to 8160 bytes; n is far below that.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Compare orders two fingerprints byte-lexicographically. It returns
// -1, 0, or +1 as a is less than, equal to, or greater than b. Equality
// means both sides scanned the same certificate — a self-connection.
func Compare(a, b protocol.Fingerprint) int {
	return bytes.Compare(a[:], b[:])
}

// SessionID renders a decimal session identifier from fp for use in a
// synthetic description's origin line. Opaque, not a security property.
func SessionID(fp protocol.Fingerprint) string {
	sum := sha256.Sum256(fp[:])
	return strconv.FormatUint(binary.BigEndian.Uint64(sum[:8]), 10)
}

// ShortAuthString computes the 4-digit SAS both peers display for
// out-of-band verification. The two fingerprints are concatenated in
// canonical order (the greater-or-equal one first) so the result is
// identical regardless of which side computes it.
func ShortAuthString(local, remote protocol.Fingerprint) string {
	first, second := local, remote
	if Compare(local, remote) < 0 {
		first, second = remote, local
	}

	h := sha256.New()
	h.Write(first[:])
	h.Write(second[:])
	sum := h.Sum(nil)

	code := binary.BigEndian.Uint16(sum[:2]) % 10000
	return fmt.Sprintf("%04d", code)
}

// FormatFingerprint renders fp as uppercase colon-separated hex, the
// form used on a description's fingerprint line.
func FormatFingerprint(fp protocol.Fingerprint) string {
	var b strings.Builder
	b.Grow(len(fp)*3 - 1)
	for i, octet := range fp {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%02X", octet)
	}
	return b.String()
}

// ParseFingerprint parses the colon-separated hex form back into a
// fingerprint. Case-insensitive.
func ParseFingerprint(s string) (protocol.Fingerprint, error) {
	var fp protocol.Fingerprint
	parts := strings.Split(s, ":")
	if len(parts) != protocol.FingerprintSize {
		return fp, fmt.Errorf("fingerprint has %d octets, want %d", len(parts), protocol.FingerprintSize)
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return fp, fmt.Errorf("fingerprint octet %d: %w", i, err)
		}
		fp[i] = byte(v)
	}
	return fp, nil
}
