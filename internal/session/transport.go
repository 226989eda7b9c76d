package session

import (
	"context"

	"github.com/magarcia/qwbp/internal/derive"
	"github.com/magarcia/qwbp/internal/protocol"
)

// DescKind tags a committed session description.
type DescKind uint8

const (
	DescOffer DescKind = iota
	DescAnswer
)

func (k DescKind) String() string {
	if k == DescAnswer {
		return "answer"
	}
	return "offer"
}

// DataChannel is the bidirectional ordered channel the session hands to
// the application once negotiation completes. Handlers may be invoked
// from whatever goroutine the transport delivers events on.
type DataChannel interface {
	Label() string
	Send(ctx context.Context, data []byte) error
	OnOpen(fn func())
	OnClose(fn func())
	OnError(fn func(error))
	OnMessage(fn func(data []byte))
	Close() error
}

// Transport is the capability interface the session drives. The
// production implementation wraps a pion PeerConnection
// (internal/rtc); tests supply a deterministic fake.
//
// The certificate is generated at transport construction so the
// fingerprint is available before any description exists, and
// SetICECredentials pins the derived credentials before the first
// offer — every description the transport produces already carries
// them, on both the offerer and answerer paths.
//
// Implementations must be safe to invoke from the goroutines their own
// event handlers run on.
type Transport interface {
	// Fingerprint returns the SHA-256 fingerprint of the ephemeral
	// certificate, fixed for the transport's lifetime.
	Fingerprint() protocol.Fingerprint

	// SetICECredentials pins the local ICE credentials. Must be called
	// exactly once, before CreateOffer.
	SetICECredentials(creds derive.Credentials) error

	CreateOffer(ctx context.Context) (string, error)
	CreateAnswer(ctx context.Context) (string, error)
	SetLocalDescription(kind DescKind, desc string) error
	SetRemoteDescription(kind DescKind, desc string) error

	// Rollback returns the signaling state to stable without touching
	// the transport session itself, so candidates already advertised
	// in the displayed payload stay valid.
	Rollback() error

	// AddCandidate injects one remote candidate attribute line.
	AddCandidate(line string) error

	CreateDataChannel(label string) (DataChannel, error)
	OnDataChannel(fn func(DataChannel))

	// OnCandidate delivers each gathered local candidate; nil signals
	// the end of gathering.
	OnCandidate(fn func(c *protocol.Candidate))

	// OnStateChange reports transport connection state strings
	// ("connected", "failed", "disconnected", "closed", …).
	OnStateChange(fn func(state string))

	// OnICEStateChange reports ICE connection state strings.
	OnICEStateChange(fn func(state string))

	Close() error
}
