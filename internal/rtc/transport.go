// Package rtc implements the session transport capability on top of a
// pion PeerConnection.
//
// The ephemeral certificate is generated at construction, so the
// fingerprint is known before the PeerConnection exists; the derived
// ICE credentials are pinned through the SettingEngine, so every
// description pion produces already carries them and no post-hoc SDP
// rewriting is needed on either negotiation path.
package rtc

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/magarcia/qwbp/internal/config"
	"github.com/magarcia/qwbp/internal/derive"
	"github.com/magarcia/qwbp/internal/protocol"
	"github.com/magarcia/qwbp/internal/session"
	"github.com/magarcia/qwbp/internal/util"
)

// Compile-time interface check.
var _ session.Transport = (*Transport)(nil)

var errNotStarted = errors.New("ice credentials not set yet")

// Transport wraps one PeerConnection for one session. Construction is
// two-phase: New generates the certificate, SetICECredentials builds
// the PeerConnection around it.
type Transport struct {
	cfg  config.Config
	cert webrtc.Certificate
	fp   protocol.Fingerprint

	mu sync.Mutex
	pc *webrtc.PeerConnection

	// Handlers registered before the PeerConnection exists are held
	// here and attached in SetICECredentials.
	onCandidate   func(*protocol.Candidate)
	onState       func(string)
	onICEState    func(string)
	onDataChannel func(session.DataChannel)
}

// New generates the ephemeral certificate and returns a transport ready
// for credential pinning.
func New(cfg config.Config) (*Transport, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate certificate key: %w", err)
	}
	cert, err := webrtc.GenerateCertificate(key)
	if err != nil {
		return nil, fmt.Errorf("generate certificate: %w", err)
	}

	fp, err := certificateFingerprint(cert)
	if err != nil {
		return nil, err
	}

	return &Transport{
		cfg:  cfg.WithDefaults(),
		cert: *cert,
		fp:   fp,
	}, nil
}

// certificateFingerprint extracts the SHA-256 fingerprint pion computed
// for the certificate, parsing its colon-hex form into raw bytes.
func certificateFingerprint(cert *webrtc.Certificate) (protocol.Fingerprint, error) {
	var fp protocol.Fingerprint

	fps, err := cert.GetFingerprints()
	if err != nil {
		return fp, fmt.Errorf("certificate fingerprints: %w", err)
	}
	for _, f := range fps {
		if !strings.EqualFold(f.Algorithm, "sha-256") {
			continue
		}
		raw, err := hex.DecodeString(strings.ReplaceAll(f.Value, ":", ""))
		if err != nil || len(raw) != protocol.FingerprintSize {
			return fp, fmt.Errorf("malformed certificate fingerprint %q", f.Value)
		}
		copy(fp[:], raw)
		return fp, nil
	}
	return fp, errors.New("certificate has no sha-256 fingerprint")
}

// Fingerprint returns the certificate fingerprint.
func (t *Transport) Fingerprint() protocol.Fingerprint {
	return t.fp
}

// SetICECredentials builds the PeerConnection with the given
// credentials pinned and attaches any handlers registered so far.
func (t *Transport) SetICECredentials(creds derive.Credentials) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pc != nil {
		return errors.New("ice credentials already set")
	}

	se := webrtc.SettingEngine{}
	se.SetICECredentials(creds.Ufrag, creds.Pwd)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   []webrtc.ICEServer{{URLs: t.cfg.ICEServers}},
		Certificates: []webrtc.Certificate{t.cert},
	})
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	t.pc = pc

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		t.mu.Lock()
		fn := t.onCandidate
		t.mu.Unlock()
		if fn == nil {
			return
		}
		if c == nil {
			fn(nil)
			return
		}
		if cand, ok := convertCandidate(c); ok {
			fn(&cand)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("peer connection state: %s", state)
		t.mu.Lock()
		fn := t.onState
		t.mu.Unlock()
		if fn != nil {
			fn(state.String())
		}
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		t.mu.Lock()
		fn := t.onICEState
		t.mu.Unlock()
		if fn != nil {
			fn(state.String())
		}
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		t.mu.Lock()
		fn := t.onDataChannel
		t.mu.Unlock()
		if fn != nil {
			fn(wrapChannel(dc))
		}
	})

	return nil
}

func (t *Transport) conn() (*webrtc.PeerConnection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pc == nil {
		return nil, errNotStarted
	}
	return t.pc, nil
}

// CreateOffer generates the local SDP offer.
func (t *Transport) CreateOffer(ctx context.Context) (string, error) {
	pc, err := t.conn()
	if err != nil {
		return "", err
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	return offer.SDP, nil
}

// CreateAnswer generates the local SDP answer.
func (t *Transport) CreateAnswer(ctx context.Context) (string, error) {
	pc, err := t.conn()
	if err != nil {
		return "", err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	return answer.SDP, nil
}

// SetLocalDescription commits a local description.
func (t *Transport) SetLocalDescription(kind session.DescKind, desc string) error {
	pc, err := t.conn()
	if err != nil {
		return err
	}
	return pc.SetLocalDescription(webrtc.SessionDescription{
		Type: sdpType(kind),
		SDP:  desc,
	})
}

// SetRemoteDescription commits a remote description.
func (t *Transport) SetRemoteDescription(kind session.DescKind, desc string) error {
	pc, err := t.conn()
	if err != nil {
		return err
	}
	return pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: sdpType(kind),
		SDP:  desc,
	})
}

// Rollback returns the signaling state to stable. The PeerConnection —
// and with it the gathered candidates already on display — survives.
func (t *Transport) Rollback() error {
	pc, err := t.conn()
	if err != nil {
		return err
	}
	return pc.SetLocalDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeRollback,
	})
}

// AddCandidate injects one remote candidate attribute line.
func (t *Transport) AddCandidate(line string) error {
	pc, err := t.conn()
	if err != nil {
		return err
	}
	return pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: line})
}

// CreateDataChannel opens an ordered channel with the given label.
func (t *Transport) CreateDataChannel(label string) (session.DataChannel, error) {
	pc, err := t.conn()
	if err != nil {
		return nil, err
	}
	dc, err := pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, err
	}
	return wrapChannel(dc), nil
}

// OnDataChannel registers the incoming channel handler.
func (t *Transport) OnDataChannel(fn func(session.DataChannel)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDataChannel = fn
}

// OnCandidate registers the local candidate handler.
func (t *Transport) OnCandidate(fn func(*protocol.Candidate)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCandidate = fn
}

// OnStateChange registers the connection state handler.
func (t *Transport) OnStateChange(fn func(string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onState = fn
}

// OnICEStateChange registers the ICE state handler.
func (t *Transport) OnICEStateChange(fn func(string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onICEState = fn
}

// Close shuts down the PeerConnection.
func (t *Transport) Close() error {
	t.mu.Lock()
	pc := t.pc
	t.mu.Unlock()
	if pc == nil {
		return nil
	}
	return pc.Close()
}

func sdpType(kind session.DescKind) webrtc.SDPType {
	if kind == session.DescAnswer {
		return webrtc.SDPTypeAnswer
	}
	return webrtc.SDPTypeOffer
}
