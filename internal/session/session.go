// Package session drives one payload-bootstrapped peer connection from
// certificate generation through data-channel readiness.
//
// Each side initializes a session, displays its encoded payload, and
// scans the other side's. Roles are then assigned deterministically
// from the fingerprint ordering, each side reconstructs the other's
// description from derived values alone, and the transport negotiates
// directly — no signaling server, no credential ever transmitted.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/magarcia/qwbp/internal/config"
	"github.com/magarcia/qwbp/internal/derive"
	"github.com/magarcia/qwbp/internal/protocol"
	"github.com/magarcia/qwbp/internal/sdp"
	"github.com/magarcia/qwbp/internal/util"
)

// bootstrapLabel names the throwaway channel created before the first
// offer. Its only job is to give the offer an application m-line so
// candidate gathering starts; it is discarded during negotiation.
const bootstrapLabel = "bootstrap"

// peerInfo is the remote identity captured from the scanned payload,
// recorded exactly once per session.
type peerInfo struct {
	fingerprint protocol.Fingerprint
	candidates  []protocol.Candidate
	creds       derive.Credentials
}

// Session is the connection orchestrator. It owns its Transport and the
// single application data channel for its lifetime. All methods are
// safe for concurrent use; each instance is logically single-threaded
// (one mutex, no operation overlaps another's state mutation).
type Session struct {
	cfg config.Config
	tr  Transport

	mu         sync.Mutex
	state      State
	role       Role
	localFP    protocol.Fingerprint
	localCreds derive.Credentials
	gathered   []protocol.Candidate
	payload    []byte
	peer       *peerInfo
	bootstrap  DataChannel
	dataCh     DataChannel
	timer      *time.Timer

	gatherDone chan struct{}
	gatherOnce sync.Once

	onState func(State)
	onReady func(DataChannel)
	onError func(error)
}

// New creates a Session in Idle over the given transport. The transport
// must be freshly constructed and not shared.
func New(tr Transport, cfg config.Config) *Session {
	return &Session{
		cfg:        cfg.WithDefaults(),
		tr:         tr,
		state:      Idle,
		gatherDone: make(chan struct{}),
	}
}

// OnStateChange registers the state-change callback. Set callbacks
// before Initialize; they may be invoked from transport goroutines and
// must not call back into the session.
func (s *Session) OnStateChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = fn
}

// OnReady registers the callback invoked once the application data
// channel is open.
func (s *Session) OnReady(fn func(DataChannel)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReady = fn
}

// OnError registers the callback for asynchronous failures (timeouts,
// transport and ICE failures). Every delivery coincides with the
// transition to Failed.
func (s *Session) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// Initialize derives the local identity, triggers candidate gathering,
// and blocks for the bounded gathering wait. On success the session is
// Displaying and GetPayload returns the encoded payload. A wait that
// elapses with zero candidates fails the session.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		st := s.state
		s.mu.Unlock()
		return &StateError{Op: "initialize", State: st}
	}
	s.localFP = s.tr.Fingerprint()
	s.localCreds = derive.ICECredentials(s.localFP)
	s.mu.Unlock()
	s.setState(Gathering)

	// Event wiring happens before the first transport operation so no
	// early candidate or state change is missed.
	s.tr.OnCandidate(s.handleLocalCandidate)
	s.tr.OnStateChange(s.handleTransportState)
	s.tr.OnICEStateChange(s.handleICEState)
	s.tr.OnDataChannel(s.handleIncomingChannel)

	if err := s.tr.SetICECredentials(s.localCreds); err != nil {
		return s.failInit(err)
	}

	bootstrap, err := s.tr.CreateDataChannel(bootstrapLabel)
	if err != nil {
		return s.failInit(err)
	}
	s.mu.Lock()
	s.bootstrap = bootstrap
	s.mu.Unlock()

	offer, err := s.tr.CreateOffer(ctx)
	if err != nil {
		return s.failInit(err)
	}
	if err := s.tr.SetLocalDescription(DescOffer, offer); err != nil {
		return s.failInit(err)
	}

	if err := s.waitForCandidates(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	selected := protocol.SelectCandidates(s.gathered, s.cfg.MaxCandidates)
	payload, err := protocol.Encode(s.localFP[:], selected)
	if err != nil {
		s.mu.Unlock()
		return s.failInit(err)
	}
	s.payload = payload
	s.timer = time.AfterFunc(s.cfg.Timeout, s.handleSessionTimeout)
	s.mu.Unlock()

	util.LogDebug("gathered %d candidates, payload %d bytes", len(selected), len(payload))
	s.setState(Displaying)
	return nil
}

// waitForCandidates races gathering completion against the bounded
// timer. It succeeds as soon as either fires with at least one
// candidate observed, and fails only when the timer fires with none.
func (s *Session) waitForCandidates(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.GatherTimeout)
	defer timer.Stop()

	select {
	case <-s.gatherDone:
		if s.candidateCount() > 0 {
			return nil
		}
		// Gathering finished empty; the timer has the final word.
		select {
		case <-timer.C:
			return s.failInit(ErrGatherTimeout)
		case <-ctx.Done():
			return s.failInit(ctx.Err())
		}
	case <-timer.C:
		if s.candidateCount() > 0 {
			return nil
		}
		return s.failInit(ErrGatherTimeout)
	case <-ctx.Done():
		return s.failInit(ctx.Err())
	}
}

func (s *Session) candidateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.gathered)
}

// GetPayload returns the encoded payload for display. Valid from
// Displaying onward until the session terminates; the payload never
// changes once gathered.
func (s *Session) GetPayload() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payload == nil || s.state.terminal() {
		return nil, &StateError{Op: "get payload", State: s.state}
	}
	out := make([]byte, len(s.payload))
	copy(out, s.payload)
	return out, nil
}

// ProcessScannedPayload records the peer identity from a scanned
// payload and runs the negotiation branch for the assigned role.
// Exactly one scan is accepted per session; a payload carrying the
// local fingerprint is rejected as a self connection without changing
// state.
func (s *Session) ProcessScannedPayload(ctx context.Context, data []byte) error {
	s.mu.Lock()
	if s.peer != nil {
		s.mu.Unlock()
		return ErrPeerRecorded
	}
	if s.state != Displaying {
		st := s.state
		s.mu.Unlock()
		return &StateError{Op: "process scanned payload", State: st}
	}
	s.mu.Unlock()

	if !protocol.IsValidPacket(data) {
		// Not a payload at all (arbitrary barcode, wrong version, …).
		// Decode names which header check failed.
		_, err := protocol.Decode(data)
		return err
	}
	pkt, err := protocol.Decode(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	cmp := derive.Compare(s.localFP, pkt.Fingerprint)
	if cmp == 0 {
		s.mu.Unlock()
		return ErrSelfConnection
	}
	if s.peer != nil {
		s.mu.Unlock()
		return ErrPeerRecorded
	}
	s.peer = &peerInfo{
		fingerprint: pkt.Fingerprint,
		candidates:  pkt.Candidates,
		creds:       derive.ICECredentials(pkt.Fingerprint),
	}
	if cmp > 0 {
		s.role = Offerer
	} else {
		s.role = Answerer
	}
	role := s.role
	s.mu.Unlock()

	s.setState(ScannedOne)
	util.LogDebug("peer recorded (%d candidates), local role %s", len(pkt.Candidates), role)
	s.setState(Connecting)

	if role == Offerer {
		err = s.runOfferer()
	} else {
		err = s.runAnswerer(ctx)
	}
	if err != nil {
		s.fail(&TransportError{State: Connecting, Err: err})
		return err
	}
	return nil
}

// runOfferer reuses the local description committed during gathering,
// replaces the bootstrap channel with the application channel, and
// commits the peer's reconstructed answer.
func (s *Session) runOfferer() error {
	dc, err := s.tr.CreateDataChannel(s.cfg.ChannelLabel)
	if err != nil {
		return err
	}
	s.adoptChannel(dc)
	s.discardBootstrap()

	answer := sdp.Description(s.peerFingerprint(), false, s.peerCreds())
	if !sdp.Valid(answer) {
		return errors.New("reconstructed answer failed validation")
	}
	if err := s.tr.SetRemoteDescription(DescAnswer, answer); err != nil {
		return err
	}
	return s.injectPeerCandidates()
}

// runAnswerer rolls the committed gathering offer back to stable
// (destroying the transport would invalidate the candidates already
// displayed), commits the peer's reconstructed offer, and answers it.
// The application channel arrives from the transport as an incoming
// channel event.
func (s *Session) runAnswerer(ctx context.Context) error {
	if err := s.tr.Rollback(); err != nil {
		return err
	}
	s.discardBootstrap()

	offer := sdp.Description(s.peerFingerprint(), true, s.peerCreds())
	if !sdp.Valid(offer) {
		return errors.New("reconstructed offer failed validation")
	}
	if err := s.tr.SetRemoteDescription(DescOffer, offer); err != nil {
		return err
	}
	if err := s.injectPeerCandidates(); err != nil {
		return err
	}

	answer, err := s.tr.CreateAnswer(ctx)
	if err != nil {
		return err
	}
	return s.tr.SetLocalDescription(DescAnswer, answer)
}

func (s *Session) injectPeerCandidates() error {
	s.mu.Lock()
	candidates := s.peer.candidates
	s.mu.Unlock()
	for _, c := range candidates {
		if err := s.tr.AddCandidate(sdp.CandidateLine(c)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) peerFingerprint() protocol.Fingerprint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer.fingerprint
}

func (s *Session) peerCreds() derive.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer.creds
}

// adoptChannel wires lifecycle handlers on the application channel.
func (s *Session) adoptChannel(dc DataChannel) {
	s.mu.Lock()
	s.dataCh = dc
	s.mu.Unlock()

	dc.OnOpen(func() { s.handleChannelOpen(dc) })
	dc.OnError(func(err error) {
		s.fail(&TransportError{State: s.State(), Err: err})
	})
	dc.OnClose(func() {
		s.fail(&TransportError{State: s.State(), Err: errors.New("data channel closed")})
	})
}

func (s *Session) discardBootstrap() {
	s.mu.Lock()
	bootstrap := s.bootstrap
	s.bootstrap = nil
	s.mu.Unlock()
	if bootstrap != nil {
		_ = bootstrap.Close()
	}
}

// GetDataChannel returns the application channel once Connected.
func (s *Session) GetDataChannel() (DataChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Connected {
		return nil, &StateError{Op: "get data channel", State: s.state}
	}
	return s.dataCh, nil
}

// GetShortAuthString returns the 4-digit verification code. Available
// once the peer payload has been processed; both sides compute the
// same value.
func (s *Session) GetShortAuthString() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer == nil {
		return "", &StateError{Op: "get short auth string", State: s.state}
	}
	return derive.ShortAuthString(s.localFP, s.peer.fingerprint), nil
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Role returns the assigned negotiation role, RoleUnassigned until the
// peer payload has been processed.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Fingerprint returns the local certificate fingerprint.
func (s *Session) Fingerprint() protocol.Fingerprint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localFP
}

// Close releases the data channel, the transport, and all timers. Safe
// from any state and idempotent; a closed session must not be reused.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return nil
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	// Mark closed before tearing anything down so the channel-close
	// events this triggers are not mistaken for failures.
	s.state = Closed
	dataCh, bootstrap := s.dataCh, s.bootstrap
	s.dataCh, s.bootstrap = nil, nil
	onState := s.onState
	s.mu.Unlock()

	if onState != nil {
		onState(Closed)
	}

	var errs []error
	if bootstrap != nil {
		errs = append(errs, bootstrap.Close())
	}
	if dataCh != nil {
		errs = append(errs, dataCh.Close())
	}
	errs = append(errs, s.tr.Close())
	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Transport event handlers
// ---------------------------------------------------------------------------

func (s *Session) handleLocalCandidate(c *protocol.Candidate) {
	if c == nil {
		s.gatherOnce.Do(func() { close(s.gatherDone) })
		return
	}
	s.mu.Lock()
	if s.state == Gathering {
		s.gathered = append(s.gathered, *c)
	}
	s.mu.Unlock()
}

func (s *Session) handleIncomingChannel(dc DataChannel) {
	if dc.Label() != s.cfg.ChannelLabel {
		// The offerer's bootstrap channel also surfaces here; only the
		// application channel is adopted.
		return
	}
	s.mu.Lock()
	wrongRole := s.role != Answerer
	s.mu.Unlock()
	if wrongRole {
		return
	}
	s.adoptChannel(dc)
}

func (s *Session) handleChannelOpen(dc DataChannel) {
	s.mu.Lock()
	if s.state != Connecting {
		s.mu.Unlock()
		return
	}
	s.state = Connected
	if s.timer != nil {
		s.timer.Stop()
	}
	onState, onReady := s.onState, s.onReady
	s.mu.Unlock()

	util.LogInfo("data channel %q open", dc.Label())
	if onState != nil {
		onState(Connected)
	}
	if onReady != nil {
		onReady(dc)
	}
}

func (s *Session) handleTransportState(state string) {
	util.LogDebug("transport state: %s", state)
	switch state {
	case "failed", "disconnected":
		s.fail(&TransportError{State: s.State(), Err: errors.New("connection " + state)})
	case "closed":
		s.mu.Lock()
		terminal := s.state.terminal()
		s.mu.Unlock()
		if !terminal {
			s.fail(&TransportError{State: s.State(), Err: errors.New("transport closed")})
		}
	}
}

func (s *Session) handleICEState(state string) {
	util.LogDebug("ice state: %s", state)
	switch state {
	case "failed", "disconnected":
		s.fail(&ICEError{ICEState: state})
	}
}

func (s *Session) handleSessionTimeout() {
	s.mu.Lock()
	fire := s.state != Connected && !s.state.terminal()
	s.mu.Unlock()
	if !fire {
		return
	}
	s.fail(ErrTimeout)
	// Timeout is terminal for the instance; release everything.
	_ = s.Close()
}

// ---------------------------------------------------------------------------
// State plumbing
// ---------------------------------------------------------------------------

// fail forces the Failed state and reports err through the error
// callback. No-op once the session is terminal, so racing failure
// sources collapse to a single report.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.state.terminal() {
		s.mu.Unlock()
		return
	}
	s.state = Failed
	onState, onError := s.onState, s.onError
	s.mu.Unlock()

	util.LogWarning("session failed: %v", err)
	if onState != nil {
		onState(Failed)
	}
	if onError != nil {
		onError(err)
	}
}

// failInit is the synchronous flavor used inside Initialize: the error
// both fails the session and is returned to the caller.
func (s *Session) failInit(err error) error {
	s.fail(err)
	return err
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	if s.state.terminal() && next != Closed {
		s.mu.Unlock()
		return
	}
	s.state = next
	onState := s.onState
	s.mu.Unlock()
	if onState != nil {
		onState(next)
	}
}
