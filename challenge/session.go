package challenge

import (
	"crypto/ecdh"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/sundarnagarajan/pivy/box"
	"github.com/sundarnagarajan/pivy/ebox"
	"github.com/sundarnagarajan/pivy/internal/cryptutil"
)

// State is one recovery session's position in its challenge/response
// state machine.
type State int

const (
	StateInit State = iota
	StateChallengeEmitted
	StateResponseReceived
	StateShareAccepted
	StateCombine
	StateUnsealRecovery
	StateDone
	StateAbort
	StateBadResponse
)

var stateNames = [...]string{
	"INIT", "CHALLENGE_EMITTED", "RESPONSE_RECEIVED", "SHARE_ACCEPTED",
	"COMBINE", "UNSEAL_RECOVERY", "DONE", "ABORT", "BAD_RESPONSE",
}

// String renders s by name, as it appears in audit log entries.
func (s State) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

var (
	ErrWrongState       = errors.New("challenge: response not expected in this session's current state")
	ErrSessionDone       = errors.New("challenge: session already reached a terminal state")
	ErrWrongPart        = errors.New("challenge: response ID does not match the pending challenge")
)

// partSession tracks one outstanding challenge within a larger recovery
// Session.
type partSession struct {
	partIndex int
	state     State
	share     []byte
}

// Session drives one Ebox recovery attempt across a RECOVERY config: it
// holds the recovery machine's temporary keypair, issues and tracks
// per-part challenges, and assembles accepted shares toward Combine.
type Session struct {
	mu        sync.Mutex
	Ebox      *ebox.Ebox
	CfgIndex  int
	TempPriv  *ecdh.PrivateKey
	TempCurve string

	// Log, if set, receives one entry per state transition below —
	// never key material, only config/part indices and state names.
	Log *AuditLog

	// Logger receives operational messages (throttling, bad responses,
	// lock warnings). Defaults to a discard logger.
	Logger *log.Logger

	throttle *throttle
	parts    map[uint8]*partSession
	state    State
}

var discardLogger = log.New(io.Discard, "", 0)

func (s *Session) logger() *log.Logger {
	if s.Logger == nil {
		return discardLogger
	}
	return s.Logger
}

// NewSession starts a recovery session against the RECOVERY config at
// cfgIndex, generating a fresh temporary keypair on tempCurve. auditLog,
// if non-nil, records every subsequent state transition.
func NewSession(e *ebox.Ebox, cfgIndex int, tempCurve string, auditLog *AuditLog) (*Session, error) {
	if cfgIndex < 0 || cfgIndex >= len(e.Configs) || e.Configs[cfgIndex].Type != ebox.ConfigRecovery {
		return nil, ebox.ErrNotRecoveryConfig
	}
	priv, lockErr := GenerateTempKey(tempCurve)
	if priv == nil {
		return nil, lockErr
	}
	s := &Session{
		Ebox:      e,
		CfgIndex:  cfgIndex,
		TempPriv:  priv,
		TempCurve: tempCurve,
		Log:       auditLog,
		throttle:  newThrottle(1, 3, time.Hour),
		parts:     make(map[uint8]*partSession),
		state:     StateInit,
	}
	s.record(-1, StateInit)
	if lockErr != nil {
		s.logger().Printf("temp key memory guard warning: %v", lockErr)
	}
	return s, lockErr
}

// record appends a state transition to s.Log, if one is attached.
// partIndex of -1 means the session as a whole, not one part.
func (s *Session) record(partIndex int, st State) {
	if s.Log == nil {
		return
	}
	s.Log.append(s.CfgIndex, partIndex, st)
}

// EmitChallenge builds and records a challenge for partIndex, subject to
// the session's issuance throttle.
func (s *Session) EmitChallenge(partIndex int, meta Metadata) (encodedFrame string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.throttle.allow(partIndex) {
		s.logger().Printf("part=%d challenge issuance throttled", partIndex)
		return "", ErrThrottled
	}

	b, err := BuildChallenge(s.Ebox, s.CfgIndex, partIndex, s.TempPriv.PublicKey(), s.TempCurve, meta)
	if err != nil {
		return "", err
	}
	s.parts[uint8(partIndex)] = &partSession{partIndex: partIndex, state: StateChallengeEmitted}
	if s.state == StateInit {
		s.state = StateChallengeEmitted
	}
	s.record(partIndex, StateChallengeEmitted)
	return EncodeFrame(b.Encode()), nil
}

// AcceptResponse unseals a response frame with the session's temporary
// key, verifies it belongs to an outstanding challenge, and records the
// recovered share. A frame that fails to decode or unseal is rejected
// with no state change, since the part it belongs to is not known. A
// response whose ID names no part awaiting a response is rejected with
// ErrWrongPart; if that part is known, it transitions to BAD_RESPONSE and
// any share it held is no longer used by Combine.
func (s *Session) AcceptResponse(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, err := DecodeFrame(frame)
	if err != nil {
		return err
	}
	outer, err := box.Decode(buf)
	if err != nil {
		return err
	}
	partID, keyPiece, err := VerifyResponse(outer, s.TempPriv)
	if err != nil {
		return err
	}
	p, ok := s.parts[partID]
	if !ok || p.state != StateChallengeEmitted {
		s.logger().Printf("part=%d response rejected: no outstanding challenge in that state", partID)
		if ok {
			p.state = StateBadResponse
			s.record(int(partID), StateBadResponse)
		}
		return ErrWrongPart
	}
	p.state = StateResponseReceived
	s.record(int(partID), StateResponseReceived)
	p.share = keyPiece
	p.state = StateShareAccepted
	s.record(int(partID), StateShareAccepted)
	return nil
}

// ReadyToCombine reports whether enough shares have been accepted to
// meet the config's threshold N.
func (s *Session) ReadyToCombine() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.parts {
		if p.state == StateShareAccepted {
			n++
		}
	}
	return n >= s.Ebox.Configs[s.CfgIndex].N
}

// Combine reconstructs and returns the protected key from the accepted
// shares, zeroizing the session's temporary private key on success.
func (s *Session) Combine() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateCombine
	s.record(-1, StateCombine)
	shares := make([][]byte, 0, len(s.parts))
	for _, p := range s.parts {
		if p.state == StateShareAccepted {
			shares = append(shares, p.share)
		}
	}
	s.state = StateUnsealRecovery
	s.record(-1, StateUnsealRecovery)
	final, err := s.Ebox.CombineShares(s.CfgIndex, shares)
	if err != nil {
		s.abortLocked()
		return nil, err
	}
	s.state = StateDone
	s.record(-1, StateDone)
	s.zeroizeTempKeyLocked()
	return final, nil
}

// Abort destroys the session's temporary private key and marks the
// session terminal. Valid from any state.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortLocked()
}

func (s *Session) abortLocked() {
	s.state = StateAbort
	s.record(-1, StateAbort)
	s.zeroizeTempKeyLocked()
}

// zeroizeTempKeyLocked zeroizes the copy of the temporary scalar that
// TempPriv.Bytes() hands back and drops the Session's reference to the
// key. crypto/ecdh.PrivateKey keeps no exported mutable storage, so the
// scalar held inside the stdlib type itself is not scrubbed; it only
// becomes unreachable once the reference is dropped.
func (s *Session) zeroizeTempKeyLocked() {
	if s.TempPriv == nil {
		return
	}
	raw := s.TempPriv.Bytes()
	cryptutil.Zero(raw)
	_ = cryptutil.UnlockMemory(raw)
	s.TempPriv = nil
}
