// Package piv abstracts the hardware token this library ultimately
// recovers secrets through. The real PIV driver is out of scope here:
// the token is modeled purely as an oracle offering ECDH against a
// private scalar held in one of its key slots, plus attestation via a
// Card Authentication Key (CAK, PIV slot 0x9E).
//
// SoftwareOracle, the test double below, holds private scalars directly
// in memory instead of inside a hardware token, as a substitute for
// exercising the rest of the stack in tests.
package piv

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/sundarnagarajan/pivy/internal/cryptutil"
)

// CAKSlot is the PIV key reference for the Card Authentication Key.
const CAKSlot uint8 = 0x9E

// ErrSlotNotFound is returned when no key is registered under a
// (guid, slot) pair.
var ErrSlotNotFound = errors.New("piv: no key in requested slot")

// Oracle is the capability a Box/Ebox unseal needs from a token: perform
// ECDH against the private scalar in one of its slots, and attest its
// identity by signing a caller-supplied challenge with its CAK.
type Oracle interface {
	// ECDH returns the shared X-coordinate of (privkey_in_slot · peer),
	// left-padded to the coordinate byte-length of curveName.
	ECDH(curveName string, guid []byte, slot uint8, peer *ecdh.PublicKey) ([]byte, error)

	// Attest signs challenge with the token's Card Authentication Key and
	// returns the signature alongside the CAK's public half.
	Attest(challenge []byte) (sig []byte, cak ed25519.PublicKey, err error)
}

type softwareSlot struct {
	guid  string
	slot  uint8
	priv  *ecdh.PrivateKey
	curve string
}

// SoftwareOracle is an in-memory Oracle implementation: it holds EC
// private scalars directly rather than keeping them inside a hardware
// token. Production callers should never construct one outside of tests;
// it exists to exercise the rest of the stack without real hardware.
type SoftwareOracle struct {
	slots    []softwareSlot
	cakPriv  ed25519.PrivateKey
	cakPub   ed25519.PublicKey
}

// NewSoftwareOracle builds an oracle with a freshly generated CAK.
func NewSoftwareOracle() (*SoftwareOracle, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	return &SoftwareOracle{cakPriv: priv, cakPub: pub}, nil
}

// AddSlot registers a private key under (guid, slot) on the given curve.
func (o *SoftwareOracle) AddSlot(guid []byte, slot uint8, curveName string, priv *ecdh.PrivateKey) {
	o.slots = append(o.slots, softwareSlot{
		guid:  string(guid),
		slot:  slot,
		priv:  priv,
		curve: curveName,
	})
}

// CAKPublicKey returns the oracle's Card Authentication Key public half,
// for a caller to pin or register out of band.
func (o *SoftwareOracle) CAKPublicKey() ed25519.PublicKey { return o.cakPub }

func (o *SoftwareOracle) find(guid []byte, slot uint8) (*softwareSlot, error) {
	for i := range o.slots {
		if o.slots[i].slot == slot && o.slots[i].guid == string(guid) {
			return &o.slots[i], nil
		}
	}
	return nil, ErrSlotNotFound
}

func (o *SoftwareOracle) ECDH(curveName string, guid []byte, slot uint8, peer *ecdh.PublicKey) ([]byte, error) {
	s, err := o.find(guid, slot)
	if err != nil {
		return nil, err
	}
	if s.curve != curveName {
		return nil, fmt.Errorf("piv: slot %#x holds a %s key, not %s", slot, s.curve, curveName)
	}
	shared, err := s.priv.ECDH(peer)
	if err != nil {
		return nil, err
	}
	curve, err := cryptutil.CurveByName(curveName)
	if err != nil {
		return nil, err
	}
	return leftPad(shared, curve.ByteSize), nil
}

func (o *SoftwareOracle) Attest(challenge []byte) (sig []byte, cak ed25519.PublicKey, err error) {
	return ed25519.Sign(o.cakPriv, challenge), o.cakPub, nil
}

func leftPad(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}
