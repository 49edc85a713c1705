package ebox

import (
	"crypto/elliptic"
	"errors"

	"github.com/sundarnagarajan/pivy/box"
	"github.com/sundarnagarajan/pivy/internal/cryptutil"
	"github.com/sundarnagarajan/pivy/internal/shamir"
	"github.com/sundarnagarajan/pivy/piv"
)

var (
	ErrNoPrimaryAvailable = errors.New("ebox: no primary config could be unsealed")
	ErrConfigNotFound     = errors.New("ebox: config index out of range")
	ErrNotRecoveryConfig  = errors.New("ebox: config is not a RECOVERY config")
	ErrInsufficientShares = errors.New("ebox: fewer than N shares available")
	ErrBadShares          = errors.New("ebox: recovered shares did not reconstruct the protected key")
	ErrUnknownEphemCurve  = errors.New("ebox: part references a curve with no ephemeral key")
)

// boxForPart reconstructs the full Box a part's BOX tag abbreviates, by
// pairing it with the ephemeral public key shared across every part on
// its curve.
func (e *Ebox) boxForPart(p Part) (*box.Box, error) {
	ephPub, ok := e.Ephemerals[p.Box.Curve]
	if !ok {
		return nil, ErrUnknownEphemCurve
	}
	return &box.Box{
		GUIDSlotValid:    p.GUID != nil,
		GUID:             p.GUID,
		Slot:             p.Slot,
		Cipher:           p.Box.Cipher,
		KDF:              p.Box.KDF,
		Nonce:            p.Box.Nonce,
		Curve:            p.Box.Curve,
		RecipientPub:     p.Box.RecipientPub,
		EphemeralPub:     ephPub,
		IV:               p.Box.IV,
		CiphertextAndTag: p.Box.CiphertextAndTag,
	}, nil
}

// Unseal tries every PRIMARY config in turn, returning the first one the
// oracle can successfully unseal.
func (e *Ebox) Unseal(oracle piv.Oracle) ([]byte, error) {
	for _, cfg := range e.Configs {
		if cfg.Type != ConfigPrimary {
			continue
		}
		if len(cfg.Parts) != 1 {
			continue
		}
		b, err := e.boxForPart(cfg.Parts[0])
		if err != nil {
			continue
		}
		pt, err := box.Unseal(b, oracle)
		if err == nil {
			return pt, nil
		}
	}
	return nil, ErrNoPrimaryAvailable
}

// UnsealRecovery unseals the N-of-M RECOVERY config at cfgIndex, using
// oracle against as many of its parts as it can answer for. It needs at
// least N distinct successes to proceed.
func (e *Ebox) UnsealRecovery(cfgIndex int, oracle piv.Oracle) ([]byte, error) {
	if cfgIndex < 0 || cfgIndex >= len(e.Configs) {
		return nil, ErrConfigNotFound
	}
	cfg := e.Configs[cfgIndex]
	if cfg.Type != ConfigRecovery {
		return nil, ErrNotRecoveryConfig
	}

	shares := make([][]byte, 0, len(cfg.Parts))
	for _, p := range cfg.Parts {
		b, err := e.boxForPart(p)
		if err != nil {
			continue
		}
		share, err := box.Unseal(b, oracle)
		if err != nil {
			continue
		}
		shares = append(shares, share)
		if len(shares) >= cfg.N {
			break
		}
	}
	return e.combine(cfg, shares)
}

// CombineShares finishes a RECOVERY unlock from shares already obtained
// out of band (e.g. via a remote challenge/response exchange), rather
// than unsealing each part's Box locally through an Oracle.
func (e *Ebox) CombineShares(cfgIndex int, shares [][]byte) ([]byte, error) {
	if cfgIndex < 0 || cfgIndex >= len(e.Configs) {
		return nil, ErrConfigNotFound
	}
	cfg := e.Configs[cfgIndex]
	if cfg.Type != ConfigRecovery {
		return nil, ErrNotRecoveryConfig
	}
	return e.combine(cfg, shares)
}

func (e *Ebox) combine(cfg Config, shares [][]byte) ([]byte, error) {
	if len(shares) < cfg.N {
		return nil, ErrInsufficientShares
	}
	ikCfg, err := shamir.Combine(shares[:cfg.N])
	if err != nil {
		return nil, ErrBadShares
	}
	defer cryptutil.Zero(ikCfg)

	ik := xor32(ikCfg, expandNonce(cfg.Nonce))
	defer cryptutil.Zero(ik)

	suite, err := cryptutil.SuiteByName(e.RecoveryCipher)
	if err != nil {
		return nil, err
	}
	pt, err := cryptutil.Open(suite, ik, e.RecoveryIV, e.RecoveryCiphertextAndTag)
	if err != nil {
		return nil, ErrBadShares
	}
	return pt, nil
}

// ValidateEphemeralSharing checks the invariant that exactly one
// ephemeral key exists per distinct curve used across every part, and
// that every part's referenced curve has a matching ephemeral entry.
func (e *Ebox) ValidateEphemeralSharing() error {
	used := map[string]bool{}
	for _, cfg := range e.Configs {
		for _, p := range cfg.Parts {
			used[p.Box.Curve] = true
			if _, ok := e.Ephemerals[p.Box.Curve]; !ok {
				return ErrUnknownEphemCurve
			}
		}
	}
	for curve := range e.Ephemerals {
		if !used[curve] {
			return errors.New("ebox: ephemeral key for unused curve " + curve)
		}
	}
	for curve, pub := range e.Ephemerals {
		c, err := cryptutil.CurveByName(curve)
		if err != nil {
			return err
		}
		x, y := elliptic.UnmarshalCompressed(c.EC, pub)
		if x == nil {
			return cryptutil.ErrBadPoint
		}
		if cryptutil.IsIdentity(x, y) {
			return errors.New("ebox: ephemeral key for curve " + curve + " is the identity point")
		}
	}
	return nil
}
