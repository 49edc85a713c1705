package ebox

import (
	"crypto/ecdh"
	"crypto/elliptic"
	"crypto/rand"
	"errors"

	"github.com/sundarnagarajan/pivy/box"
	"github.com/sundarnagarajan/pivy/internal/cryptutil"
	"github.com/sundarnagarajan/pivy/internal/shamir"
	"github.com/sundarnagarajan/pivy/internal/wire"
)

// Recipient names one entry in a Config: a key that will be able to
// decrypt its Part's Box, plus the metadata carried alongside it.
type Recipient struct {
	Curve      string
	PublicKey  *ecdh.PublicKey
	Name       string
	GUID       []byte
	Slot       uint8
	SlotSet    bool
	PubKeyAlgo string // defaults to an "ecdsa-sha2-<curve>" style name derived from Curve
	CAKAlgo    string
	CAKRaw     []byte
}

// RecoveryConfig is one N-of-M threshold-recovery unlock path.
type RecoveryConfig struct {
	N          int
	Recipients []Recipient
}

// SealSpec is the input to Seal: exactly one PRIMARY recipient, plus any
// number of RECOVERY configs.
type SealSpec struct {
	Type           Type // defaults to TypeKey
	Primary        Recipient
	Recovery       []RecoveryConfig
	RecoveryCipher string // defaults to "chacha20-poly1305"
}

var (
	ErrNoPrimary        = errors.New("ebox: seal spec has no primary recipient")
	ErrEmptyRecovery    = errors.New("ebox: recovery config has no recipients")
	ErrBadRecoveryN     = errors.New("ebox: recovery N must be between 1 and the recipient count")
	ErrNoRecipientCurve = errors.New("ebox: recipient missing curve/public key")
)

// Seal assembles an Ebox protecting finalKey under spec.Primary directly,
// and under each of spec.Recovery's N-of-M Shamir-split recovery paths.
func Seal(finalKey []byte, spec SealSpec) (*Ebox, error) {
	if spec.Primary.PublicKey == nil || spec.Primary.Curve == "" {
		return nil, ErrNoPrimary
	}
	for _, rc := range spec.Recovery {
		if len(rc.Recipients) == 0 {
			return nil, ErrEmptyRecovery
		}
		if rc.N < 1 || rc.N > len(rc.Recipients) {
			return nil, ErrBadRecoveryN
		}
		for _, r := range rc.Recipients {
			if r.PublicKey == nil || r.Curve == "" {
				return nil, ErrNoRecipientCurve
			}
		}
	}

	recoveryCipher := spec.RecoveryCipher
	if recoveryCipher == "" {
		recoveryCipher = "chacha20-poly1305"
	}
	suite, err := cryptutil.SuiteByName(recoveryCipher)
	if err != nil {
		return nil, err
	}

	curves := map[string]*ecdh.PrivateKey{}
	if err := reserveCurve(curves, spec.Primary.Curve); err != nil {
		return nil, err
	}
	for _, rc := range spec.Recovery {
		for _, r := range rc.Recipients {
			if err := reserveCurve(curves, r.Curve); err != nil {
				return nil, err
			}
		}
	}

	ephemerals := make(map[string][]byte, len(curves))
	for name, priv := range curves {
		curve, err := cryptutil.CurveByName(name)
		if err != nil {
			return nil, err
		}
		x, y := curve.DHKeyToPoint(priv.PublicKey())
		ephemerals[name] = elliptic.MarshalCompressed(curve.EC, x, y)
	}

	var ik [32]byte
	if _, err := rand.Read(ik[:]); err != nil {
		return nil, err
	}
	defer cryptutil.Zero32(&ik)

	primaryPart, err := sealPart(spec.Primary, curves[spec.Primary.Curve], finalKey)
	if err != nil {
		return nil, err
	}
	configs := []Config{{
		Type:  ConfigPrimary,
		N:     1,
		Parts: []Part{primaryPart},
	}}

	for _, rc := range spec.Recovery {
		cfgNonce := make([]byte, 16)
		if _, err := rand.Read(cfgNonce); err != nil {
			return nil, err
		}
		ikCfg := xor32(ik[:], expandNonce(cfgNonce))
		defer cryptutil.Zero(ikCfg)

		shares, err := shamir.Split(ikCfg, rc.N, len(rc.Recipients))
		if err != nil {
			return nil, err
		}
		parts := make([]Part, len(rc.Recipients))
		for i, r := range rc.Recipients {
			p, err := sealPart(r, curves[r.Curve], shares[i])
			if err != nil {
				return nil, err
			}
			parts[i] = p
		}
		configs = append(configs, Config{
			Type:  ConfigRecovery,
			N:     rc.N,
			Nonce: cfgNonce,
			Parts: parts,
		})
	}

	recoveryIV := make([]byte, suite.NonceLen)
	if _, err := rand.Read(recoveryIV); err != nil {
		return nil, err
	}
	recoveryCT, err := cryptutil.Seal(suite, ik[:], recoveryIV, finalKey)
	if err != nil {
		return nil, err
	}

	typ := spec.Type
	if typ == 0 {
		typ = TypeKey
	}

	// crypto/ecdh.PrivateKey offers no in-place zeroization; dropping the
	// map clears this package's only references so the scalars become
	// unreachable as soon as every Box for each curve has been sealed.
	curves = nil

	return &Ebox{
		Type:                     typ,
		RecoveryCipher:           suite.Name,
		RecoveryIV:               recoveryIV,
		RecoveryCiphertextAndTag: recoveryCT,
		Ephemerals:               ephemerals,
		Configs:                  configs,
	}, nil
}

func reserveCurve(curves map[string]*ecdh.PrivateKey, name string) error {
	if _, ok := curves[name]; ok {
		return nil
	}
	curve, err := cryptutil.CurveByName(name)
	if err != nil {
		return err
	}
	priv, err := curve.DH.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	curves[name] = priv
	return nil
}

func sealPart(r Recipient, ephPriv *ecdh.PrivateKey, payload []byte) (Part, error) {
	algo := r.PubKeyAlgo
	if algo == "" {
		algo = "ecdsa-sha2-" + r.Curve
	}
	// Name and GUID come straight from the caller, not from a prior wire
	// decode, so nothing has bounded their length yet; catch an oversized
	// value here rather than let it panic inside the wire writer once the
	// Part is encoded.
	if err := wire.CheckLen8(len(r.Name) + 1); err != nil {
		return Part{}, err
	}
	if err := wire.CheckLen8(len(r.GUID)); err != nil {
		return Part{}, err
	}
	curve, err := cryptutil.CurveByName(r.Curve)
	if err != nil {
		return Part{}, err
	}
	px, py := curve.DHKeyToPoint(r.PublicKey)
	pubRaw := elliptic.Marshal(curve.EC, px, py)

	b, err := box.Seal(r.Curve, r.PublicKey, payload, &box.SealOptions{
		EphemeralPriv: ephPriv,
	})
	if err != nil {
		return Part{}, err
	}

	return Part{
		PubKeyAlgo: algo,
		PubKeyRaw:  pubRaw,
		Name:       r.Name,
		CAKAlgo:    r.CAKAlgo,
		CAKRaw:     r.CAKRaw,
		GUID:       r.GUID,
		Slot:       r.Slot,
		SlotSet:    r.SlotSet,
		Box: partBox{
			Cipher:           b.Cipher,
			KDF:              b.KDF,
			Nonce:            b.Nonce,
			Curve:            b.Curve,
			RecipientPub:     b.RecipientPub,
			IV:               b.IV,
			CiphertextAndTag: b.CiphertextAndTag,
		},
	}, nil
}

// expandNonce right-pads cfg_nonce (16 bytes) with zeros to the 32-byte
// width of IK, per the decision recorded in DESIGN.md.
func expandNonce(nonce []byte) []byte {
	out := make([]byte, 32)
	copy(out, nonce)
	return out
}

func xor32(a, b []byte) []byte {
	out := make([]byte, 32)
	for i := 0; i < 32; i++ {
		out[i] = a[i] ^ b[i]
	}
	return out
}
