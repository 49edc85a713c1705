package challenge

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"errors"

	"github.com/sundarnagarajan/pivy/box"
	"github.com/sundarnagarajan/pivy/ebox"
	"github.com/sundarnagarajan/pivy/internal/cryptutil"
	"github.com/sundarnagarajan/pivy/piv"
	"github.com/sundarnagarajan/pivy/wordlist"
)

var (
	ErrThrottled    = errors.New("challenge: issuance rate exceeded for this part")
	ErrNoEphemeral  = errors.New("challenge: part's curve has no ephemeral key in this ebox")
)

// BuildChallenge constructs the outer challenge Box for recovery part
// cfg.Parts[partIndex], addressed to the same hardware key as the
// original key-piece Box. Every input is public — the stored Ebox plus
// a freshly generated temporary keypair — so the recovery machine never
// touches private key material of its own.
func BuildChallenge(e *ebox.Ebox, cfgIndex, partIndex int, tempPub *ecdh.PublicKey, tempCurve string, meta Metadata) (*box.Box, error) {
	if cfgIndex < 0 || cfgIndex >= len(e.Configs) {
		return nil, ebox.ErrConfigNotFound
	}
	cfg := e.Configs[cfgIndex]
	if partIndex < 0 || partIndex >= len(cfg.Parts) {
		return nil, errors.New("challenge: part index out of range")
	}
	part := cfg.Parts[partIndex]

	ephPub, ok := e.Ephemerals[part.Box.Curve]
	if !ok {
		return nil, ErrNoEphemeral
	}

	curve, err := cryptutil.CurveByName(part.Box.Curve)
	if err != nil {
		return nil, err
	}
	rx, ry := elliptic.UnmarshalCompressed(curve.EC, part.Box.RecipientPub)
	if rx == nil {
		return nil, cryptutil.ErrBadPoint
	}
	recipientPub, err := curve.PointToDHKey(rx, ry)
	if err != nil {
		return nil, err
	}

	tcurve, err := cryptutil.CurveByName(tempCurve)
	if err != nil {
		return nil, err
	}
	tx, ty := tcurve.DHKeyToPoint(tempPub)
	tempPubCompressed := elliptic.MarshalCompressed(tcurve.EC, tx, ty)

	payload := Payload{
		PartID:           uint8(partIndex),
		TempPub:          tempPubCompressed,
		EphemeralPub:     ephPub,
		Nonce:            part.Box.Nonce,
		IV:               part.Box.IV,
		CiphertextAndTag: part.Box.CiphertextAndTag,
		Meta:             meta,
	}

	return box.Seal(part.Box.Curve, recipientPub, payload.Encode(), &box.SealOptions{
		Cipher:  part.Box.Cipher,
		KDF:     part.Box.KDF,
		GUID:    part.GUID,
		Slot:    part.Slot,
	})
}

// AnswerChallenge unseals outerChallenge with oracle, validates its
// payload, and produces the outer response Box addressed to the
// challenge's temporary key. wordsOut, if non-nil, is filled with the
// resolved verification words for the operator to read aloud.
func AnswerChallenge(outerChallenge *box.Box, oracle piv.Oracle, wordsOut *[4]string) (*box.Box, error) {
	plain, err := box.Unseal(outerChallenge, oracle)
	if err != nil {
		return nil, err
	}
	payload, err := DecodePayload(plain)
	if err != nil {
		return nil, err
	}

	if wordsOut != nil {
		for i, idx := range payload.Meta.Words {
			w, err := wordlist.Word(int(idx))
			if err != nil {
				return nil, err
			}
			wordsOut[i] = w
		}
	}

	innerBox := &box.Box{
		GUIDSlotValid:    outerChallenge.GUIDSlotValid,
		GUID:             outerChallenge.GUID,
		Slot:             outerChallenge.Slot,
		Cipher:           outerChallenge.Cipher,
		KDF:              outerChallenge.KDF,
		Nonce:            payload.Nonce,
		Curve:            outerChallenge.Curve,
		RecipientPub:     outerChallenge.RecipientPub,
		EphemeralPub:     payload.EphemeralPub,
		IV:               payload.IV,
		CiphertextAndTag: payload.CiphertextAndTag,
	}
	keyPiece, err := box.Unseal(innerBox, oracle)
	if err != nil {
		return nil, err
	}

	response := ResponsePayload{ID: payload.PartID, KeyPiece: keyPiece}

	tempCurve, err := cryptutil.CurveByName(outerChallenge.Curve)
	if err != nil {
		return nil, err
	}
	tx, ty := elliptic.UnmarshalCompressed(tempCurve.EC, payload.TempPub)
	if tx == nil {
		return nil, cryptutil.ErrBadPoint
	}
	tempPub, err := tempCurve.PointToDHKey(tx, ty)
	if err != nil {
		return nil, err
	}

	return box.Seal(outerChallenge.Curve, tempPub, response.Encode(), nil)
}

// VerifyResponse unseals outerResponse with tempPriv and extracts the
// echoed part ID and key-piece plaintext.
func VerifyResponse(outerResponse *box.Box, tempPriv *ecdh.PrivateKey) (partID uint8, keyPiece []byte, err error) {
	plain, err := box.Unseal(outerResponse, &ephemeralOracle{priv: tempPriv})
	if err != nil {
		return 0, nil, err
	}
	resp, err := DecodeResponsePayload(plain)
	if err != nil {
		return 0, nil, err
	}
	return resp.ID, resp.KeyPiece, nil
}

// ephemeralOracle adapts a single bare ecdh.PrivateKey — the recovery
// machine's temporary session key — to the piv.Oracle interface so
// box.Unseal can be reused unmodified for response Boxes, which aren't
// addressed to a hardware token at all.
type ephemeralOracle struct {
	priv *ecdh.PrivateKey
}

var errNoAttestation = errors.New("challenge: ephemeral session key has no CAK to attest with")

func (o *ephemeralOracle) ECDH(curveName string, guid []byte, slot uint8, peer *ecdh.PublicKey) ([]byte, error) {
	shared, err := o.priv.ECDH(peer)
	if err != nil {
		return nil, err
	}
	curve, err := cryptutil.CurveByName(curveName)
	if err != nil {
		return nil, err
	}
	if len(shared) >= curve.ByteSize {
		return shared, nil
	}
	out := make([]byte, curve.ByteSize)
	copy(out[curve.ByteSize-len(shared):], shared)
	return out, nil
}

func (o *ephemeralOracle) Attest(challenge []byte) ([]byte, ed25519.PublicKey, error) {
	return nil, nil, errNoAttestation
}

// GenerateTempKey creates the recovery machine's per-session temporary
// keypair and best-effort locks its private scalar against paging and
// core dumps. It generates the raw scalar into a buffer it locks first,
// rather than locking priv.Bytes() afterward — priv.Bytes() would only
// ever hand back a fresh copy, leaving the real generation bytes
// unlocked. crypto/ecdh.PrivateKey keeps its own unexported copy of
// whatever is passed to NewPrivateKey, so that copy is still unlocked;
// this is as close as the stdlib API gets to locking the real secret.
// lockErr is only an advisory warning — callers should log it but may
// proceed.
func GenerateTempKey(curveName string) (priv *ecdh.PrivateKey, lockErr error) {
	curve, err := cryptutil.CurveByName(curveName)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, curve.ByteSize)
	defer cryptutil.Zero(raw)

	lockErr = cryptutil.LockMemory(raw)
	if lockErr == nil {
		defer func() { _ = cryptutil.UnlockMemory(raw) }()
	}

	if err := cryptutil.DisableCoreDumps(); err != nil && lockErr == nil {
		lockErr = err
	}

	for {
		if _, err := rand.Read(raw); err != nil {
			return nil, err
		}
		priv, err = curve.DH.NewPrivateKey(raw)
		if err == nil {
			break
		}
		// Rejected scalar (outside [1, n-1]); retry with fresh bytes.
	}

	return priv, lockErr
}
