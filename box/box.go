// Package box implements the Box primitive: anonymous sealed-box-style
// encryption of a payload to an elliptic-curve public key, built from
// ephemeral ECDH plus an authenticated stream cipher.
package box

import (
	"crypto/ecdh"
	"crypto/elliptic"
	"crypto/rand"
	"errors"

	"github.com/sundarnagarajan/pivy/internal/cryptutil"
	"github.com/sundarnagarajan/pivy/internal/wire"
	"github.com/sundarnagarajan/pivy/piv"
)

const (
	Magic0  = 0xB0
	Magic1  = 0xC5
	Version = 2

	minNonceLen = 16
)

var (
	ErrBadMagic           = errors.New("box: bad magic")
	ErrBadVersion         = errors.New("box: bad version")
	ErrIdentityPoint      = errors.New("box: public key is the identity point")
	ErrCiphertextTooShort = errors.New("box: ciphertext shorter than the cipher's tag")
	ErrUnsupportedKDF     = errors.New("box: unsupported KDF")
)

// Box is one sealed container: a payload encrypted to RecipientPub via
// ephemeral ECDH with EphemeralPub, under Cipher/KDF.
type Box struct {
	GUIDSlotValid    bool
	GUID             []byte // present iff GUIDSlotValid
	Slot             uint8  // present iff GUIDSlotValid
	Cipher           string
	KDF              string
	Nonce            []byte
	Curve            string
	RecipientPub     []byte // SEC1 compressed
	EphemeralPub     []byte // SEC1 compressed
	IV               []byte
	CiphertextAndTag []byte
}

// SealOptions customizes Seal beyond its required arguments.
type SealOptions struct {
	Cipher        string // defaults to "chacha20-poly1305"
	KDF           string // defaults to "sha512"
	GUID          []byte
	Slot          uint8
	Nonce         []byte           // if len < 16, a fresh random nonce is generated instead
	IV            []byte
	EphemeralPriv *ecdh.PrivateKey // if nil, a fresh ephemeral keypair is generated
}

func (o *SealOptions) cipherName() string {
	if o == nil || o.Cipher == "" {
		return "chacha20-poly1305"
	}
	return o.Cipher
}

func (o *SealOptions) kdfName() string {
	if o == nil || o.KDF == "" {
		return "sha512"
	}
	return o.KDF
}

// guidSlot reports the (guid, slot) pair to carry on the wire, and
// whether guid_slot_valid should be set. The wire format couples both
// fields behind a single valid bit, but routing to a PIV key only needs
// a Slot (GUID selects which token among several; many deployments have
// exactly one) — so either a non-empty GUID or a nonzero Slot is enough
// to mark the pair valid. PIV slot references are never 0 in practice,
// so Slot==0 doubles safely as "unset".
func (o *SealOptions) guidSlot() ([]byte, uint8, bool) {
	if o == nil || (len(o.GUID) == 0 && o.Slot == 0) {
		return nil, 0, false
	}
	return o.GUID, o.Slot, true
}

// Seal encrypts plaintext to recipientPub, on recipientPub's curve.
func Seal(curveName string, recipientPub *ecdh.PublicKey, plaintext []byte, opts *SealOptions) (*Box, error) {
	curve, err := cryptutil.CurveByName(curveName)
	if err != nil {
		return nil, err
	}
	rx, ry := curve.DHKeyToPoint(recipientPub)
	if cryptutil.IsIdentity(rx, ry) {
		return nil, ErrIdentityPoint
	}

	suite, err := cryptutil.SuiteByName(opts.cipherName())
	if err != nil {
		return nil, err
	}
	if opts.kdfName() != "sha512" {
		return nil, ErrUnsupportedKDF
	}

	var eff SealOptions
	if opts != nil {
		eff = *opts
	}

	ephPriv := eff.EphemeralPriv
	if ephPriv == nil {
		ephPriv, err = curve.DH.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
	}
	ephPub := ephPriv.PublicKey()
	ex, ey := curve.DHKeyToPoint(ephPub)
	if cryptutil.IsIdentity(ex, ey) {
		return nil, ErrIdentityPoint
	}

	sharedX, err := ephPriv.ECDH(recipientPub)
	if err != nil {
		return nil, err
	}
	defer cryptutil.Zero(sharedX)

	nonce := eff.Nonce
	if len(nonce) < minNonceLen {
		nonce = make([]byte, minNonceLen)
		if _, err := rand.Read(nonce); err != nil {
			return nil, err
		}
	}

	key := cryptutil.DeriveKey(sharedX, nonce, suite.KeyLen)
	defer cryptutil.Zero(key)

	ctTag, err := cryptutil.Seal(suite, key, eff.IV, plaintext)
	if err != nil {
		return nil, err
	}

	guid, slot, valid := opts.guidSlot()

	return &Box{
		GUIDSlotValid:    valid,
		GUID:             guid,
		Slot:             slot,
		Cipher:           suite.Name,
		KDF:              "sha512",
		Nonce:            nonce,
		Curve:            curveName,
		RecipientPub:     elliptic.MarshalCompressed(curve.EC, rx, ry),
		EphemeralPub:     elliptic.MarshalCompressed(curve.EC, ex, ey),
		IV:               eff.IV,
		CiphertextAndTag: ctTag,
	}, nil
}

// Unseal decrypts b using oracle to perform ECDH against the private
// scalar behind b's recipient key.
func Unseal(b *Box, oracle piv.Oracle) ([]byte, error) {
	curve, err := cryptutil.CurveByName(b.Curve)
	if err != nil {
		return nil, err
	}
	suite, err := cryptutil.SuiteByName(b.Cipher)
	if err != nil {
		return nil, err
	}
	if b.KDF != "sha512" {
		return nil, ErrUnsupportedKDF
	}

	ex, ey := elliptic.UnmarshalCompressed(curve.EC, b.EphemeralPub)
	if ex == nil {
		return nil, cryptutil.ErrBadPoint
	}
	if cryptutil.IsIdentity(ex, ey) {
		return nil, ErrIdentityPoint
	}
	ephPub, err := curve.PointToDHKey(ex, ey)
	if err != nil {
		return nil, err
	}

	rx, ry := elliptic.UnmarshalCompressed(curve.EC, b.RecipientPub)
	if rx == nil {
		return nil, cryptutil.ErrBadPoint
	}
	if cryptutil.IsIdentity(rx, ry) {
		return nil, ErrIdentityPoint
	}

	guid := b.GUID
	slot := b.Slot

	sharedX, err := oracle.ECDH(b.Curve, guid, slot, ephPub)
	if err != nil {
		return nil, cryptutil.ErrAuthFail
	}
	defer cryptutil.Zero(sharedX)

	key := cryptutil.DeriveKey(sharedX, b.Nonce, suite.KeyLen)
	defer cryptutil.Zero(key)

	if len(b.CiphertextAndTag) < suite.TagLen {
		return nil, ErrCiphertextTooShort
	}
	return cryptutil.Open(suite, key, b.IV, b.CiphertextAndTag)
}

// Encode serializes b to its on-disk wire format.
func (b *Box) Encode() []byte {
	w := wire.NewWriter()
	w.U8(Magic0)
	w.U8(Magic1)
	w.U8(Version)
	if b.GUIDSlotValid {
		w.U8(1)
		w.String8(b.GUID)
		w.U8(b.Slot)
	} else {
		w.U8(0)
		w.String8(nil)
		w.U8(0)
	}
	w.CString8(b.Cipher)
	w.CString8(b.KDF)
	w.String8(b.Nonce)
	w.CString8(b.Curve)
	w.String8(b.RecipientPub)
	w.String8(b.EphemeralPub)
	w.String8(b.IV)
	w.String(b.CiphertextAndTag)
	return w.Bytes()
}

// Decode parses a Box from its on-disk wire format. It performs no
// curve/cipher validation beyond what parsing itself requires — callers
// needing strict validation should call Validate.
func Decode(buf []byte) (*Box, error) {
	r := wire.NewReader(buf)
	m0, err := r.U8()
	if err != nil {
		return nil, err
	}
	m1, err := r.U8()
	if err != nil {
		return nil, err
	}
	if m0 != Magic0 || m1 != Magic1 {
		return nil, ErrBadMagic
	}
	version, err := r.U8()
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, ErrBadVersion
	}

	validByte, err := r.U8()
	if err != nil {
		return nil, err
	}
	guid, err := r.String8()
	if err != nil {
		return nil, err
	}
	slot, err := r.U8()
	if err != nil {
		return nil, err
	}

	cipherName, err := r.CString8()
	if err != nil {
		return nil, err
	}
	kdfName, err := r.CString8()
	if err != nil {
		return nil, err
	}
	nonce, err := r.String8()
	if err != nil {
		return nil, err
	}
	curveName, err := r.CString8()
	if err != nil {
		return nil, err
	}
	recipientPub, err := r.String8()
	if err != nil {
		return nil, err
	}
	ephemeralPub, err := r.String8()
	if err != nil {
		return nil, err
	}
	iv, err := r.String8()
	if err != nil {
		return nil, err
	}
	ctTag, err := r.String()
	if err != nil {
		return nil, err
	}

	b := &Box{
		GUIDSlotValid:    validByte == 1,
		Cipher:           cipherName,
		KDF:              kdfName,
		Nonce:            nonce,
		Curve:            curveName,
		RecipientPub:     recipientPub,
		EphemeralPub:     ephemeralPub,
		IV:               iv,
		CiphertextAndTag: ctTag,
	}
	if b.GUIDSlotValid {
		b.GUID = guid
		b.Slot = slot
	}
	return b, nil
}

// Validate checks a Box's structural invariants: the recipient and
// ephemeral points are on-curve and not the identity, and the
// cipher/curve/KDF are all recognized.
func (b *Box) Validate() error {
	curve, err := cryptutil.CurveByName(b.Curve)
	if err != nil {
		return err
	}
	if _, err := cryptutil.SuiteByName(b.Cipher); err != nil {
		return err
	}
	if b.KDF != "sha512" {
		return ErrUnsupportedKDF
	}
	rx, ry := elliptic.UnmarshalCompressed(curve.EC, b.RecipientPub)
	if rx == nil {
		return cryptutil.ErrBadPoint
	}
	if cryptutil.IsIdentity(rx, ry) {
		return ErrIdentityPoint
	}
	ex, ey := elliptic.UnmarshalCompressed(curve.EC, b.EphemeralPub)
	if ex == nil {
		return cryptutil.ErrBadPoint
	}
	if cryptutil.IsIdentity(ex, ey) {
		return ErrIdentityPoint
	}
	return nil
}
