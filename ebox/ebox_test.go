package ebox

import (
	"bytes"
	"crypto/ecdh"
	"crypto/rand"
	"testing"

	"github.com/sundarnagarajan/pivy/box"
	"github.com/sundarnagarajan/pivy/internal/cryptutil"
	"github.com/sundarnagarajan/pivy/internal/wire"
	"github.com/sundarnagarajan/pivy/piv"
)

type testKey struct {
	priv   *ecdh.PrivateKey
	oracle *piv.SoftwareOracle
	curve  string
	slot   uint8
}

func genKey(t *testing.T, curveName string, slot uint8) testKey {
	t.Helper()
	curve, err := cryptutil.CurveByName(curveName)
	if err != nil {
		t.Fatalf("CurveByName: %v", err)
	}
	priv, err := curve.DH.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	oracle, err := piv.NewSoftwareOracle()
	if err != nil {
		t.Fatalf("NewSoftwareOracle: %v", err)
	}
	oracle.AddSlot(nil, slot, curveName, priv)
	return testKey{priv: priv, oracle: oracle, curve: curveName, slot: slot}
}

// rcpt builds the Recipient matching k's oracle registration: Slot/SlotSet
// must agree with the (guid, slot) pair the key was registered under so
// Unseal's oracle lookup can find it again.
func (k testKey) rcpt(name string) Recipient {
	return Recipient{Curve: k.curve, PublicKey: k.priv.PublicKey(), Name: name, Slot: k.slot, SlotSet: true}
}

func TestPrimaryOnlySealUnseal(t *testing.T) {
	k := genKey(t, "nistp256", 0x9a)
	finalKey := bytes.Repeat([]byte{0x42}, 32)

	e, err := Seal(finalKey, SealSpec{
		Primary: k.rcpt("primary"),
	})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if err := e.ValidateEphemeralSharing(); err != nil {
		t.Fatalf("ValidateEphemeralSharing: %v", err)
	}
	got, err := e.Unseal(k.oracle)
	if err != nil {
		t.Fatalf("Unseal: %v", err)
	}
	if !bytes.Equal(got, finalKey) {
		t.Fatal("primary unseal mismatch")
	}
}

func TestPrimaryPlusRecoveryTwoOfThree(t *testing.T) {
	primary := genKey(t, "nistp256", 0x9a)
	r1 := genKey(t, "nistp256", 0x9c)
	r2 := genKey(t, "nistp384", 0x9d)
	r3 := genKey(t, "nistp256", 0x9e)

	finalKey := bytes.Repeat([]byte{0x99}, 32)

	e, err := Seal(finalKey, SealSpec{
		Primary: primary.rcpt("primary"),
		Recovery: []RecoveryConfig{
			{
				N: 2,
				Recipients: []Recipient{
					r1.rcpt("r1"),
					r2.rcpt("r2"),
					r3.rcpt("r3"),
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if err := e.ValidateEphemeralSharing(); err != nil {
		t.Fatalf("ValidateEphemeralSharing: %v", err)
	}

	// Primary recipient unseals directly.
	got, err := e.Unseal(primary.oracle)
	if err != nil {
		t.Fatalf("primary Unseal: %v", err)
	}
	if !bytes.Equal(got, finalKey) {
		t.Fatal("primary unseal mismatch")
	}

	// r1+r2 (2-of-3, different curves) recover via the RECOVERY config.
	merged, err := piv.NewSoftwareOracle()
	if err != nil {
		t.Fatalf("NewSoftwareOracle: %v", err)
	}
	merged.AddSlot(nil, 0x9c, "nistp256", r1.priv)
	merged.AddSlot(nil, 0x9d, "nistp384", r2.priv)

	got, err = e.UnsealRecovery(1, merged)
	if err != nil {
		t.Fatalf("UnsealRecovery: %v", err)
	}
	if !bytes.Equal(got, finalKey) {
		t.Fatal("recovery unseal mismatch")
	}
}

func TestRecoveryInsufficientShares(t *testing.T) {
	primary := genKey(t, "nistp256", 0x9a)
	r1 := genKey(t, "nistp256", 0x9c)
	r2 := genKey(t, "nistp256", 0x9d)
	r3 := genKey(t, "nistp256", 0x9e)
	finalKey := bytes.Repeat([]byte{0x11}, 32)

	e, err := Seal(finalKey, SealSpec{
		Primary: primary.rcpt(""),
		Recovery: []RecoveryConfig{{
			N: 2,
			Recipients: []Recipient{
				r1.rcpt("r1"),
				r2.rcpt("r2"),
				r3.rcpt("r3"),
			},
		}},
	})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	only, err := piv.NewSoftwareOracle()
	if err != nil {
		t.Fatalf("NewSoftwareOracle: %v", err)
	}
	only.AddSlot(nil, 0x9c, "nistp256", r1.priv)
	if _, err := e.UnsealRecovery(1, only); err != ErrInsufficientShares {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
}

func TestCrossConfigIsolation(t *testing.T) {
	primary := genKey(t, "nistp256", 0x9a)
	rA1 := genKey(t, "nistp256", 0x9c)
	rA2 := genKey(t, "nistp256", 0x9d)
	rB1 := genKey(t, "nistp256", 0x9c)
	rB2 := genKey(t, "nistp256", 0x9d)
	finalKey := bytes.Repeat([]byte{0x55}, 32)

	e, err := Seal(finalKey, SealSpec{
		Primary: primary.rcpt(""),
		Recovery: []RecoveryConfig{
			{N: 2, Recipients: []Recipient{rA1.rcpt("a1"), rA2.rcpt("a2")}},
			{N: 2, Recipients: []Recipient{rB1.rcpt("b1"), rB2.rcpt("b2")}},
		},
	})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	// Shares from config B's boxes must not satisfy config A's unseal:
	// mixing shares from the wrong config should fail closed.
	oracleB, err := piv.NewSoftwareOracle()
	if err != nil {
		t.Fatalf("NewSoftwareOracle: %v", err)
	}
	oracleB.AddSlot(nil, 0x9c, "nistp256", rB1.priv)
	oracleB.AddSlot(nil, 0x9d, "nistp256", rB2.priv)

	// Config 0 is the PRIMARY config, so config A is index 1 and B is 2.
	if _, err := e.CombineShares(1, mustShares(t, e, 2, oracleB)); err != ErrBadShares {
		t.Fatalf("expected ErrBadShares from cross-config shares, got %v", err)
	}
}

func mustShares(t *testing.T, e *Ebox, cfgIdx int, oracle piv.Oracle) [][]byte {
	t.Helper()
	cfg := e.Configs[cfgIdx]
	shares := make([][]byte, 0, len(cfg.Parts))
	for _, p := range cfg.Parts {
		b, err := e.boxForPart(p)
		if err != nil {
			t.Fatalf("boxForPart: %v", err)
		}
		share, err := box.Unseal(b, oracle)
		if err != nil {
			t.Fatalf("box.Unseal: %v", err)
		}
		shares = append(shares, share)
	}
	return shares
}

func TestEboxEncodeDecodeRoundTrip(t *testing.T) {
	primary := genKey(t, "nistp256", 0x9a)
	r1 := genKey(t, "nistp384", 0x9c)
	r2 := genKey(t, "nistp384", 0x9d)
	finalKey := bytes.Repeat([]byte{0x77}, 32)

	e, err := Seal(finalKey, SealSpec{
		Primary: primary.rcpt("me"),
		Recovery: []RecoveryConfig{{
			N: 2,
			Recipients: []Recipient{r1.rcpt("r1"), r2.rcpt("r2")},
		}},
	})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	enc := e.Encode()
	dec, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(enc, dec.Encode()) {
		t.Fatal("Parse(Serialize(e)) != e")
	}
	got, err := dec.Unseal(primary.oracle)
	if err != nil {
		t.Fatalf("Unseal after roundtrip: %v", err)
	}
	if !bytes.Equal(got, finalKey) {
		t.Fatal("roundtrip unseal mismatch")
	}
}

func TestUnknownRequiredTagRejected(t *testing.T) {
	w := wire.NewWriter()
	w.U8(0x7f) // unrecognized, non-optional (high bit clear)
	w.String8([]byte("whatever"))
	w.U8(TagEnd)
	if _, err := decodePart(wire.NewReader(w.Bytes())); err != ErrUnknownRequiredTag {
		t.Fatalf("expected ErrUnknownRequiredTag, got %v", err)
	}
}

func TestUnknownOptionalTagSkipped(t *testing.T) {
	w := wire.NewWriter()
	w.U8(0x7f | OptionalBit) // unrecognized, but OPTIONAL
	w.String8([]byte("whatever"))
	w.U8(TagBox)
	w.CString8("chacha20-poly1305")
	w.CString8("sha512")
	w.String8(bytes.Repeat([]byte{0}, 16))
	w.CString8("nistp256")
	w.String8(bytes.Repeat([]byte{0}, 33))
	w.String8(nil)
	w.String([]byte("ct"))
	w.U8(TagEnd)

	p, err := decodePart(wire.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("decodePart: %v", err)
	}
	if p.Box.Curve != "nistp256" {
		t.Fatalf("expected the BOX tag after the skipped unknown OPTIONAL tag to parse, got %+v", p)
	}
}

func TestSealRejectsOversizedName(t *testing.T) {
	k := genKey(t, "nistp256", 0x9a)
	rcpt := k.rcpt(string(bytes.Repeat([]byte{'a'}, 255)))
	if _, err := Seal(bytes.Repeat([]byte{0x01}, 32), SealSpec{Primary: rcpt}); err != wire.ErrLengthOverflow {
		t.Fatalf("expected ErrLengthOverflow, got %v", err)
	}
}

func TestCAKTagRoundTrip(t *testing.T) {
	p := Part{
		CAKAlgo: "ed25519",
		CAKRaw:  bytes.Repeat([]byte{0x42}, 32),
		Box: partBox{
			Cipher:       "chacha20-poly1305",
			KDF:          "sha512",
			Nonce:        bytes.Repeat([]byte{0}, 16),
			Curve:        "nistp256",
			RecipientPub: bytes.Repeat([]byte{0}, 33),
			CiphertextAndTag: []byte("ct"),
		},
	}
	w := wire.NewWriter()
	encodePart(w, p)

	dec, err := decodePart(wire.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("decodePart: %v", err)
	}
	if dec.CAKAlgo != p.CAKAlgo || !bytes.Equal(dec.CAKRaw, p.CAKRaw) {
		t.Fatalf("CAK round-trip mismatch: got algo=%q raw=%x", dec.CAKAlgo, dec.CAKRaw)
	}
}
