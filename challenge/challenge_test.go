package challenge

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/sundarnagarajan/pivy/box"
	"github.com/sundarnagarajan/pivy/ebox"
	"github.com/sundarnagarajan/pivy/internal/cryptutil"
	"github.com/sundarnagarajan/pivy/internal/wire"
	"github.com/sundarnagarajan/pivy/piv"
)

type recoveryFixture struct {
	e        *ebox.Ebox
	oracles  []*piv.SoftwareOracle
}

func buildRecoveryFixture(t *testing.T, n, m int) recoveryFixture {
	t.Helper()
	curve, err := cryptutil.CurveByName("nistp256")
	if err != nil {
		t.Fatalf("CurveByName: %v", err)
	}

	primaryPriv, err := curve.DH.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	primaryOracle, err := piv.NewSoftwareOracle()
	if err != nil {
		t.Fatalf("NewSoftwareOracle: %v", err)
	}
	primaryOracle.AddSlot(nil, 0x9a, "nistp256", primaryPriv)

	recipients := make([]ebox.Recipient, m)
	oracles := make([]*piv.SoftwareOracle, m)
	for i := 0; i < m; i++ {
		priv, err := curve.DH.GenerateKey(rand.Reader)
		if err != nil {
			t.Fatalf("GenerateKey: %v", err)
		}
		oracle, err := piv.NewSoftwareOracle()
		if err != nil {
			t.Fatalf("NewSoftwareOracle: %v", err)
		}
		slot := uint8(0x90 + i)
		oracle.AddSlot(nil, slot, "nistp256", priv)
		recipients[i] = ebox.Recipient{Curve: "nistp256", PublicKey: priv.PublicKey(), Slot: slot, SlotSet: true}
		oracles[i] = oracle
	}

	finalKey := bytes.Repeat([]byte{0x5a}, 32)
	e, err := ebox.Seal(finalKey, ebox.SealSpec{
		Primary: ebox.Recipient{Curve: "nistp256", PublicKey: primaryPriv.PublicKey(), Slot: 0x9a, SlotSet: true},
		Recovery: []ebox.RecoveryConfig{{N: n, Recipients: recipients}},
	})
	if err != nil {
		t.Fatalf("ebox.Seal: %v", err)
	}
	return recoveryFixture{e: e, oracles: oracles}
}

func TestChallengeResponseRoundTrip(t *testing.T) {
	fx := buildRecoveryFixture(t, 2, 3)

	log := NewAuditLog()
	sess, lockErr := NewSession(fx.e, 1, "nistp256", log)
	if sess == nil {
		t.Fatalf("NewSession: %v", lockErr)
	}

	frame, err := sess.EmitChallenge(0, Metadata{
		Hostname:    "recovery-host",
		Description: "quarterly drill",
		Words:       [4]uint8{1, 2, 3, 4},
	})
	if err != nil {
		t.Fatalf("EmitChallenge: %v", err)
	}

	challengeBuf, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	outerChallenge, err := box.Decode(challengeBuf)
	if err != nil {
		t.Fatalf("box.Decode: %v", err)
	}

	var words [4]string
	responseBox, err := AnswerChallenge(outerChallenge, fx.oracles[0], &words)
	if err != nil {
		t.Fatalf("AnswerChallenge: %v", err)
	}
	if words[0] == "" {
		t.Fatal("expected resolved verification words")
	}

	responseFrame := EncodeFrame(responseBox.Encode())
	if err := sess.AcceptResponse(responseFrame); err != nil {
		t.Fatalf("AcceptResponse: %v", err)
	}

	frame2, err := sess.EmitChallenge(1, Metadata{Words: [4]uint8{5, 6, 7, 8}})
	if err != nil {
		t.Fatalf("EmitChallenge(1): %v", err)
	}
	buf2, err := DecodeFrame(frame2)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	outer2, err := box.Decode(buf2)
	if err != nil {
		t.Fatalf("box.Decode: %v", err)
	}
	resp2, err := AnswerChallenge(outer2, fx.oracles[1], nil)
	if err != nil {
		t.Fatalf("AnswerChallenge(1): %v", err)
	}
	if err := sess.AcceptResponse(EncodeFrame(resp2.Encode())); err != nil {
		t.Fatalf("AcceptResponse(1): %v", err)
	}

	if !sess.ReadyToCombine() {
		t.Fatal("expected session to be ready to combine after 2 of 3 shares")
	}
	final, err := sess.Combine()
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if !bytes.Equal(final, bytes.Repeat([]byte{0x5a}, 32)) {
		t.Fatal("recovered key mismatch")
	}
	if sess.TempPriv != nil {
		t.Fatal("expected temporary key to be zeroized/dropped after Combine")
	}

	if err := log.Verify(); err != nil {
		t.Fatalf("audit log chain broken: %v", err)
	}
	entries := log.Entries()
	if len(entries) == 0 {
		t.Fatal("expected recorded state transitions")
	}
	last := entries[len(entries)-1]
	if last.CfgIndex != 1 || last.PartIndex != -1 || last.State != StateDone {
		t.Fatalf("unexpected final audit entry: %+v", last)
	}
}

func TestChallengeMissingWordsRejected(t *testing.T) {
	w := wire.NewWriter()
	w.U8(protocolVersion)
	w.U8(typeRecovery)
	w.U8(3)
	w.String8(bytes.Repeat([]byte{0x02}, 33))
	w.String8(bytes.Repeat([]byte{0x03}, 33))
	w.String8(bytes.Repeat([]byte{0}, 16))
	w.String8(nil)
	w.String8([]byte("ct"))
	w.U8(tagCTime)
	w.String8([]byte{0, 0, 0, 0, 0, 0, 0x30, 0x39})
	w.U8(tagEnd) // omit WORDS entirely

	if _, err := DecodePayload(w.Bytes()); err != ErrMissingRequiredTag {
		t.Fatalf("expected ErrMissingRequiredTag, got %v", err)
	}
}

func TestEncodeFrameLineWrap(t *testing.T) {
	framed := EncodeFrame(bytes.Repeat([]byte{0x41}, 100))
	for _, line := range bytes.Split(bytes.TrimRight([]byte(framed), "\n"), []byte("\n")) {
		if len(line) > 64 {
			t.Fatalf("line exceeds 64 chars: %d", len(line))
		}
	}
	roundtrip, err := DecodeFrame(framed)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if !bytes.Equal(roundtrip, bytes.Repeat([]byte{0x41}, 100)) {
		t.Fatal("frame roundtrip mismatch")
	}
}
