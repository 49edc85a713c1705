package ebox

import (
	"errors"

	"github.com/sundarnagarajan/pivy/internal/wire"
)

// Part tags. OptionalBit marks a tag whose absence from a reader's
// vocabulary must be tolerated (skipped) rather than treated as a parse
// failure.
const (
	TagPubKey    uint8 = 1
	TagName      uint8 = 2
	TagCAK       uint8 = 3
	TagGUID      uint8 = 4
	TagBox       uint8 = 5
	TagSlot      uint8 = 6
	TagEnd       uint8 = 0
	OptionalBit  uint8 = 0x80
)

// partBox holds the Box fields a Part's BOX tag carries on the wire.
// The ephemeral public key is deliberately absent: it's recovered from
// the enclosing Ebox's per-curve Ephemerals map instead of being
// repeated in every part (the whole point of ephemeral sharing).
type partBox struct {
	Cipher           string
	KDF              string
	Nonce            []byte
	Curve            string
	RecipientPub     []byte
	IV               []byte
	CiphertextAndTag []byte
}

// Part is one recipient's share of a Config: identifying metadata plus
// the Box that protects its key-piece (or, for a PRIMARY config's sole
// part, K_final itself).
type Part struct {
	PubKeyAlgo string // present iff PubKeyAlgo != ""
	PubKeyRaw  []byte
	Name       string // present iff Name != ""
	CAKAlgo    string // present iff CAKAlgo != ""
	CAKRaw     []byte
	GUID       []byte // present iff non-nil
	Slot       uint8
	SlotSet    bool
	Box        partBox
}

var (
	ErrUnknownRequiredTag = errors.New("ebox: unknown non-optional part tag")
	ErrMissingBox         = errors.New("ebox: part has no BOX tag")
)

func encodePart(w *wire.Writer, p Part) {
	if p.PubKeyAlgo != "" {
		w.U8(TagPubKey)
		w.Key(p.PubKeyAlgo, p.PubKeyRaw)
	}
	if p.Name != "" {
		w.U8(TagName)
		w.CString8(p.Name)
	}
	if p.CAKAlgo != "" {
		w.U8(TagCAK)
		w.Key(p.CAKAlgo, p.CAKRaw)
	}
	if p.GUID != nil {
		w.U8(TagGUID)
		w.String8(p.GUID)
	}
	if p.SlotSet {
		w.U8(TagSlot)
		w.U8(p.Slot)
	}
	w.U8(TagBox)
	w.CString8(p.Box.Cipher)
	w.CString8(p.Box.KDF)
	w.String8(p.Box.Nonce)
	w.CString8(p.Box.Curve)
	w.String8(p.Box.RecipientPub)
	w.String8(p.Box.IV)
	w.String(p.Box.CiphertextAndTag)
	w.U8(TagEnd)
}

func decodePart(r *wire.Reader) (Part, error) {
	var p Part
	haveBox := false
	for {
		tag, err := r.U8()
		if err != nil {
			return Part{}, err
		}
		if tag == TagEnd {
			break
		}
		optional := tag&OptionalBit != 0
		base := tag &^ OptionalBit
		switch base {
		case TagPubKey:
			algo, raw, err := r.Key()
			if err != nil {
				return Part{}, err
			}
			p.PubKeyAlgo, p.PubKeyRaw = algo, raw
		case TagName:
			name, err := r.CString8()
			if err != nil {
				return Part{}, err
			}
			p.Name = name
		case TagCAK:
			algo, raw, err := r.Key()
			if err != nil {
				return Part{}, err
			}
			p.CAKAlgo, p.CAKRaw = algo, raw
		case TagGUID:
			guid, err := r.String8()
			if err != nil {
				return Part{}, err
			}
			p.GUID = guid
		case TagSlot:
			slot, err := r.U8()
			if err != nil {
				return Part{}, err
			}
			p.Slot, p.SlotSet = slot, true
		case TagBox:
			cipher, err := r.CString8()
			if err != nil {
				return Part{}, err
			}
			kdf, err := r.CString8()
			if err != nil {
				return Part{}, err
			}
			nonce, err := r.String8()
			if err != nil {
				return Part{}, err
			}
			curve, err := r.CString8()
			if err != nil {
				return Part{}, err
			}
			recipientPub, err := r.String8()
			if err != nil {
				return Part{}, err
			}
			iv, err := r.String8()
			if err != nil {
				return Part{}, err
			}
			ctTag, err := r.String()
			if err != nil {
				return Part{}, err
			}
			p.Box = partBox{
				Cipher:           cipher,
				KDF:              kdf,
				Nonce:            nonce,
				Curve:            curve,
				RecipientPub:     recipientPub,
				IV:               iv,
				CiphertextAndTag: ctTag,
			}
			haveBox = true
		default:
			if !optional {
				return Part{}, ErrUnknownRequiredTag
			}
			// Unknown OPTIONAL tags carry a string8 body we must still
			// consume to stay synced with the stream, but their content
			// isn't meaningful to this implementation.
			if _, err := r.String8(); err != nil {
				return Part{}, err
			}
		}
	}
	if !haveBox {
		return Part{}, ErrMissingBox
	}
	return p, nil
}
