// Package challenge implements a replay-resistant remote-unseal
// protocol: a recovery-machine-issued challenge carrying one Ebox
// recovery part's Box, answered by whoever holds the matching hardware
// token, verified and assembled back into Shamir shares on the recovery
// machine.
package challenge

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/sundarnagarajan/pivy/internal/wire"
)

const (
	protocolVersion = 1
	typeRecovery    = 1
)

// Metadata tags inside a challenge's inner payload. Bodies are always
// string8.
const (
	tagHostname    uint8 = 1
	tagCTime       uint8 = 2
	tagDescription uint8 = 3
	tagWords       uint8 = 4
	tagEnd         uint8 = 0
)

// Response payload tags.
const (
	tagID       uint8 = 1
	tagKeyPiece uint8 = 2
)

var (
	ErrBadVersion          = errors.New("challenge: unsupported protocol version")
	ErrBadType             = errors.New("challenge: unsupported challenge type")
	ErrMissingRequiredTag  = errors.New("challenge: missing required tag")
	ErrBadWordsLen         = errors.New("challenge: WORDS tag must be exactly 4 bytes")
	ErrBadCTimeLen         = errors.New("challenge: CTIME tag must be exactly 8 bytes")
	ErrBadIDLen            = errors.New("challenge: ID tag must be exactly 1 byte")
)

// Metadata is the human-facing context carried in a challenge: where it
// was issued from, when, why, and the 4 verification words the responder
// should read aloud and the operator should confirm.
type Metadata struct {
	Hostname    string
	CTime       uint64 // Unix seconds
	Description string
	Words       [4]uint8 // indices into wordlist.Words
}

// Payload is a challenge's inner, decrypted content: identifying the
// recovery part and temporary key this response must be addressed back
// to, the key-piece Box fields the outer Box doesn't already carry
// (cipher/kdf/curve/recipient are identical to the outer Box's, so they
// aren't repeated here), and the verification Metadata.
type Payload struct {
	PartID           uint8
	TempPub          []byte // SEC1 compressed, on the outer Box's curve
	EphemeralPub     []byte // SEC1 compressed, the inner key-piece Box's ephemeral
	Nonce            []byte
	IV               []byte
	CiphertextAndTag []byte
	Meta             Metadata
}

// Encode serializes p as the challenge's inner payload.
func (p Payload) Encode() []byte {
	w := wire.NewWriter()
	w.U8(protocolVersion)
	w.U8(typeRecovery)
	w.U8(p.PartID)
	w.String8(p.TempPub)
	w.String8(p.EphemeralPub)
	w.String8(p.Nonce)
	w.String8(p.IV)
	w.String8(p.CiphertextAndTag)

	if p.Meta.Hostname != "" {
		w.U8(tagHostname)
		w.String8([]byte(p.Meta.Hostname))
	}
	ctime := make([]byte, 8)
	for i := 0; i < 8; i++ {
		ctime[7-i] = byte(p.Meta.CTime >> (8 * i))
	}
	w.U8(tagCTime)
	w.String8(ctime)
	if p.Meta.Description != "" {
		w.U8(tagDescription)
		w.String8([]byte(p.Meta.Description))
	}
	w.U8(tagWords)
	w.String8(p.Meta.Words[:])
	w.U8(tagEnd)
	return w.Bytes()
}

// DecodePayload parses a challenge's inner payload. CTIME and WORDS are
// required; an unrecognized tag is skipped, since every tag here has a
// string8 body.
func DecodePayload(buf []byte) (Payload, error) {
	r := wire.NewReader(buf)
	version, err := r.U8()
	if err != nil {
		return Payload{}, err
	}
	if version != protocolVersion {
		return Payload{}, ErrBadVersion
	}
	typ, err := r.U8()
	if err != nil {
		return Payload{}, err
	}
	if typ != typeRecovery {
		return Payload{}, ErrBadType
	}
	partID, err := r.U8()
	if err != nil {
		return Payload{}, err
	}
	tempPub, err := r.String8()
	if err != nil {
		return Payload{}, err
	}
	eph, err := r.String8()
	if err != nil {
		return Payload{}, err
	}
	nonce, err := r.String8()
	if err != nil {
		return Payload{}, err
	}
	iv, err := r.String8()
	if err != nil {
		return Payload{}, err
	}
	ct, err := r.String8()
	if err != nil {
		return Payload{}, err
	}

	p := Payload{
		PartID:           partID,
		TempPub:          tempPub,
		EphemeralPub:     eph,
		Nonce:            nonce,
		IV:               iv,
		CiphertextAndTag: ct,
	}

	haveCTime, haveWords := false, false
	for {
		tag, err := r.U8()
		if err != nil {
			return Payload{}, err
		}
		if tag == tagEnd {
			break
		}
		body, err := r.String8()
		if err != nil {
			return Payload{}, err
		}
		switch tag {
		case tagHostname:
			p.Meta.Hostname = string(body)
		case tagCTime:
			if len(body) != 8 {
				return Payload{}, ErrBadCTimeLen
			}
			var v uint64
			for _, c := range body {
				v = v<<8 | uint64(c)
			}
			p.Meta.CTime = v
			haveCTime = true
		case tagDescription:
			p.Meta.Description = string(body)
		case tagWords:
			if len(body) != 4 {
				return Payload{}, ErrBadWordsLen
			}
			copy(p.Meta.Words[:], body)
			haveWords = true
		}
		// Unrecognized tags are skipped; every metadata tag body here is
		// string8, so the generic read above already stays in sync.
	}
	if !haveCTime || !haveWords {
		return Payload{}, ErrMissingRequiredTag
	}
	return p, nil
}

// ResponsePayload is a response's inner, decrypted content: the echoed
// part ID and the recovered key-piece plaintext.
type ResponsePayload struct {
	ID        uint8
	KeyPiece  []byte
}

// Encode serializes r as the response's inner payload.
func (r ResponsePayload) Encode() []byte {
	w := wire.NewWriter()
	w.U8(tagID)
	w.String8([]byte{r.ID})
	w.U8(tagKeyPiece)
	w.String8(r.KeyPiece)
	w.U8(tagEnd)
	return w.Bytes()
}

// DecodeResponsePayload parses a response's inner payload. Unknown tags
// with a string8 body are skipped.
func DecodeResponsePayload(buf []byte) (ResponsePayload, error) {
	r := wire.NewReader(buf)
	var out ResponsePayload
	haveID, haveKeyPiece := false, false
	for {
		tag, err := r.U8()
		if err != nil {
			return ResponsePayload{}, err
		}
		if tag == tagEnd {
			break
		}
		body, err := r.String8()
		if err != nil {
			return ResponsePayload{}, err
		}
		switch tag {
		case tagID:
			if len(body) != 1 {
				return ResponsePayload{}, ErrBadIDLen
			}
			out.ID = body[0]
			haveID = true
		case tagKeyPiece:
			out.KeyPiece = body
			haveKeyPiece = true
		}
	}
	if !haveID || !haveKeyPiece {
		return ResponsePayload{}, ErrMissingRequiredTag
	}
	return out, nil
}

// EncodeFrame base64-encodes buf with the standard alphabet and wraps
// lines at 64 characters, so a challenge or response can be copy-pasted
// through a text-only channel.
func EncodeFrame(buf []byte) string {
	enc := base64.StdEncoding.EncodeToString(buf)
	var b strings.Builder
	for i := 0; i < len(enc); i += 64 {
		end := i + 64
		if end > len(enc) {
			end = len(enc)
		}
		b.WriteString(enc[i:end])
		b.WriteByte('\n')
	}
	return b.String()
}

// DecodeFrame strips whitespace and base64-decodes a framed blob.
func DecodeFrame(s string) ([]byte, error) {
	var b strings.Builder
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return base64.StdEncoding.DecodeString(b.String())
}
