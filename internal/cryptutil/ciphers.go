package cryptutil

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrUnsupportedCipher is returned for any cipher name outside the suite
// this package recognizes.
var ErrUnsupportedCipher = errors.New("cryptutil: unsupported cipher")

// CipherSuite describes one AEAD cipher identified by its wire name.
type CipherSuite struct {
	Name     string
	KeyLen   int
	NonceLen int // the cipher's own IV/nonce length, distinct from the Box nonce
	TagLen   int
	newAEAD  func(key []byte) (cipher.AEAD, error)
}

var suites = []CipherSuite{
	{
		Name:     "chacha20-poly1305",
		KeyLen:   chacha20poly1305.KeySize,
		NonceLen: chacha20poly1305.NonceSize,
		TagLen:   chacha20poly1305.Overhead,
		newAEAD:  chacha20poly1305.New,
	},
	{
		Name:     "aes256-gcm",
		KeyLen:   32,
		NonceLen: 12,
		TagLen:   16,
		newAEAD:  newAESGCM,
	},
	{
		Name:     "aes256-ccm",
		KeyLen:   32,
		NonceLen: ccmNonceLen,
		TagLen:   ccmTagLen,
		newAEAD:  newAESCCM,
	},
}

func newAESGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// SuiteByName looks up a CipherSuite by its wire name, rejecting anything
// not in the enumerated AEAD set: every registered suite is an AEAD, so
// there is nothing else to accidentally select.
func SuiteByName(name string) (CipherSuite, error) {
	for _, s := range suites {
		if s.Name == name {
			return s, nil
		}
	}
	return CipherSuite{}, ErrUnsupportedCipher
}

// AEAD constructs the cipher.AEAD for this suite under key.
func (s CipherSuite) AEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != s.KeyLen {
		return nil, errors.New("cryptutil: wrong key length for cipher suite")
	}
	return s.newAEAD(key)
}

// ZeroIV returns an all-zero IV/nonce of the length this suite's AEAD
// requires, used when the Box's iv field is empty.
func (s CipherSuite) ZeroIV() []byte {
	return make([]byte, s.NonceLen)
}

// Seal runs AEAD_Seal with no associated data.
func Seal(s CipherSuite, key, iv, plaintext []byte) ([]byte, error) {
	aead, err := s.AEAD(key)
	if err != nil {
		return nil, err
	}
	if len(iv) == 0 {
		iv = s.ZeroIV()
	}
	return aead.Seal(nil, iv, plaintext, nil), nil
}

// ErrAuthFail is returned by Open on any authentication failure. It never
// carries the attempted plaintext.
var ErrAuthFail = errors.New("cryptutil: AEAD authentication failed")

// Open runs AEAD_Open with no associated data. On failure it returns
// ErrAuthFail and nothing else — callers must not be able to distinguish
// a bad key from corrupt ciphertext from this error alone.
func Open(s CipherSuite, key, iv, ciphertextAndTag []byte) ([]byte, error) {
	aead, err := s.AEAD(key)
	if err != nil {
		return nil, ErrAuthFail
	}
	if len(iv) == 0 {
		iv = s.ZeroIV()
	}
	if len(ciphertextAndTag) < s.TagLen {
		return nil, ErrAuthFail
	}
	pt, err := aead.Open(nil, iv, ciphertextAndTag, nil)
	if err != nil {
		return nil, ErrAuthFail
	}
	return pt, nil
}
