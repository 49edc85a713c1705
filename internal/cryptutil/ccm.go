package cryptutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"errors"
)

// AES-256-CCM per RFC 3610, fixed at the parameters the Box/Ebox formats
// use: a 13-byte nonce (matching the "AES-CCM" profile most PIV-adjacent
// tooling standardizes on) and a 16-byte MAC. No available third-party Go
// package implements CCM (only GCM and ChaCha20-Poly1305 are available),
// so this is built directly on crypto/aes's block cipher — see DESIGN.md
// for the rest of that justification.
const (
	ccmNonceLen = 13
	ccmTagLen   = 16
	ccmBlockLen = aes.BlockSize
)

type ccmAEAD struct {
	block cipher.Block
}

func newAESCCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &ccmAEAD{block: block}, nil
}

func (c *ccmAEAD) NonceSize() int { return ccmNonceLen }
func (c *ccmAEAD) Overhead() int  { return ccmTagLen }

func (c *ccmAEAD) Seal(dst, nonce, plaintext, aad []byte) []byte {
	if len(nonce) != ccmNonceLen {
		panic("cryptutil: bad CCM nonce length")
	}
	mac := c.cbcMAC(nonce, plaintext, aad)
	ct := c.ctrCrypt(nonce, plaintext)
	maskedMAC := make([]byte, ccmTagLen)
	c.ctrXOR(nonce, 0, mac, maskedMAC)
	return append(append(dst, ct...), maskedMAC...)
}

func (c *ccmAEAD) Open(dst, nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != ccmNonceLen {
		panic("cryptutil: bad CCM nonce length")
	}
	if len(ciphertext) < ccmTagLen {
		return nil, errors.New("cryptutil: CCM ciphertext too short")
	}
	ct := ciphertext[:len(ciphertext)-ccmTagLen]
	tag := ciphertext[len(ciphertext)-ccmTagLen:]

	pt := c.ctrCrypt(nonce, ct)
	mac := c.cbcMAC(nonce, pt, aad)
	maskedMAC := make([]byte, ccmTagLen)
	c.ctrXOR(nonce, 0, mac, maskedMAC)

	if subtle.ConstantTimeCompare(maskedMAC, tag) != 1 {
		for i := range pt {
			pt[i] = 0
		}
		return nil, errors.New("cryptutil: CCM authentication failed")
	}
	return append(dst, pt...), nil
}

// ctrCrypt runs AES-CTR keyed by nonce starting at counter block 1 (block 0
// is reserved for masking the MAC, per RFC 3610 §2.3).
func (c *ccmAEAD) ctrCrypt(nonce, in []byte) []byte {
	out := make([]byte, len(in))
	c.ctrXOR(nonce, 1, in, out)
	return out
}

func (c *ccmAEAD) ctrXOR(nonce []byte, startBlock uint16, in, out []byte) {
	counter := make([]byte, ccmBlockLen)
	counter[0] = 1 // L-1 = 1, L = 2-byte counter field
	copy(counter[1:1+ccmNonceLen], nonce)

	var ks [ccmBlockLen]byte
	for off := 0; off < len(in); off += ccmBlockLen {
		binPutUint16(counter[ccmBlockLen-2:], startBlock)
		c.block.Encrypt(ks[:], counter)
		n := off + ccmBlockLen
		if n > len(in) {
			n = len(in)
		}
		for i := off; i < n; i++ {
			out[i] = in[i] ^ ks[i-off]
		}
		startBlock++
	}
}

// cbcMAC computes the RFC 3610 CBC-MAC over the associated data and
// plaintext, keyed by a B0 block built from nonce and the message lengths.
func (c *ccmAEAD) cbcMAC(nonce, plaintext, aad []byte) []byte {
	b0 := make([]byte, ccmBlockLen)
	flags := byte(0)
	if len(aad) > 0 {
		flags |= 0x40
	}
	flags |= byte((ccmTagLen - 2) / 2 << 3)
	flags |= 1 // L-1 = 1
	b0[0] = flags
	copy(b0[1:1+ccmNonceLen], nonce)
	binPutUint16(b0[ccmBlockLen-2:], uint16(len(plaintext)))

	mac := make([]byte, ccmBlockLen)
	c.block.Encrypt(mac, b0)

	if len(aad) > 0 {
		aadBlock := append(encodeAADLen(len(aad)), aad...)
		mac = cbcMACAppend(c.block, mac, aadBlock)
	}
	mac = cbcMACAppend(c.block, mac, plaintext)
	return mac[:ccmTagLen]
}

func encodeAADLen(n int) []byte {
	// aad is always well under 2^16-2^8 bytes for this container format
	// (metadata fields are u8/u8-length-prefixed), so the 2-byte length
	// encoding from RFC 3610 §2.2 suffices.
	return []byte{byte(n >> 8), byte(n)}
}

func cbcMACAppend(block cipher.Block, mac, data []byte) []byte {
	buf := make([]byte, 0, len(data)+ccmBlockLen)
	buf = append(buf, data...)
	for len(buf)%ccmBlockLen != 0 {
		buf = append(buf, 0)
	}
	chunk := make([]byte, ccmBlockLen)
	for off := 0; off < len(buf); off += ccmBlockLen {
		for i := 0; i < ccmBlockLen; i++ {
			chunk[i] = mac[i] ^ buf[off+i]
		}
		block.Encrypt(mac, chunk)
	}
	return mac
}

func binPutUint16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}
