package cryptutil

import "crypto/sha512"

// DeriveKey implements the Box KDF:
// K = SHA512(sharedX ∥ boxNonce)[:keyLen]. The full 64-byte digest is
// truncated, never expanded — there is no HKDF step here.
func DeriveKey(sharedX, boxNonce []byte, keyLen int) []byte {
	h := sha512.New()
	h.Write(sharedX)
	h.Write(boxNonce)
	sum := h.Sum(nil)
	if keyLen > len(sum) {
		panic("cryptutil: KDF requested more than 64 bytes")
	}
	key := make([]byte, keyLen)
	copy(key, sum[:keyLen])
	Zero(sum)
	return key
}
