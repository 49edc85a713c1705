package cryptutil

// Zero overwrites a byte slice in memory with zeros. Every buffer that
// ever holds an EC private scalar, an ECDH shared secret, a symmetric
// key, a Shamir share, or plaintext key material should be passed
// through this (or Zero32) before it is released.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Zero32 is Zero specialized for the fixed-size secrets (intermediate
// keys, final keys) this package passes around as [32]byte.
func Zero32(b *[32]byte) {
	for i := range b {
		b[i] = 0
	}
}
