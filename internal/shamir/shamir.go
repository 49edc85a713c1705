// Package shamir implements GF(2^8) Shamir secret sharing over fixed
// 32-byte secrets: a secret is split byte-by-byte, each byte as the
// constant term of an independent random degree-(N-1) polynomial
// evaluated at 1..M, yielding M shares of 33 bytes each (1-byte
// x-coordinate, 32-byte y). Reconstruction is Lagrange interpolation at
// x=0 over any N distinct shares.
//
// The arithmetic itself is github.com/codahale/sss, which implements
// exactly this per-byte construction; this package only adapts its
// generic []byte secret/share convention to the fixed 32-byte secrets and
// 33-byte shares this container format uses.
package shamir

import (
	"errors"

	"github.com/codahale/sss"
)

const (
	SecretLen = 32
	ShareLen  = SecretLen + 1
)

var (
	ErrBadSecretLen = errors.New("shamir: secret must be 32 bytes")
	ErrBadShareLen  = errors.New("shamir: share must be 33 bytes")
	ErrBadThreshold = errors.New("shamir: threshold must be between 1 and 255, and at most the share count")
	ErrDuplicateX   = errors.New("shamir: duplicate share x-coordinate")
)

// Split breaks secret into m shares, any n of which reconstruct it.
func Split(secret []byte, n, m int) ([][]byte, error) {
	if len(secret) != SecretLen {
		return nil, ErrBadSecretLen
	}
	if n < 1 || n > 255 || n > m {
		return nil, ErrBadThreshold
	}
	shareMap, err := sss.Split(byte(m), byte(n), secret)
	if err != nil {
		return nil, err
	}
	shares := make([][]byte, 0, m)
	for x, y := range shareMap {
		share := make([]byte, ShareLen)
		share[0] = x
		copy(share[1:], y)
		shares = append(shares, share)
	}
	return shares, nil
}

// Combine reconstructs the 32-byte secret from any N distinct shares
// produced by Split with the same threshold.
func Combine(shares [][]byte) ([]byte, error) {
	shareMap := make(map[byte][]byte, len(shares))
	for _, s := range shares {
		if len(s) != ShareLen {
			return nil, ErrBadShareLen
		}
		x := s[0]
		if _, dup := shareMap[x]; dup {
			return nil, ErrDuplicateX
		}
		shareMap[x] = append([]byte(nil), s[1:]...)
	}
	return sss.Combine(shareMap), nil
}
