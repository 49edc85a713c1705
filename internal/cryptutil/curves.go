package cryptutil

import (
	"crypto/ecdh"
	"crypto/elliptic"
	"errors"
	"math/big"
)

// ErrUnsupportedCurve is returned for any curve name outside the
// {nistp256, nistp384, nistp521} set this package recognizes.
var ErrUnsupportedCurve = errors.New("cryptutil: unsupported curve")

// Curve describes one of the three NIST curves the container formats
// support, bundling the stdlib elliptic.Curve (used for wire-level point
// marshalling) with the stdlib ecdh.Curve (used to perform ECDH itself).
type Curve struct {
	Name     string
	EC       elliptic.Curve
	DH       ecdh.Curve
	ByteSize int // coordinate byte-length, used to pad ECDH output
}

var curves = []Curve{
	{Name: "nistp256", EC: elliptic.P256(), DH: ecdh.P256(), ByteSize: 32},
	{Name: "nistp384", EC: elliptic.P384(), DH: ecdh.P384(), ByteSize: 48},
	{Name: "nistp521", EC: elliptic.P521(), DH: ecdh.P521(), ByteSize: 66},
}

// CurveByName looks up a Curve by its wire name ("nistp256", ...).
func CurveByName(name string) (Curve, error) {
	for _, c := range curves {
		if c.Name == name {
			return c, nil
		}
	}
	return Curve{}, ErrUnsupportedCurve
}

// CurveByEC looks up a Curve by its elliptic.Curve value, used when a
// caller already has a *ecdsa.PublicKey-style curve and needs the wire
// name for it.
func CurveByEC(ec elliptic.Curve) (Curve, error) {
	for _, c := range curves {
		if c.EC == ec {
			return c, nil
		}
	}
	return Curve{}, ErrUnsupportedCurve
}

// PointToDHKey converts an (x, y) point on c into a crypto/ecdh public key,
// going through the uncompressed SEC1 encoding since crypto/ecdh's NIST
// curves only parse that form directly.
func (c Curve) PointToDHKey(x, y *big.Int) (*ecdh.PublicKey, error) {
	if x == nil || y == nil || !c.EC.IsOnCurve(x, y) {
		return nil, ErrBadPoint
	}
	return c.DH.NewPublicKey(elliptic.Marshal(c.EC, x, y))
}

// DHKeyToPoint recovers the (x, y) coordinates backing a crypto/ecdh
// public key, for wire-encoding as eckey/eckey8.
func (c Curve) DHKeyToPoint(pub *ecdh.PublicKey) (x, y *big.Int) {
	return elliptic.Unmarshal(c.EC, pub.Bytes())
}

// ErrBadPoint mirrors wire.ErrBadPoint for the crypto layer's own point
// validation (generating/combining points, not just parsing them).
var ErrBadPoint = errors.New("cryptutil: point not on curve or is identity")

// IsIdentity reports whether (x, y) is the point at infinity as
// represented by Go's elliptic package (coordinates both nil or zero).
func IsIdentity(x, y *big.Int) bool {
	return x == nil || y == nil || (x.Sign() == 0 && y.Sign() == 0)
}
