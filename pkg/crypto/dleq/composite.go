package dleq

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
	"github.com/alxdavids/cbs-client/pkg/tokenerr"
)

// Composites folds the per-token arrays into the composite pair (M, Z).
//
// The coefficients are drawn from SHAKE256 seeded with a SHA256 digest of
// the commitments and every (M_i, Z_i) pair in order, so reordering,
// dropping or substituting any point changes all of them.
func Composites(g curve.Group, c Commitments, m, z []curve.Point) (curve.Point, curve.Point, error) {
	if len(m) == 0 || len(m) != len(z) {
		return curve.Point{}, curve.Point{}, fmt.Errorf("%w: %d blinded and %d signed points", tokenerr.ErrProofIncomplete, len(m), len(z))
	}

	h := sha256.New()
	h.Write(curve.EncodePoint(c.G, false))
	h.Write(curve.EncodePoint(c.H, false))
	for i := range m {
		h.Write(curve.EncodePoint(m[i], false))
		h.Write(curve.EncodePoint(z[i], false))
	}

	xof := sha3.NewShake256()
	xof.Write(h.Sum(nil))

	var cm, cz curve.Point
	for i := range m {
		ci, err := curve.ScalarFromReader(g.ID(), xof)
		if err != nil {
			return curve.Point{}, curve.Point{}, err
		}
		// A zero coefficient contributes nothing.
		if ci.Sign() == 0 {
			continue
		}

		if cm, err = accumulate(g, cm, m[i], ci); err != nil {
			return curve.Point{}, curve.Point{}, err
		}
		if cz, err = accumulate(g, cz, z[i], ci); err != nil {
			return curve.Point{}, curve.Point{}, err
		}
	}
	return cm, cz, nil
}

// accumulate returns acc + k*p, treating a zero acc as the empty sum.
func accumulate(g curve.Group, acc, p curve.Point, k *big.Int) (curve.Point, error) {
	kp, err := g.ScalarMult(p, k)
	if err != nil {
		return curve.Point{}, err
	}
	if acc.IsZero() {
		return kp, nil
	}
	return g.Add(acc, kp)
}

// linear returns a*P + b*Q. Zero scalars drop their term.
func linear(g curve.Group, a *big.Int, p curve.Point, b *big.Int, q curve.Point) (curve.Point, error) {
	n := g.Params().Order()
	var acc curve.Point
	var err error
	if new(big.Int).Mod(a, n).Sign() != 0 {
		if acc, err = accumulate(g, acc, p, a); err != nil {
			return curve.Point{}, err
		}
	}
	if new(big.Int).Mod(b, n).Sign() != 0 {
		if acc, err = accumulate(g, acc, q, b); err != nil {
			return curve.Point{}, err
		}
	}
	if acc.IsZero() {
		return curve.Point{}, curve.ErrIdentityPoint
	}
	return acc, nil
}
