// Package token implements the client side of token issuance: minting
// blinded tokens, building the issue request, and validating the issuer's
// signed response against its batch proof.
package token

import (
	"math/big"

	"github.com/alxdavids/cbs-client/pkg/crypto/blind"
	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
)

// Token is a random preimage and the curve point derived from it.
// It is immutable once minted.
type Token struct {
	Preimage []byte
	Point    curve.Point
}

// BlindedToken is a token together with its blind and the blinded point
// sent to the issuer. The blind never leaves the client.
type BlindedToken struct {
	Token
	Blind        *big.Int
	BlindedPoint curve.Point
}

// SignedToken is a token whose blinded point has been signed by the issuer.
// SignedPoint is still blinded.
type SignedToken struct {
	Token
	Blind       *big.Int
	SignedPoint curve.Point
}

// Unblind returns the issuer's signature over the token point itself.
func (st SignedToken) Unblind(g curve.Group) (curve.Point, error) {
	return blind.Unblind(g, st.Blind, st.SignedPoint)
}

func blindedPoints(tokens []BlindedToken) []curve.Point {
	pts := make([]curve.Point, len(tokens))
	for i, t := range tokens {
		pts[i] = t.BlindedPoint
	}
	return pts
}
