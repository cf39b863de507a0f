// Package blind implements the scalar-multiplication blinding used for
// token issuance.
//
// A client holding a token point T picks a random scalar b and sends only
// b*T to the issuer. The issuer returns x*(b*T). Multiplying by b^-1 gives
// x*T, a signature over T the issuer never saw:
//
//	Blind:   P  -> b*P
//	Sign:    bP -> x*(b*P)
//	Unblind: Q  -> b^-1 * Q = x*P
//
// The blind b must never leave the client.
package blind

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
	"github.com/alxdavids/cbs-client/pkg/tokenerr"
)

// Engine blinds points with scalars drawn from an injected source.
type Engine struct {
	group curve.Group
	rand  io.Reader
}

// NewEngine returns an Engine over g. A nil reader selects crypto/rand.Reader.
func NewEngine(g curve.Group, r io.Reader) *Engine {
	if r == nil {
		r = rand.Reader
	}
	return &Engine{group: g, rand: r}
}

// Group returns the curve backend the engine operates on.
func (e *Engine) Group() curve.Group { return e.group }

// Blind draws b uniformly from [1, N-1] and returns (b*P, b).
func (e *Engine) Blind(p curve.Point) (curve.Point, *big.Int, error) {
	b, err := curve.RandomScalar(e.group.ID(), e.rand)
	if err != nil {
		return curve.Point{}, nil, fmt.Errorf("draw blind: %w", err)
	}
	bp, err := e.group.ScalarMult(p, b)
	if err != nil {
		return curve.Point{}, nil, err
	}
	return bp, b, nil
}

// Unblind returns b^-1 * Q. It fails with tokenerr.ErrInvalidScalar when b
// has no inverse mod N.
func Unblind(g curve.Group, b *big.Int, q curve.Point) (curve.Point, error) {
	n := g.Params().Order()
	if b == nil {
		return curve.Point{}, fmt.Errorf("%w: missing blind", tokenerr.ErrInvalidScalar)
	}
	inv := new(big.Int).ModInverse(new(big.Int).Mod(b, n), n)
	if inv == nil {
		return curve.Point{}, fmt.Errorf("%w: blind has no inverse", tokenerr.ErrInvalidScalar)
	}
	return g.ScalarMult(q, inv)
}

// Sign computes x*P. This is the issuer's operation; clients only use it to
// reason about issuer behaviour and in tests.
func Sign(g curve.Group, x *big.Int, p curve.Point) (curve.Point, error) {
	return g.ScalarMult(p, x)
}
