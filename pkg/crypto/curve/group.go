package curve

import (
	"fmt"
	"math/big"

	"github.com/alxdavids/cbs-client/pkg/tokenerr"
)

// weierstrass implements Group on top of an elliptic.Curve backend:
// crypto/elliptic for P-256 and btcec's KoblitzCurve for secp256k1.
// Both report the point at infinity as (0, 0).
type weierstrass struct {
	params *Params
}

// NewP256 returns the P-256 group.
func NewP256() Group {
	return &weierstrass{params: table[P256]}
}

// NewSecp256k1 returns the secp256k1 group.
func NewSecp256k1() Group {
	return &weierstrass{params: table[Secp256k1]}
}

// NewGroup returns the group for a curve identifier.
func NewGroup(id ID) (Group, error) {
	params, err := lookup(id)
	if err != nil {
		return nil, err
	}
	return &weierstrass{params: params}, nil
}

func (w *weierstrass) ID() ID { return w.params.id }

func (w *weierstrass) Params() *Params { return w.params }

func (w *weierstrass) Generator() Point {
	return Point{id: w.params.id, x: new(big.Int).Set(w.params.gx), y: new(big.Int).Set(w.params.gy)}
}

// ScalarMult computes k*P
func (w *weierstrass) ScalarMult(p Point, k *big.Int) (Point, error) {
	if err := w.check(p); err != nil {
		return Point{}, err
	}
	kb, err := w.scalarBytes(k)
	if err != nil {
		return Point{}, err
	}
	x, y := w.params.ec.ScalarMult(p.x, p.y, kb)
	return w.affine(x, y)
}

// ScalarBaseMult computes k*G
func (w *weierstrass) ScalarBaseMult(k *big.Int) (Point, error) {
	kb, err := w.scalarBytes(k)
	if err != nil {
		return Point{}, err
	}
	x, y := w.params.ec.ScalarBaseMult(kb)
	return w.affine(x, y)
}

// Add computes P + Q
func (w *weierstrass) Add(p, q Point) (Point, error) {
	if err := w.check(p); err != nil {
		return Point{}, err
	}
	if err := w.check(q); err != nil {
		return Point{}, err
	}
	x, y := w.params.ec.Add(p.x, p.y, q.x, q.y)
	return w.affine(x, y)
}

func (w *weierstrass) check(p Point) error {
	if p.IsZero() {
		return fmt.Errorf("%w: absent point", ErrInvalidPoint)
	}
	if p.id != w.params.id {
		return fmt.Errorf("%w: point on %s, group is %s", tokenerr.ErrCurveMismatch, p.id, w.params.id)
	}
	return nil
}

// scalarBytes reduces k mod N into a fixed-width big-endian slice.
func (w *weierstrass) scalarBytes(k *big.Int) ([]byte, error) {
	if k == nil {
		return nil, ErrInvalidScalar
	}
	v := new(big.Int).Mod(k, w.params.n)
	if v.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero scalar", ErrInvalidScalar)
	}
	return v.FillBytes(make([]byte, w.params.scalarLen)), nil
}

func (w *weierstrass) affine(x, y *big.Int) (Point, error) {
	if x.Sign() == 0 && y.Sign() == 0 {
		return Point{}, ErrIdentityPoint
	}
	if !w.params.isOnCurve(x, y) {
		return Point{}, ErrPointNotOnCurve
	}
	return Point{id: w.params.id, x: x, y: y}, nil
}
