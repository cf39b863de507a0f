package curve

import (
	"crypto/elliptic"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Hash-to-curve separators, written out as exact bytes so they cannot drift
// with a text encoding layer. They must match the issuer byte for byte.
var (
	// "1.2.840.10045.3.1.7 point generation seed"
	p256Separator = []byte{
		0x31, 0x2e, 0x32, 0x2e, 0x38, 0x34, 0x30, 0x2e, 0x31, 0x30, 0x30, 0x34, 0x35, 0x2e,
		0x33, 0x2e, 0x31, 0x2e, 0x37, 0x20, 0x70, 0x6f, 0x69, 0x6e, 0x74, 0x20, 0x67, 0x65,
		0x6e, 0x65, 0x72, 0x61, 0x74, 0x69, 0x6f, 0x6e, 0x20, 0x73, 0x65, 0x65, 0x64,
	}

	// "1.3.132.0.10 point generation seed"
	secp256k1Separator = []byte{
		0x31, 0x2e, 0x33, 0x2e, 0x31, 0x33, 0x32, 0x2e, 0x30, 0x2e, 0x31, 0x30, 0x20, 0x70,
		0x6f, 0x69, 0x6e, 0x74, 0x20, 0x67, 0x65, 0x6e, 0x65, 0x72, 0x61, 0x74, 0x69, 0x6f,
		0x6e, 0x20, 0x73, 0x65, 0x65, 0x64,
	}
)

// Params holds the constants of one curve y² = x³ + a·x + b over GF(p).
//
// Entries are shared and read-only; accessors return copies.
type Params struct {
	id        ID
	name      string
	p         *big.Int // field prime
	n         *big.Int // group order
	a         *big.Int
	b         *big.Int
	gx, gy    *big.Int
	byteLen   int // field element width
	scalarLen int // scalar width
	sqrtExp   *big.Int
	separator []byte
	ec        elliptic.Curve
}

var table = map[ID]*Params{
	P256:      newParams(P256, "p256", elliptic.P256(), big.NewInt(-3), p256Separator),
	Secp256k1: newParams(Secp256k1, "secp256k1", btcec.S256(), big.NewInt(0), secp256k1Separator),
}

func newParams(id ID, name string, ec elliptic.Curve, a *big.Int, sep []byte) *Params {
	cp := ec.Params()
	p := new(big.Int).Set(cp.P)

	// y = rh^((p+1)/4) is only a square root when p ≡ 3 (mod 4).
	if new(big.Int).Mod(p, big.NewInt(4)).Int64() != 3 {
		panic(fmt.Sprintf("curve %s: field prime is not 3 mod 4", name))
	}
	sqrtExp := new(big.Int).Add(p, big.NewInt(1))
	sqrtExp.Rsh(sqrtExp, 2)

	return &Params{
		id:        id,
		name:      name,
		p:         p,
		n:         new(big.Int).Set(cp.N),
		a:         new(big.Int).Mod(a, p),
		b:         new(big.Int).Set(cp.B),
		gx:        new(big.Int).Set(cp.Gx),
		gy:        new(big.Int).Set(cp.Gy),
		byteLen:   (p.BitLen() + 7) / 8,
		scalarLen: (cp.N.BitLen() + 7) / 8,
		sqrtExp:   sqrtExp,
		separator: sep,
		ec:        ec,
	}
}

func lookup(id ID) (*Params, error) {
	p, ok := table[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnsupportedCurve, uint8(id))
	}
	return p, nil
}

// ID returns the curve identifier.
func (p *Params) ID() ID { return p.id }

// Name returns the canonical curve name.
func (p *Params) Name() string { return p.name }

// Field returns the field prime p.
func (p *Params) Field() *big.Int { return new(big.Int).Set(p.p) }

// Order returns the group order N.
func (p *Params) Order() *big.Int { return new(big.Int).Set(p.n) }

// ByteLen returns the width of an encoded field element.
func (p *Params) ByteLen() int { return p.byteLen }

// ScalarLen returns the width of an encoded scalar.
func (p *Params) ScalarLen() int { return p.scalarLen }

// Separator returns the hash-to-curve domain separator.
func (p *Params) Separator() []byte {
	return append([]byte(nil), p.separator...)
}

// rhs computes x³ + a·x + b mod p.
func (p *Params) rhs(x *big.Int) *big.Int {
	x3 := new(big.Int).Mul(x, x)
	x3.Mul(x3, x)

	ax := new(big.Int).Mul(p.a, x)

	x3.Add(x3, ax)
	x3.Add(x3, p.b)
	return x3.Mod(x3, p.p)
}

// isOnCurve checks the range of both coordinates and the curve equation.
func (p *Params) isOnCurve(x, y *big.Int) bool {
	if x.Sign() < 0 || x.Cmp(p.p) >= 0 || y.Sign() < 0 || y.Cmp(p.p) >= 0 {
		return false
	}
	y2 := new(big.Int).Mul(y, y)
	y2.Mod(y2, p.p)
	return y2.Cmp(p.rhs(x)) == 0
}
