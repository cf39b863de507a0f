// Package curve provides the elliptic curve layer used by the token protocol:
// a read-only parameter table, an immutable point type, the SEC1 wire codec
// and a pluggable arithmetic backend.
//
// # Supported Curves
//
// Two short Weierstrass curves are supported, both with a field prime
// p ≡ 3 (mod 4) so that square roots are a single exponentiation:
//
//   - P-256 (secp256r1): the curve used by the Privacy Pass issuer. Points
//     are 33 bytes (compressed) or 65 bytes (uncompressed). Scalars are 32 bytes.
//
//   - secp256k1: the Koblitz curve used by Bitcoin and Ethereum. Same sizes.
//
// # Points and Parameters
//
// A Point is a plain value: a curve identifier and two affine coordinates.
// Points never reference their curve parameters; those live in a shared
// table looked up by ID. Every Point handed out by this package is on its
// curve. The point at infinity is not representable, so any operation that
// would produce it fails with ErrIdentityPoint.
//
// # Wire Format
//
// Encodings are fixed-length SEC1:
//
//	uncompressed: 0x04 || x || y
//	compressed:   (0x02 | parity(y)) || x
//
// Decoders reject anything else, including leading-zero-stripped values.
package curve

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/alxdavids/cbs-client/pkg/tokenerr"
)

// ID identifies one of the supported curves.
type ID uint8

const (
	// P256 is NIST P-256 (secp256r1, prime256v1).
	P256 ID = iota + 1
	// Secp256k1 is the SEC2 Koblitz curve.
	Secp256k1
)

// String returns the canonical curve name.
func (id ID) String() string {
	if p, ok := table[id]; ok {
		return p.name
	}
	return fmt.Sprintf("curve(%d)", uint8(id))
}

// Params returns the parameter table entry for the curve.
func (id ID) Params() (*Params, error) {
	return lookup(id)
}

// Group abstracts the arithmetic backend for one curve.
//
// Implementations must only return points that satisfy the curve equation
// and must reject points that belong to a different curve with
// tokenerr.ErrCurveMismatch.
type Group interface {
	// ID returns the curve identifier.
	ID() ID

	// Params returns the shared parameter table entry.
	Params() *Params

	// Generator returns the standard base point.
	Generator() Point

	// ScalarMult computes k*P. k is reduced mod N; k ≡ 0 is rejected.
	ScalarMult(p Point, k *big.Int) (Point, error)

	// ScalarBaseMult computes k*G for the standard generator.
	ScalarBaseMult(k *big.Int) (Point, error)

	// Add computes P + Q.
	Add(p, q Point) (Point, error)
}

var (
	// ErrInvalidPoint indicates a malformed point encoding
	ErrInvalidPoint = fmt.Errorf("%w: invalid point", tokenerr.ErrDecode)

	// ErrPointNotOnCurve indicates coordinates that do not satisfy the curve equation
	ErrPointNotOnCurve = fmt.Errorf("%w: point is not on curve", tokenerr.ErrDecode)

	// ErrInvalidScalar indicates a malformed or out of range scalar
	ErrInvalidScalar = fmt.Errorf("%w: scalar out of range", tokenerr.ErrInvalidScalar)

	// ErrIdentityPoint indicates an operation produced the point at infinity
	ErrIdentityPoint = errors.New("point is identity")

	// ErrUnsupportedCurve indicates an unknown curve identifier or name
	ErrUnsupportedCurve = errors.New("unsupported curve")
)
