package curve

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
)

// Point is an affine point on one of the supported curves.
//
// The zero value is the "absent" point and is never on a curve. Coordinates
// are unexported and never modified after construction, so a Point can be
// copied and shared freely.
type Point struct {
	id   ID
	x, y *big.Int
}

// NewPoint validates (x, y) against the curve equation and returns a Point.
func NewPoint(id ID, x, y *big.Int) (Point, error) {
	params, err := lookup(id)
	if err != nil {
		return Point{}, err
	}
	if x == nil || y == nil || !params.isOnCurve(x, y) {
		return Point{}, ErrPointNotOnCurve
	}
	return Point{id: id, x: new(big.Int).Set(x), y: new(big.Int).Set(y)}, nil
}

// Curve returns the identifier of the curve the point lies on.
func (p Point) Curve() ID { return p.id }

// IsZero reports whether p is the absent zero value.
func (p Point) IsZero() bool { return p.id == 0 || p.x == nil || p.y == nil }

// X returns a copy of the x coordinate.
func (p Point) X() *big.Int {
	if p.IsZero() {
		return nil
	}
	return new(big.Int).Set(p.x)
}

// Y returns a copy of the y coordinate.
func (p Point) Y() *big.Int {
	if p.IsZero() {
		return nil
	}
	return new(big.Int).Set(p.y)
}

// Bytes returns the uncompressed SEC1 encoding.
func (p Point) Bytes() []byte {
	return EncodePoint(p, false)
}

// Equal compares two points in constant time over their encodings.
func (p Point) Equal(other Point) bool {
	if p.IsZero() || other.IsZero() {
		return p.IsZero() && other.IsZero()
	}
	if p.id != other.id {
		return false
	}
	return subtle.ConstantTimeCompare(p.Bytes(), other.Bytes()) == 1
}

// String returns the compressed encoding in hex, for logs and test output.
func (p Point) String() string {
	if p.IsZero() {
		return "<absent>"
	}
	return fmt.Sprintf("%s:%s", p.id, hex.EncodeToString(EncodePoint(p, true)))
}
