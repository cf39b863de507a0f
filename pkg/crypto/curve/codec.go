package curve

import (
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/alxdavids/cbs-client/pkg/tokenerr"
)

// SEC1 tag bytes.
const (
	TagCompressedEven byte = 0x02
	TagCompressedOdd  byte = 0x03
	TagUncompressed   byte = 0x04
)

// EncodePoint serializes p in SEC1 form. The result is bit-for-bit equal to
// crypto/elliptic's Marshal and MarshalCompressed. An absent point encodes to nil.
func EncodePoint(p Point, compressed bool) []byte {
	if p.IsZero() {
		return nil
	}
	params := table[p.id]
	l := params.byteLen

	if compressed {
		out := make([]byte, 1+l)
		out[0] = TagCompressedEven | byte(p.y.Bit(0))
		p.x.FillBytes(out[1:])
		return out
	}

	out := make([]byte, 1+2*l)
	out[0] = TagUncompressed
	p.x.FillBytes(out[1 : 1+l])
	p.y.FillBytes(out[1+l:])
	return out
}

// DecodePoint parses a SEC1 encoded point on curve id.
//
// Accepted: 0x04||x||y (1+2L bytes) and 0x02/0x03||x (1+L bytes). Anything
// else, including untagged coordinates, is rejected.
func DecodePoint(id ID, b []byte) (Point, error) {
	params, err := lookup(id)
	if err != nil {
		return Point{}, err
	}
	if len(b) == 0 {
		return Point{}, fmt.Errorf("%w: empty encoding", ErrInvalidPoint)
	}
	l := params.byteLen

	switch b[0] {
	case TagUncompressed:
		if len(b) != 1+2*l {
			return Point{}, fmt.Errorf("%w: uncompressed point must be %d bytes, got %d", ErrInvalidPoint, 1+2*l, len(b))
		}
		x := new(big.Int).SetBytes(b[1 : 1+l])
		y := new(big.Int).SetBytes(b[1+l:])
		if !params.isOnCurve(x, y) {
			return Point{}, ErrPointNotOnCurve
		}
		return Point{id: id, x: x, y: y}, nil

	case TagCompressedEven, TagCompressedOdd:
		if len(b) != 1+l {
			return Point{}, fmt.Errorf("%w: compressed point must be %d bytes, got %d", ErrInvalidPoint, 1+l, len(b))
		}
		return Decompress(id, b[1:], b[0])

	default:
		return Point{}, fmt.Errorf("%w: unrecognized tag 0x%02x", ErrInvalidPoint, b[0])
	}
}

// Decompress recovers the point with x coordinate xb whose y parity matches
// tag. Since p ≡ 3 (mod 4), y = rh^((p+1)/4) mod p is a square root of rh
// whenever one exists; the result is checked against the curve equation.
func Decompress(id ID, xb []byte, tag byte) (Point, error) {
	params, err := lookup(id)
	if err != nil {
		return Point{}, err
	}
	if tag != TagCompressedEven && tag != TagCompressedOdd {
		return Point{}, fmt.Errorf("%w: unrecognized tag 0x%02x", ErrInvalidPoint, tag)
	}
	if len(xb) != params.byteLen {
		return Point{}, fmt.Errorf("%w: x coordinate must be %d bytes, got %d", ErrInvalidPoint, params.byteLen, len(xb))
	}

	x := new(big.Int).SetBytes(xb)
	if x.Cmp(params.p) >= 0 {
		return Point{}, ErrPointNotOnCurve
	}

	y := new(big.Int).Exp(params.rhs(x), params.sqrtExp, params.p)
	sign := uint(tag & 1)
	if y.Bit(0) != sign {
		y.Sub(params.p, y)
		y.Mod(y, params.p)
	}

	// rh was a non-residue, or y = 0 cannot carry an odd tag.
	if y.Bit(0) != sign || !params.isOnCurve(x, y) {
		return Point{}, ErrPointNotOnCurve
	}
	return Point{id: id, x: x, y: y}, nil
}

// EncodePointBase64 is EncodePoint followed by standard base64.
func EncodePointBase64(p Point, compressed bool) string {
	return base64.StdEncoding.EncodeToString(EncodePoint(p, compressed))
}

// DecodePointBase64 decodes standard base64 and then a SEC1 point.
func DecodePointBase64(id ID, s string) (Point, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	return DecodePoint(id, b)
}

// EncodeScalar serializes k mod N as a fixed-width big-endian byte string.
func EncodeScalar(id ID, k *big.Int) []byte {
	params, err := lookup(id)
	if err != nil || k == nil {
		return nil
	}
	v := new(big.Int).Mod(k, params.n)
	return v.FillBytes(make([]byte, params.scalarLen))
}

// DecodeScalar parses a fixed-width big-endian scalar. Short, long and
// out-of-range encodings are rejected rather than padded or reduced.
func DecodeScalar(id ID, b []byte) (*big.Int, error) {
	params, err := lookup(id)
	if err != nil {
		return nil, err
	}
	if len(b) != params.scalarLen {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidScalar, params.scalarLen, len(b))
	}
	k := new(big.Int).SetBytes(b)
	if k.Cmp(params.n) >= 0 {
		return nil, ErrInvalidScalar
	}
	return k, nil
}

// EncodeScalarBase64 is EncodeScalar followed by standard base64.
func EncodeScalarBase64(id ID, k *big.Int) string {
	return base64.StdEncoding.EncodeToString(EncodeScalar(id, k))
}

// DecodeScalarBase64 decodes standard base64 and then a fixed-width scalar.
func DecodeScalarBase64(id ID, s string) (*big.Int, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tokenerr.ErrDecode, err)
	}
	return DecodeScalar(id, b)
}
