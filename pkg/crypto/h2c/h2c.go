// Package h2c derives curve points from random seeds by hash-and-increment.
//
// # Algorithm
//
// For ctr = 0..MaxCounter-1:
//
//	d = SHA256(separator || seed || LE32(ctr))
//	try Decompress(d, 0x02), then Decompress(d, 0x03)
//
// The first digest that decompresses to a valid point wins. The separator is
// a per-curve byte constant from the curve parameter table and must match the
// issuer byte for byte.
//
// About half of all x coordinates are on the curve, so ten counters fail with
// probability close to 2^-10 per seed. A miss is reported as
// tokenerr.ErrCurveMiss; callers discard the seed and draw a fresh one.
package h2c

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
	"github.com/alxdavids/cbs-client/pkg/tokenerr"
)

const (
	// SeedLen is the required seed length in bytes.
	SeedLen = 32

	// MaxCounter is the number of counter values tried per seed.
	MaxCounter = 10
)

// ErrSeedLength indicates a seed that is not SeedLen bytes long.
var ErrSeedLength = fmt.Errorf("%w: seed must be %d bytes", tokenerr.ErrDecode, SeedLen)

// DeriveTokenPoint maps a 32 byte seed to a point on curve id.
//
// The result is deterministic in (id, seed). Seeds for which no counter
// yields a point return tokenerr.ErrCurveMiss and must not be retried.
func DeriveTokenPoint(id curve.ID, seed []byte) (curve.Point, error) {
	params, err := id.Params()
	if err != nil {
		return curve.Point{}, err
	}
	if len(seed) != SeedLen {
		return curve.Point{}, ErrSeedLength
	}
	sep := params.Separator()

	var ctr [4]byte
	h := sha256.New()
	for i := uint32(0); i < MaxCounter; i++ {
		binary.LittleEndian.PutUint32(ctr[:], i)

		h.Reset()
		h.Write(sep)
		h.Write(seed)
		h.Write(ctr[:])
		digest := h.Sum(nil)

		for _, tag := range []byte{curve.TagCompressedEven, curve.TagCompressedOdd} {
			if p, err := curve.Decompress(id, digest, tag); err == nil {
				return p, nil
			}
		}
	}
	return curve.Point{}, tokenerr.ErrCurveMiss
}
