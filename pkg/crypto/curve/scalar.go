package curve

import (
	"errors"
	"fmt"
	"io"
	"math/big"
)

// maxSampleAttempts bounds rejection sampling. For both curves a single draw
// is rejected with probability below 2^-32.
const maxSampleAttempts = 64

// ErrSamplingFailed indicates the reader kept producing out-of-range values.
var ErrSamplingFailed = errors.New("scalar sampling exhausted attempts")

// ScalarFromReader draws a scalar uniformly from [0, N-1]: read N's byte
// width, mask the bits above N's bit length, retry while the value is >= N.
//
// The procedure is deterministic for a deterministic reader, which is what
// lets prover and verifier derive the same composite coefficients from a
// shared SHAKE256 stream.
func ScalarFromReader(id ID, r io.Reader) (*big.Int, error) {
	params, err := lookup(id)
	if err != nil {
		return nil, err
	}

	bitLen := params.n.BitLen()
	buf := make([]byte, params.scalarLen)
	excess := uint(len(buf)*8 - bitLen)

	for i := 0; i < maxSampleAttempts; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read randomness: %w", err)
		}
		buf[0] &= 0xff >> excess

		k := new(big.Int).SetBytes(buf)
		if k.Cmp(params.n) < 0 {
			return k, nil
		}
	}
	return nil, ErrSamplingFailed
}

// RandomScalar draws a scalar uniformly from [1, N-1]. r must be a
// cryptographically secure source such as crypto/rand.Reader.
func RandomScalar(id ID, r io.Reader) (*big.Int, error) {
	for i := 0; i < maxSampleAttempts; i++ {
		k, err := ScalarFromReader(id, r)
		if err != nil {
			return nil, err
		}
		if k.Sign() != 0 {
			return k, nil
		}
	}
	return nil, ErrSamplingFailed
}
