package dleq

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"
	"math/big"

	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
	"github.com/alxdavids/cbs-client/pkg/tokenerr"
)

// challenge computes SHA256(enc(G)||enc(H)||enc(M)||enc(Z)||enc(A)||enc(B)) mod N.
func challenge(g curve.Group, pts ...curve.Point) *big.Int {
	h := sha256.New()
	for _, p := range pts {
		h.Write(curve.EncodePoint(p, false))
	}
	c := new(big.Int).SetBytes(h.Sum(nil))
	return c.Mod(c, g.Params().Order())
}

// NewProof proves log_G(H) == log_M(Z) for the secret x with H = x*G and
// Z = x*M. The nonce is drawn from r; a nil r selects crypto/rand.Reader.
// The response is R = s - C*x mod N.
func NewProof(g curve.Group, r io.Reader, G, H, M, Z curve.Point, x *big.Int) (*Proof, error) {
	if r == nil {
		r = rand.Reader
	}
	for _, p := range []curve.Point{G, H, M, Z} {
		if p.Curve() != g.ID() {
			return nil, fmt.Errorf("%w: proof point on %s, group is %s", tokenerr.ErrCurveMismatch, p.Curve(), g.ID())
		}
	}

	s, err := curve.RandomScalar(g.ID(), r)
	if err != nil {
		return nil, fmt.Errorf("draw nonce: %w", err)
	}

	// (A, B) = (s*G, s*M)
	A, err := g.ScalarMult(G, s)
	if err != nil {
		return nil, err
	}
	B, err := g.ScalarMult(M, s)
	if err != nil {
		return nil, err
	}

	n := g.Params().Order()
	c := challenge(g, G, H, M, Z, A, B)

	resp := new(big.Int).Mul(c, x) // C*x
	resp.Neg(resp)                 // -C*x
	resp.Add(resp, s)              // s - C*x
	resp.Mod(resp, n)

	return &Proof{G: G, H: H, M: M, Z: Z, C: c, R: resp}, nil
}

// Verify checks the proof equation on its own, without any batch context.
// Use Verifier.VerifyBatch for proofs received from an issuer.
func (p *Proof) Verify(g curve.Group) error {
	if !p.IsComplete() {
		return tokenerr.ErrProofIncomplete
	}

	// ═══════════════════════════════════════════════════════════════════════
	// Recompute A = C*H + R*G and B = C*Z + R*M
	// ═══════════════════════════════════════════════════════════════════════
	// For an honest prover R = s - C*x, so A = s*G and B = s*M.

	A, err := linear(g, p.C, p.H, p.R, p.G)
	if err != nil {
		return fmt.Errorf("%w: compute A: %v", tokenerr.ErrDigestInequality, err)
	}
	B, err := linear(g, p.C, p.Z, p.R, p.M)
	if err != nil {
		return fmt.Errorf("%w: compute B: %v", tokenerr.ErrDigestInequality, err)
	}

	// ═══════════════════════════════════════════════════════════════════════
	// Recompute the challenge and compare in constant time
	// ═══════════════════════════════════════════════════════════════════════

	id := g.ID()
	want := curve.EncodeScalar(id, challenge(g, p.G, p.H, p.M, p.Z, A, B))
	got := curve.EncodeScalar(id, p.C)
	if p.C.Sign() < 0 || p.C.Cmp(g.Params().Order()) >= 0 || subtle.ConstantTimeCompare(want, got) != 1 {
		return tokenerr.ErrDigestInequality
	}
	return nil
}

// NewBatchProof proves that signed[i] = x*blinded[i] for every i under the
// commitments c. This is what an issuer returns alongside a batch of
// signatures.
func NewBatchProof(g curve.Group, r io.Reader, c Commitments, x *big.Int, blinded, signed []curve.Point) (*BatchProof, error) {
	if !c.IsComplete() {
		return nil, fmt.Errorf("%w: commitments", tokenerr.ErrProofIncomplete)
	}
	M, Z, err := Composites(g, c, blinded, signed)
	if err != nil {
		return nil, err
	}
	proof, err := NewProof(g, r, c.G, c.H, M, Z, x)
	if err != nil {
		return nil, err
	}
	return &BatchProof{
		P: *proof,
		M: append([]curve.Point(nil), blinded...),
		Z: append([]curve.Point(nil), signed...),
	}, nil
}
