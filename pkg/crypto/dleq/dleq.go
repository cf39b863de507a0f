// Package dleq implements batched Chaum-Pedersen proofs of discrete
// logarithm equality, as returned by a Privacy Pass issuer alongside a batch
// of signed tokens.
//
// # Statement
//
// The issuer publishes commitments (G, H) with H = x*G. For a batch of
// blinded points M_i it returns Z_i = x*M_i. The proof convinces the client
// that every Z_i was produced with the same x as H, without revealing x:
//
//	log_G(H) == log_M(Z)
//
// where M and Z are composite points aggregated over the whole batch.
//
// # Aggregation
//
// The per-token arrays are folded into one pair with coefficients derived
// from the batch itself:
//
//	seed = SHA256(enc(G) || enc(H) || enc(M_0) || enc(Z_0) || ... )
//	c_i  = i-th scalar sampled from SHAKE256(seed)
//	M    = sum c_i * M_i
//	Z    = sum c_i * Z_i
//
// Prover and verifier compute the same coefficients, so the verifier can
// recompute M and Z instead of trusting the ones embedded in the proof.
//
// # Proof
//
// With random s, the prover sends (C, R) where
//
//	C = SHA256(enc(G) || enc(H) || enc(M) || enc(Z) || enc(s*G) || enc(s*M)) mod N
//	R = s - C*x mod N
//
// The verifier recomputes A = C*H + R*G and B = C*Z + R*M, which equal s*G
// and s*M for an honest prover, and accepts iff the digest over A and B
// equals C. All encodings are uncompressed SEC1.
package dleq

import (
	"math/big"

	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
)

// Commitments is the issuer's published key commitment (G, H = x*G).
// It is configured out of band and compared exactly against every proof.
type Commitments struct {
	G curve.Point
	H curve.Point
}

// IsComplete reports whether both commitment points are present.
func (c Commitments) IsComplete() bool {
	return !c.G.IsZero() && !c.H.IsZero()
}

// Proof is a single DLEQ proof over the composite points M and Z.
// Absent points are zero Points; absent scalars are nil.
type Proof struct {
	G, H curve.Point
	M, Z curve.Point
	C, R *big.Int
}

// IsComplete reports whether every field of the proof is present.
func (p *Proof) IsComplete() bool {
	return p != nil &&
		!p.G.IsZero() && !p.H.IsZero() && !p.M.IsZero() && !p.Z.IsZero() &&
		p.C != nil && p.R != nil
}

// BatchProof carries the aggregate proof together with the per-token points
// it was computed over. M[i] is the i-th blinded point sent by the client and
// Z[i] the issuer's signature over it.
type BatchProof struct {
	P Proof
	M []curve.Point
	Z []curve.Point

	// C holds the legacy per-token coefficients some issuers still send.
	// They are decoded and kept for logging but never trusted; coefficients
	// are always recomputed.
	C [][]byte
}

// points returns every point the batch proof carries.
func (bp *BatchProof) points() []curve.Point {
	pts := make([]curve.Point, 0, 4+len(bp.M)+len(bp.Z))
	pts = append(pts, bp.P.G, bp.P.H, bp.P.M, bp.P.Z)
	pts = append(pts, bp.M...)
	pts = append(pts, bp.Z...)
	return pts
}
