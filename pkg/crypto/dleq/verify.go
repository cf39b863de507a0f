package dleq

import (
	"fmt"

	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
	"github.com/alxdavids/cbs-client/pkg/tokenerr"
)

// Verifier checks batch proofs against one issuer's commitments.
type Verifier struct {
	group       curve.Group
	commitments Commitments
}

// NewVerifier returns a Verifier bound to the commitments c on group g.
func NewVerifier(g curve.Group, c Commitments) (*Verifier, error) {
	if !c.IsComplete() {
		return nil, fmt.Errorf("%w: commitments", tokenerr.ErrProofIncomplete)
	}
	if c.G.Curve() != g.ID() || c.H.Curve() != g.ID() {
		return nil, fmt.Errorf("%w: commitments are not on %s", tokenerr.ErrCurveMismatch, g.ID())
	}
	return &Verifier{group: g, commitments: c}, nil
}

// Commitments returns the commitments the verifier is bound to.
func (v *Verifier) Commitments() Commitments { return v.commitments }

// VerifyBatch checks that bp proves signed[i] = x*blinded[i] for every i,
// with the x behind the verifier's commitments. A nil error means accept.
// Verification is all or nothing: there is no partial acceptance.
//
// The checks run in a fixed order and the first failure is returned:
//
//  1. completeness             tokenerr.ErrProofIncomplete
//  2. single curve             tokenerr.ErrCurveMismatch
//  3. commitments              tokenerr.ErrCommitmentMismatch
//  4. per-token points         tokenerr.ErrInconsistentProof
//  5. composite points         tokenerr.ErrInconsistentProof
//  6. proof equation           tokenerr.ErrDigestInequality
func (v *Verifier) VerifyBatch(bp *BatchProof, blinded, signed []curve.Point) error {
	// ═══════════════════════════════════════════════════════════════════════════
	// STEP 1: Completeness
	// ═══════════════════════════════════════════════════════════════════════════

	if bp == nil || !bp.P.IsComplete() {
		return fmt.Errorf("%w: missing proof fields", tokenerr.ErrProofIncomplete)
	}
	if bp.M == nil || bp.Z == nil || len(bp.M) != len(bp.Z) || len(bp.M) == 0 {
		return fmt.Errorf("%w: point sets missing or of unequal length", tokenerr.ErrProofIncomplete)
	}
	for i := range bp.M {
		if bp.M[i].IsZero() || bp.Z[i].IsZero() {
			return fmt.Errorf("%w: point set entry %d missing", tokenerr.ErrProofIncomplete, i)
		}
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// STEP 2: Every point must be on the configured curve
	// ═══════════════════════════════════════════════════════════════════════════

	id := v.group.ID()
	for _, p := range bp.points() {
		if p.Curve() != id {
			return fmt.Errorf("%w: proof point on %s, expected %s", tokenerr.ErrCurveMismatch, p.Curve(), id)
		}
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// STEP 3: The proof must be made against the pinned issuer key
	// ═══════════════════════════════════════════════════════════════════════════

	if !bp.P.G.Equal(v.commitments.G) {
		return fmt.Errorf("%w: G differs", tokenerr.ErrCommitmentMismatch)
	}
	if !bp.P.H.Equal(v.commitments.H) {
		return fmt.Errorf("%w: H differs", tokenerr.ErrCommitmentMismatch)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// STEP 4: The proof must cover exactly the points that were exchanged
	// ═══════════════════════════════════════════════════════════════════════════

	if len(blinded) != len(bp.M) || len(signed) != len(bp.Z) {
		return fmt.Errorf("%w: proof covers %d points, exchanged %d blinded and %d signed",
			tokenerr.ErrInconsistentProof, len(bp.M), len(blinded), len(signed))
	}
	for i := range bp.M {
		if !bp.M[i].Equal(blinded[i]) {
			return fmt.Errorf("%w: M[%d] is not the blinded token sent", tokenerr.ErrInconsistentProof, i)
		}
		if !bp.Z[i].Equal(signed[i]) {
			return fmt.Errorf("%w: Z[%d] is not the signed point received", tokenerr.ErrInconsistentProof, i)
		}
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// STEP 5: The composite points must be the fixed combination of the arrays
	// ═══════════════════════════════════════════════════════════════════════════

	M, Z, err := Composites(v.group, v.commitments, bp.M, bp.Z)
	if err != nil {
		return fmt.Errorf("%w: %v", tokenerr.ErrInconsistentProof, err)
	}
	if !bp.P.M.Equal(M) || !bp.P.Z.Equal(Z) {
		return fmt.Errorf("%w: composite points do not match the point sets", tokenerr.ErrInconsistentProof)
	}

	// ═══════════════════════════════════════════════════════════════════════════
	// STEP 6: A = C*H + R*G, B = C*Z + R*M, C' == C
	// ═══════════════════════════════════════════════════════════════════════════

	return bp.P.Verify(v.group)
}
