// Package tokenerr defines the error taxonomy shared by the token client.
//
// Every failure raised by the cryptographic core wraps exactly one of the
// sentinels below, so callers can branch with errors.Is. The sentinels fall
// into two kinds:
//
//   - Malformed input: bytes that could not be decoded, missing proof
//     fields, non-invertible scalars. Usually a bug or a broken peer.
//   - Verification failure: the input decoded fine but the cryptography did
//     not check out. This may indicate an active adversary (an issuer trying
//     to tag tokens with a different key, or to prove over a different point
//     set), so it should be alerted on separately.
//
// None of these errors are retried by the core.
package tokenerr

import "errors"

var (
	// ErrDecode indicates malformed base64, JSON, point encodings or tag bytes.
	ErrDecode = errors.New("decode error")

	// ErrCurveMismatch indicates a point that does not belong to the configured curve.
	ErrCurveMismatch = errors.New("curve mismatch")

	// ErrCommitmentMismatch indicates proof commitments that differ from the configured (G, H).
	ErrCommitmentMismatch = errors.New("commitment mismatch")

	// ErrProofIncomplete indicates missing proof fields or M/Z arrays of unequal length.
	ErrProofIncomplete = errors.New("proof incomplete")

	// ErrInconsistentProof indicates proof points that disagree with the exchanged tokens.
	ErrInconsistentProof = errors.New("inconsistent proof")

	// ErrDigestInequality indicates a recomputed challenge that differs from the received one.
	ErrDigestInequality = errors.New("digest inequality")

	// ErrInvalidScalar indicates a scalar that is out of range or has no inverse.
	ErrInvalidScalar = errors.New("invalid scalar")

	// ErrCurveMiss indicates hash-to-curve exhausted its counter budget.
	ErrCurveMiss = errors.New("hash to curve failed")

	// ErrProofMissing indicates an issue response without a batch proof.
	ErrProofMissing = errors.New("batch proof missing")

	// ErrProofVerification wraps any failure while verifying an issue response.
	ErrProofVerification = errors.New("batch proof verification failed")
)

// Kind classifies an error for logging and alerting.
type Kind int

const (
	KindUnknown Kind = iota
	KindMalformed
	KindVerification
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindVerification:
		return "verification"
	default:
		return "unknown"
	}
}

var verificationErrors = []error{
	ErrCurveMismatch,
	ErrCommitmentMismatch,
	ErrInconsistentProof,
	ErrDigestInequality,
	ErrProofMissing,
}

var malformedErrors = []error{
	ErrDecode,
	ErrProofIncomplete,
	ErrInvalidScalar,
}

// KindOf reports the kind of err. Verification sentinels take precedence over
// malformed ones when an error chain carries both.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, target := range verificationErrors {
		if errors.Is(err, target) {
			return KindVerification
		}
	}
	for _, target := range malformedErrors {
		if errors.Is(err, target) {
			return KindMalformed
		}
	}
	return KindUnknown
}

// IsVerificationFailure reports whether err signals failed cryptographic verification.
func IsVerificationFailure(err error) bool {
	return KindOf(err) == KindVerification
}
