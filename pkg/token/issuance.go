package token

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/alxdavids/cbs-client/pkg/crypto/blind"
	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
	"github.com/alxdavids/cbs-client/pkg/crypto/dleq"
	"github.com/alxdavids/cbs-client/pkg/crypto/h2c"
	"github.com/alxdavids/cbs-client/pkg/tokenerr"
)

// DefaultMaxSeedAttempts bounds how many seeds are drawn per token before
// minting gives up.
const DefaultMaxSeedAttempts = 8

// ErrInvalidCount indicates a request for zero or a negative number of tokens.
var ErrInvalidCount = errors.New("token count must be positive")

// Config configures an Issuance.
type Config struct {
	// Group is the curve backend. Required.
	Group curve.Group

	// Commitments are the issuer's pinned (G, H). Required unless
	// AllowUnverified is set.
	Commitments dleq.Commitments

	// Rand supplies seeds and blinds. Defaults to crypto/rand.Reader.
	Rand io.Reader

	// MaxSeedAttempts bounds seed draws per token. Defaults to
	// DefaultMaxSeedAttempts.
	MaxSeedAttempts int

	// AllowUnverified accepts responses that carry no batch proof.
	// Responses that do carry one are always verified.
	AllowUnverified bool
}

// Issuance mints tokens and validates issuer responses.
type Issuance struct {
	cfg      Config
	engine   *blind.Engine
	verifier *dleq.Verifier
}

// New validates cfg and returns an Issuance.
func New(cfg Config) (*Issuance, error) {
	if cfg.Group == nil {
		return nil, errors.New("token: group is required")
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	if cfg.MaxSeedAttempts <= 0 {
		cfg.MaxSeedAttempts = DefaultMaxSeedAttempts
	}

	is := &Issuance{cfg: cfg, engine: blind.NewEngine(cfg.Group, cfg.Rand)}
	if cfg.Commitments.IsComplete() {
		v, err := dleq.NewVerifier(cfg.Group, cfg.Commitments)
		if err != nil {
			return nil, err
		}
		is.verifier = v
	} else if !cfg.AllowUnverified {
		return nil, fmt.Errorf("token: commitments are required: %w", tokenerr.ErrProofIncomplete)
	}
	return is, nil
}

// Group returns the curve backend.
func (is *Issuance) Group() curve.Group { return is.cfg.Group }

// MintTokens returns exactly n freshly blinded tokens.
//
// Seeds for which hash-to-curve misses are discarded and redrawn, up to
// MaxSeedAttempts per token; running out returns tokenerr.ErrCurveMiss.
func (is *Issuance) MintTokens(n int) ([]BlindedToken, error) {
	if n <= 0 {
		return nil, ErrInvalidCount
	}
	id := is.cfg.Group.ID()

	tokens := make([]BlindedToken, 0, n)
	for len(tokens) < n {
		tok, err := is.mintOne(id)
		if err != nil {
			return nil, err
		}
		bp, b, err := is.engine.Blind(tok.Point)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, BlindedToken{Token: tok, Blind: b, BlindedPoint: bp})
	}
	return tokens, nil
}

func (is *Issuance) mintOne(id curve.ID) (Token, error) {
	for attempt := 0; attempt < is.cfg.MaxSeedAttempts; attempt++ {
		seed := make([]byte, h2c.SeedLen)
		if _, err := io.ReadFull(is.cfg.Rand, seed); err != nil {
			return Token{}, fmt.Errorf("read seed: %w", err)
		}
		p, err := h2c.DeriveTokenPoint(id, seed)
		if errors.Is(err, tokenerr.ErrCurveMiss) {
			continue
		}
		if err != nil {
			return Token{}, err
		}
		return Token{Preimage: seed, Point: p}, nil
	}
	return Token{}, fmt.Errorf("%w: %d seeds missed", tokenerr.ErrCurveMiss, is.cfg.MaxSeedAttempts)
}

// BuildIssueRequest encodes the blinded points as
//
//	json({"bl_sig_req": base64(json({"type": "Issue", "contents": [...]}))})
//
// with each content a compressed SEC1 point.
func (is *Issuance) BuildIssueRequest(tokens []BlindedToken) ([]byte, error) {
	if len(tokens) == 0 {
		return nil, ErrInvalidCount
	}
	contents := make([][]byte, len(tokens))
	for i, t := range tokens {
		contents[i] = curve.EncodePoint(t.BlindedPoint, true)
	}
	inner, err := EncodeRequest(TypeIssue, contents)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Wrapper{BlindSigReq: inner})
}

// ParseIssueResponse decodes the issuer's response to a request built from
// tokens and verifies its batch proof.
//
// The response is base64(json([signed..., proof])). With n tokens, n+1
// entries means a proof is present; n entries fails with
// tokenerr.ErrProofMissing unless AllowUnverified is set; any other count is
// malformed. Proof failures wrap tokenerr.ErrProofVerification around the
// specific cause. Nothing is returned unless every token is accepted.
func (is *Issuance) ParseIssueResponse(resp []byte, tokens []BlindedToken) ([]SignedToken, error) {
	n := len(tokens)
	if n == 0 {
		return nil, ErrInvalidCount
	}

	raw, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(resp)))
	if err != nil {
		return nil, fmt.Errorf("%w: response base64: %v", tokenerr.ErrDecode, err)
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: response json: %v", tokenerr.ErrDecode, err)
	}

	hasProof := false
	switch len(items) {
	case n + 1:
		hasProof = true
	case n:
		if !is.cfg.AllowUnverified {
			return nil, fmt.Errorf("%w: %w", tokenerr.ErrProofVerification, tokenerr.ErrProofMissing)
		}
	default:
		return nil, fmt.Errorf("%w: response has %d entries for %d tokens", tokenerr.ErrDecode, len(items), n)
	}

	id := is.cfg.Group.ID()
	signed := make([]curve.Point, n)
	for i := 0; i < n; i++ {
		if signed[i], err = curve.DecodePointBase64(id, items[i]); err != nil {
			return nil, fmt.Errorf("signed token %d: %w", i, err)
		}
	}

	// An n+1 entry is a proof even when it is empty, and must verify.
	if hasProof {
		if err := is.verify(items[n], tokens, signed); err != nil {
			return nil, fmt.Errorf("%w: %w", tokenerr.ErrProofVerification, err)
		}
	}

	out := make([]SignedToken, n)
	for i, t := range tokens {
		out[i] = SignedToken{Token: t.Token, Blind: t.Blind, SignedPoint: signed[i]}
	}
	return out, nil
}

func (is *Issuance) verify(proof string, tokens []BlindedToken, signed []curve.Point) error {
	if is.verifier == nil {
		return fmt.Errorf("%w: no commitments configured", tokenerr.ErrCommitmentMismatch)
	}
	bp, err := dleq.ParseBatchProof(is.cfg.Group.ID(), proof)
	if err != nil {
		return err
	}
	return is.verifier.VerifyBatch(bp, blindedPoints(tokens), signed)
}
