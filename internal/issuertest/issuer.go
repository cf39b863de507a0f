// Package issuertest is an in-process issuer for tests and the demo.
//
// It holds a secret key x and commitments (G, H = x*G), signs blinded tokens,
// attaches a batch DLEQ proof and checks redemptions, rejecting a preimage
// that was already spent. It speaks the same wire formats as a Privacy Pass
// issuer but keeps all state in memory and is not hardened for production.
package issuertest

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/alxdavids/cbs-client/pkg/crypto/blind"
	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
	"github.com/alxdavids/cbs-client/pkg/crypto/dleq"
	"github.com/alxdavids/cbs-client/pkg/redeem"
	"github.com/alxdavids/cbs-client/pkg/token"
	"github.com/alxdavids/cbs-client/pkg/tokenerr"
)

// RedeemOK is the body of a successful redemption response.
const RedeemOK = "success"

// ErrDoubleSpend indicates a preimage that was already redeemed.
var ErrDoubleSpend = errors.New("token already spent")

// Options change how the issuer answers. The zero value is well behaved.
type Options struct {
	// OmitProof sends signed points without a batch proof.
	OmitProof bool

	// TamperProof flips a bit of the proof's R before encoding it.
	TamperProof bool

	// SwapSignatures exchanges the first two signed points after proving.
	SwapSignatures bool

	// SpentTTL is how long redeemed preimages are remembered. Zero keeps
	// them forever.
	SpentTTL time.Duration

	// Rand supplies keys and proof nonces. Defaults to crypto/rand.Reader.
	Rand io.Reader

	// Clock drives spent-token expiry. Defaults to the wall clock.
	Clock clock.Clock
}

// Issuer signs and redeems tokens under one key.
type Issuer struct {
	group       curve.Group
	x           *big.Int
	commitments dleq.Commitments
	spent       *SpentSet

	mu   sync.RWMutex
	opts Options
}

// New generates a fresh key on g. G is a random multiple of the generator,
// so the commitments are not tied to the standard base point.
func New(g curve.Group, opts Options) (*Issuer, error) {
	if opts.Rand == nil {
		opts.Rand = rand.Reader
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	k, err := curve.RandomScalar(g.ID(), opts.Rand)
	if err != nil {
		return nil, err
	}
	G, err := g.ScalarBaseMult(k)
	if err != nil {
		return nil, err
	}
	x, err := curve.RandomScalar(g.ID(), opts.Rand)
	if err != nil {
		return nil, err
	}
	return NewWithKey(g, x, G, opts)
}

// NewWithKey returns an issuer with secret x and H = x*G.
func NewWithKey(g curve.Group, x *big.Int, G curve.Point, opts Options) (*Issuer, error) {
	if opts.Rand == nil {
		opts.Rand = rand.Reader
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	H, err := g.ScalarMult(G, x)
	if err != nil {
		return nil, fmt.Errorf("issuer key: %w", err)
	}
	return &Issuer{
		group:       g,
		x:           new(big.Int).Set(x),
		commitments: dleq.Commitments{G: G, H: H},
		opts:        opts,
		spent:       NewSpentSet(opts.Clock, opts.SpentTTL),
	}, nil
}

// Group returns the curve backend.
func (is *Issuer) Group() curve.Group { return is.group }

// Commitments returns the public (G, H).
func (is *Issuer) Commitments() dleq.Commitments { return is.commitments }

// SetOptions replaces the response behaviour, keeping the key and the spent set.
func (is *Issuer) SetOptions(opts Options) {
	is.mu.Lock()
	defer is.mu.Unlock()
	if opts.Rand == nil {
		opts.Rand = is.opts.Rand
	}
	if opts.Clock == nil {
		opts.Clock = is.opts.Clock
	}
	is.opts = opts
}

// Spent returns the number of remembered redemptions.
func (is *Issuer) Spent() int { return is.spent.Size() }

// Handle dispatches a wrapped request on its type.
func (is *Issuer) Handle(req []byte) ([]byte, error) {
	_, inner, err := token.DecodeRequest(req)
	if err != nil {
		return nil, err
	}
	switch inner.Type {
	case token.TypeIssue:
		return is.Issue(req)
	case token.TypeRedeem:
		if err := is.Redeem(req); err != nil {
			return nil, err
		}
		return []byte(RedeemOK), nil
	default:
		return nil, fmt.Errorf("%w: request type %q", tokenerr.ErrDecode, inner.Type)
	}
}

// Issue signs every blinded point of an issue request and returns the
// encoded response.
func (is *Issuer) Issue(req []byte) ([]byte, error) {
	is.mu.RLock()
	opts := is.opts
	is.mu.RUnlock()

	blinded, err := token.ParseIssueRequest(is.group.ID(), req)
	if err != nil {
		return nil, err
	}
	if len(blinded) == 0 {
		return nil, fmt.Errorf("%w: empty issue request", tokenerr.ErrDecode)
	}

	signed := make([]curve.Point, len(blinded))
	for i, p := range blinded {
		if signed[i], err = blind.Sign(is.group, is.x, p); err != nil {
			return nil, fmt.Errorf("sign token %d: %w", i, err)
		}
	}

	var proof string
	if !opts.OmitProof {
		bp, err := dleq.NewBatchProof(is.group, opts.Rand, is.commitments, is.x, blinded, signed)
		if err != nil {
			return nil, err
		}
		if opts.TamperProof {
			bp.P.R = new(big.Int).Xor(bp.P.R, big.NewInt(1))
		}
		if proof, err = bp.Marshal(); err != nil {
			return nil, err
		}
	}

	if opts.SwapSignatures && len(signed) > 1 {
		signed[0], signed[1] = signed[1], signed[0]
	}
	return token.MarshalIssueResponse(signed, proof)
}

// Redeem checks a wrapped redemption request and marks its preimage spent.
func (is *Issuer) Redeem(req []byte) error {
	r, err := redeem.ParseRedemptionRequest(req)
	if err != nil {
		return err
	}
	if err := r.Verify(is.group, is.x); err != nil {
		return err
	}
	if is.spent.Seen(r.Preimage) {
		return ErrDoubleSpend
	}
	return nil
}
