// Package client ties the token protocol to its collaborators: it mints and
// verifies tokens through pkg/token, moves requests over a transport, keeps
// signed tokens in a store between issuance and redemption, and redeems them
// bound to a request host and path.
//
// Failures are logged by kind. A response that fails proof verification is
// logged at error level with alert=true, since it means the issuer signed
// with a key other than the pinned one or tried to tag individual tokens.
// Malformed input is logged at warn level.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
	"github.com/alxdavids/cbs-client/pkg/crypto/dleq"
	"github.com/alxdavids/cbs-client/pkg/redeem"
	"github.com/alxdavids/cbs-client/pkg/storage"
	"github.com/alxdavids/cbs-client/pkg/token"
	"github.com/alxdavids/cbs-client/pkg/tokenerr"
	"github.com/alxdavids/cbs-client/pkg/transport"
)

// redeemOK is the issuer's body for an accepted redemption.
var redeemOK = []byte("success")

// ErrRedemptionRejected indicates the issuer answered a redemption with
// anything other than success.
var ErrRedemptionRejected = errors.New("issuer rejected redemption")

// Config configures a Client.
type Config struct {
	Group           curve.Group         // required
	Commitments     dleq.Commitments    // required unless AllowUnverified
	Transport       transport.Transport // required
	Store           storage.TokenStore  // required
	Rand            io.Reader           // defaults to crypto/rand.Reader
	MaxSeedAttempts int
	AllowUnverified bool
	MaxAge          time.Duration // stored tokens older than this are purged; zero keeps them
	Clock           clock.Clock   // defaults to the wall clock
	Logger          *slog.Logger  // defaults to slog.Default()
}

// Client issues and redeems tokens against one issuer.
type Client struct {
	issuance  *token.Issuance
	transport transport.Transport
	store     storage.TokenStore
	epoch     string
	maxAge    time.Duration
	clock     clock.Clock
	logger    *slog.Logger
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Transport == nil {
		return nil, errors.New("client: transport is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("client: store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	is, err := token.New(token.Config{
		Group:           cfg.Group,
		Commitments:     cfg.Commitments,
		Rand:            cfg.Rand,
		MaxSeedAttempts: cfg.MaxSeedAttempts,
		AllowUnverified: cfg.AllowUnverified,
	})
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}

	epoch := storage.Epoch(cfg.Commitments)
	return &Client{
		issuance:  is,
		transport: cfg.Transport,
		store:     cfg.Store,
		epoch:     epoch,
		maxAge:    cfg.MaxAge,
		clock:     cfg.Clock,
		logger:    cfg.Logger.With("curve", cfg.Group.ID().String(), "epoch", epoch),
	}, nil
}

// Epoch returns the store epoch of the pinned commitments.
func (c *Client) Epoch() string { return c.epoch }

// Issue mints n tokens, has the issuer sign them, verifies the batch proof
// and stores the signed tokens. Nothing is stored unless every token is
// accepted. It returns the number of tokens stored.
func (c *Client) Issue(ctx context.Context, n int) (int, error) {
	start := c.clock.Now()

	tokens, err := c.issuance.MintTokens(n)
	if err != nil {
		return 0, fmt.Errorf("mint tokens: %w", err)
	}
	req, err := c.issuance.BuildIssueRequest(tokens)
	if err != nil {
		return 0, fmt.Errorf("build issue request: %w", err)
	}

	resp, err := c.transport.RoundTrip(ctx, req)
	if err != nil {
		c.logger.Warn("issue request failed", "tokens", n, "error", err)
		return 0, fmt.Errorf("issue request: %w", err)
	}

	signed, err := c.issuance.ParseIssueResponse(resp, tokens)
	if err != nil {
		c.logFailure("issue response rejected", err, "tokens", n)
		return 0, err
	}

	now := c.clock.Now()
	records := make([]storage.Record, len(signed))
	for i, st := range signed {
		records[i] = storage.NewRecord(c.epoch, token.NewStorableToken(st), now)
	}
	if err := c.store.Put(records...); err != nil {
		return 0, fmt.Errorf("store tokens: %w", err)
	}

	c.logger.Info("tokens issued",
		"tokens", len(records),
		"latency", c.clock.Since(start))
	return len(records), nil
}

// Redeem spends the oldest stored token on a request to host and path. The
// token is consumed even if the issuer rejects it.
func (c *Client) Redeem(ctx context.Context, host, path string) error {
	start := c.clock.Now()

	if _, err := c.Purge(); err != nil {
		return err
	}

	rec, err := c.store.Pop(c.epoch)
	if err != nil {
		return fmt.Errorf("take token: %w", err)
	}
	log := c.logger.With("token_id", rec.ID, "host", host, "path", path)

	st, err := rec.Token.Decode()
	if err != nil {
		c.logFailure("stored token unusable", err, "token_id", rec.ID)
		return fmt.Errorf("decode stored token: %w", err)
	}

	header, err := redeem.BuildRedeemHeader(c.issuance.Group(), st, host, path)
	if err != nil {
		return fmt.Errorf("build redemption: %w", err)
	}
	req, err := redeem.WrapRedemptionRequest(header, host, path)
	if err != nil {
		return fmt.Errorf("build redemption: %w", err)
	}

	resp, err := c.transport.RoundTrip(ctx, req)
	if err != nil {
		log.Warn("redeem request failed", "error", err)
		return fmt.Errorf("redeem request: %w", err)
	}
	if !bytes.Equal(bytes.TrimSpace(resp), redeemOK) {
		log.Warn("redemption rejected", "response", string(bytes.TrimSpace(resp)))
		return fmt.Errorf("%w: %q", ErrRedemptionRejected, bytes.TrimSpace(resp))
	}

	log.Info("token redeemed", "latency", c.clock.Since(start))
	return nil
}

// Header pops a token and returns its redemption header for host and path
// without contacting the issuer, for callers that attach it to their own
// request.
func (c *Client) Header(host, path string) (string, error) {
	if _, err := c.Purge(); err != nil {
		return "", err
	}

	rec, err := c.store.Pop(c.epoch)
	if err != nil {
		return "", fmt.Errorf("take token: %w", err)
	}
	st, err := rec.Token.Decode()
	if err != nil {
		return "", fmt.Errorf("decode stored token: %w", err)
	}
	return redeem.BuildRedeemHeader(c.issuance.Group(), st, host, path)
}

// Count returns the number of stored tokens for the pinned commitments.
func (c *Client) Count() (int, error) {
	return c.store.Count(c.epoch)
}

// Purge drops stored tokens older than MaxAge. It does nothing when MaxAge
// is zero.
func (c *Client) Purge() (int, error) {
	if c.maxAge <= 0 {
		return 0, nil
	}
	n, err := c.store.PurgeOlderThan(c.clock.Now().Add(-c.maxAge))
	if err != nil {
		return 0, fmt.Errorf("purge tokens: %w", err)
	}
	if n > 0 {
		c.logger.Info("expired tokens purged", "tokens", n)
	}
	return n, nil
}

func (c *Client) logFailure(msg string, err error, args ...any) {
	args = append(args, "error", err)
	switch tokenerr.KindOf(err) {
	case tokenerr.KindVerification:
		c.logger.Error(msg, append(args, "alert", true)...)
	case tokenerr.KindMalformed:
		c.logger.Warn(msg, args...)
	default:
		c.logger.Error(msg, args...)
	}
}
