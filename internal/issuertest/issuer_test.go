package issuertest

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
	"github.com/alxdavids/cbs-client/pkg/crypto/dleq"
	"github.com/alxdavids/cbs-client/pkg/redeem"
	"github.com/alxdavids/cbs-client/pkg/token"
	"github.com/alxdavids/cbs-client/pkg/tokenerr"
	"github.com/alxdavids/cbs-client/pkg/transport"
)

func newIssuer(t *testing.T, opts Options) *Issuer {
	t.Helper()
	is, err := New(curve.NewP256(), opts)
	require.NoError(t, err)
	return is
}

// issue runs one issuance round against is and returns the signed tokens.
func issue(t *testing.T, is *Issuer, n int) ([]token.SignedToken, error) {
	t.Helper()
	iss, err := token.New(token.Config{Group: is.Group(), Commitments: is.Commitments()})
	require.NoError(t, err)

	tokens, err := iss.MintTokens(n)
	require.NoError(t, err)
	req, err := iss.BuildIssueRequest(tokens)
	require.NoError(t, err)

	resp, err := is.Handle(req)
	require.NoError(t, err)
	return iss.ParseIssueResponse(resp, tokens)
}

func redemption(t *testing.T, is *Issuer, st token.SignedToken, host, path string) []byte {
	t.Helper()
	header, err := redeem.BuildRedeemHeader(is.Group(), st, host, path)
	require.NoError(t, err)
	req, err := redeem.WrapRedemptionRequest(header, host, path)
	require.NoError(t, err)
	return req
}

func TestIssuer_IssueAndRedeem(t *testing.T) {
	is := newIssuer(t, Options{})
	assert.False(t, is.Commitments().G.Equal(is.Group().Generator()))

	signed, err := issue(t, is, 4)
	require.NoError(t, err)
	require.Len(t, signed, 4)

	for _, st := range signed {
		resp, err := is.Handle(redemption(t, is, st, "example.com", "/resource"))
		require.NoError(t, err)
		assert.Equal(t, RedeemOK, string(resp))
	}
	assert.Equal(t, 4, is.Spent())
}

func TestIssuer_DoubleSpend(t *testing.T) {
	is := newIssuer(t, Options{})
	signed, err := issue(t, is, 1)
	require.NoError(t, err)

	req := redemption(t, is, signed[0], "example.com", "/a")
	require.NoError(t, is.Redeem(req))

	// A different binding for the same token is still a double spend.
	err = is.Redeem(redemption(t, is, signed[0], "example.com", "/b"))
	assert.ErrorIs(t, err, ErrDoubleSpend)
}

func TestIssuer_RedeemBindingMismatch(t *testing.T) {
	is := newIssuer(t, Options{})
	signed, err := issue(t, is, 1)
	require.NoError(t, err)

	header, err := redeem.BuildRedeemHeader(is.Group(), signed[0], "example.com", "/resource")
	require.NoError(t, err)
	req, err := redeem.WrapRedemptionRequest(header, "example.com", "/other")
	require.NoError(t, err)

	assert.ErrorIs(t, is.Redeem(req), redeem.ErrBindingMismatch)
	assert.Zero(t, is.Spent(), "failed redemptions do not spend the token")
}

func TestIssuer_Options(t *testing.T) {
	t.Run("OmitProof", func(t *testing.T) {
		_, err := issue(t, newIssuer(t, Options{OmitProof: true}), 3)
		assert.ErrorIs(t, err, tokenerr.ErrProofMissing)
	})

	t.Run("TamperProof", func(t *testing.T) {
		_, err := issue(t, newIssuer(t, Options{TamperProof: true}), 3)
		assert.ErrorIs(t, err, tokenerr.ErrProofVerification)
		assert.Equal(t, tokenerr.KindVerification, tokenerr.KindOf(err))
	})

	t.Run("SwapSignatures", func(t *testing.T) {
		_, err := issue(t, newIssuer(t, Options{SwapSignatures: true}), 3)
		assert.ErrorIs(t, err, tokenerr.ErrInconsistentProof)
	})

	t.Run("SetOptions", func(t *testing.T) {
		is := newIssuer(t, Options{OmitProof: true})
		is.SetOptions(Options{})
		_, err := issue(t, is, 2)
		assert.NoError(t, err)
	})
}

func TestIssuer_HandleRejects(t *testing.T) {
	is := newIssuer(t, Options{})

	_, err := is.Handle([]byte("not json"))
	assert.ErrorIs(t, err, tokenerr.ErrDecode)

	req, err := token.EncodeRequest("Refund", nil)
	require.NoError(t, err)
	_, err = is.Handle([]byte(`{"bl_sig_req":"` + req + `"}`))
	assert.ErrorIs(t, err, tokenerr.ErrDecode)

	empty, err := token.EncodeRequest(token.TypeIssue, [][]byte{})
	require.NoError(t, err)
	_, err = is.Handle([]byte(`{"bl_sig_req":"` + empty + `"}`))
	assert.ErrorIs(t, err, tokenerr.ErrDecode)
}

func TestIssuer_SecpKey(t *testing.T) {
	grp := curve.NewSecp256k1()
	is, err := NewWithKey(grp, big.NewInt(2), grp.Generator(), Options{})
	require.NoError(t, err)

	want, err := grp.ScalarBaseMult(big.NewInt(2))
	require.NoError(t, err)
	assert.True(t, is.Commitments().H.Equal(want))
}

func TestSpentSet_TTL(t *testing.T) {
	clk := clock.NewMock()
	s := NewSpentSet(clk, time.Minute)

	assert.False(t, s.Seen([]byte("a")))
	assert.True(t, s.Seen([]byte("a")))

	clk.Add(time.Minute)
	s.Cleanup()
	assert.Zero(t, s.Size())
	assert.False(t, s.Seen([]byte("a")))
}

func TestSpentSet_SweepsOnSeen(t *testing.T) {
	clk := clock.NewMock()
	s := NewSpentSet(clk, time.Minute)

	for i := 0; i < 10; i++ {
		assert.False(t, s.Seen([]byte{byte(i)}))
	}
	assert.Equal(t, 10, s.Size())

	clk.Add(time.Minute)
	assert.False(t, s.Seen([]byte("fresh")))
	assert.Equal(t, 1, s.Size(), "expired entries are dropped without Cleanup")
}

func TestRouter(t *testing.T) {
	is := newIssuer(t, Options{})
	srv := httptest.NewServer(is.Router(nil))
	defer srv.Close()

	t.Run("Health", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Commitments", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/commitments")
		require.NoError(t, err)
		defer resp.Body.Close()

		var buf bytes.Buffer
		_, err = buf.ReadFrom(resp.Body)
		require.NoError(t, err)
		c, err := dleq.ParseCommitments(curve.P256, buf.Bytes())
		require.NoError(t, err)
		assert.True(t, c.H.Equal(is.Commitments().H))
	})

	t.Run("IssueAndRedeem", func(t *testing.T) {
		tr := transport.NewHTTPTransport(srv.URL+"/", time.Second)
		iss, err := token.New(token.Config{Group: is.Group(), Commitments: is.Commitments()})
		require.NoError(t, err)

		tokens, err := iss.MintTokens(2)
		require.NoError(t, err)
		req, err := iss.BuildIssueRequest(tokens)
		require.NoError(t, err)
		resp, err := tr.RoundTrip(context.Background(), req)
		require.NoError(t, err)
		signed, err := iss.ParseIssueResponse(resp, tokens)
		require.NoError(t, err)

		redeemReq := redemption(t, is, signed[0], "example.com", "/")
		resp, err = tr.RoundTrip(context.Background(), redeemReq)
		require.NoError(t, err)
		assert.Equal(t, RedeemOK, string(resp))

		_, err = tr.RoundTrip(context.Background(), redeemReq)
		assert.ErrorIs(t, err, transport.ErrStatus)
		assert.ErrorContains(t, err, "409")
	})

	t.Run("Malformed", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/", "application/json", bytes.NewReader([]byte("{")))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRouter_RateLimit(t *testing.T) {
	clk := clock.NewMock()
	is := newIssuer(t, Options{})
	h := is.Router(nil, RateLimit(clk, 2, time.Minute))

	get := func() int {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, get())
	assert.Equal(t, http.StatusOK, get())
	assert.Equal(t, http.StatusTooManyRequests, get())

	clk.Add(time.Minute)
	assert.Equal(t, http.StatusOK, get())
}

func TestTCPServer(t *testing.T) {
	is := newIssuer(t, Options{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewTCPServer(is, nil, time.Second)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	tr := transport.NewTCPTransport(ln.Addr().String(), time.Second)
	iss, err := token.New(token.Config{Group: is.Group(), Commitments: is.Commitments()})
	require.NoError(t, err)
	tokens, err := iss.MintTokens(3)
	require.NoError(t, err)
	req, err := iss.BuildIssueRequest(tokens)
	require.NoError(t, err)

	resp, err := tr.RoundTrip(context.Background(), req)
	require.NoError(t, err)
	_, err = iss.ParseIssueResponse(resp, tokens)
	require.NoError(t, err)

	resp, err = tr.RoundTrip(context.Background(), []byte("garbage"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(resp, []byte("error: ")))

	require.NoError(t, srv.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Close")
	}
	assert.True(t, errors.Is(srv.Serve(ln), net.ErrClosed))
}
