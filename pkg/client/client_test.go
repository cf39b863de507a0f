package client

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alxdavids/cbs-client/internal/issuertest"
	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
	"github.com/alxdavids/cbs-client/pkg/storage"
	"github.com/alxdavids/cbs-client/pkg/tokenerr"
	"github.com/alxdavids/cbs-client/pkg/transport"
)

type harness struct {
	issuer *issuertest.Issuer
	store  *storage.MemoryStore
	clock  *clock.Mock
	logs   *bytes.Buffer
	client *Client
}

// newHarness starts a TCP issuer on grp and a client pinned to its commitments.
func newHarness(t *testing.T, grp curve.Group, maxAge time.Duration) *harness {
	t.Helper()
	is, err := issuertest.New(grp, issuertest.Options{})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := issuertest.NewTCPServer(is, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), time.Second)
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	h := &harness{
		issuer: is,
		store:  storage.NewMemoryStore(),
		clock:  clock.NewMock(),
		logs:   &bytes.Buffer{},
	}
	h.client, err = New(Config{
		Group:       grp,
		Commitments: is.Commitments(),
		Transport:   transport.NewTCPTransport(ln.Addr().String(), time.Second),
		Store:       h.store,
		MaxAge:      maxAge,
		Clock:       h.clock,
		Logger:      slog.New(slog.NewJSONHandler(h.logs, nil)),
	})
	require.NoError(t, err)
	return h
}

// entries decodes the JSON log lines written so far.
func (h *harness) entries(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(h.logs.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestClient_IssueAndRedeem(t *testing.T) {
	for _, grp := range []curve.Group{curve.NewP256(), curve.NewSecp256k1()} {
		t.Run(grp.ID().String(), func(t *testing.T) {
			h := newHarness(t, grp, 0)
			ctx := context.Background()

			n, err := h.client.Issue(ctx, 5)
			require.NoError(t, err)
			assert.Equal(t, 5, n)

			count, err := h.client.Count()
			require.NoError(t, err)
			assert.Equal(t, 5, count)

			require.NoError(t, h.client.Redeem(ctx, "example.com", "/resource"))
			require.NoError(t, h.client.Redeem(ctx, "example.com", "/other"))

			count, err = h.client.Count()
			require.NoError(t, err)
			assert.Equal(t, 3, count)
			assert.Equal(t, 2, h.issuer.Spent())
		})
	}
}

func TestClient_DoubleSpendRejected(t *testing.T) {
	h := newHarness(t, curve.NewP256(), 0)
	ctx := context.Background()

	_, err := h.client.Issue(ctx, 1)
	require.NoError(t, err)

	// Put the same record back under a new ID to spend it twice.
	rec, err := h.store.Pop(h.client.Epoch())
	require.NoError(t, err)
	again := storage.NewRecord(rec.Epoch, rec.Token, rec.CreatedAt)
	require.NoError(t, h.store.Put(*rec, again))

	require.NoError(t, h.client.Redeem(ctx, "example.com", "/"))
	err = h.client.Redeem(ctx, "example.com", "/")
	assert.ErrorIs(t, err, ErrRedemptionRejected)
	assert.ErrorContains(t, err, "already spent")
}

func TestClient_RedeemEmpty(t *testing.T) {
	h := newHarness(t, curve.NewP256(), 0)
	err := h.client.Redeem(context.Background(), "example.com", "/")
	assert.ErrorIs(t, err, storage.ErrEmpty)
}

func TestClient_TamperedProof(t *testing.T) {
	h := newHarness(t, curve.NewP256(), 0)
	h.issuer.SetOptions(issuertest.Options{TamperProof: true})

	_, err := h.client.Issue(context.Background(), 3)
	require.Error(t, err)
	assert.Equal(t, tokenerr.KindVerification, tokenerr.KindOf(err))

	count, err := h.client.Count()
	require.NoError(t, err)
	assert.Zero(t, count, "no token is stored from a rejected batch")

	entries := h.entries(t)
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, "ERROR", last["level"])
	assert.Equal(t, true, last["alert"])
}

func TestClient_ProofMissing(t *testing.T) {
	h := newHarness(t, curve.NewP256(), 0)
	h.issuer.SetOptions(issuertest.Options{OmitProof: true})

	_, err := h.client.Issue(context.Background(), 2)
	assert.ErrorIs(t, err, tokenerr.ErrProofMissing)
}

func TestClient_MalformedResponse(t *testing.T) {
	var logs bytes.Buffer
	c, err := New(Config{
		Group:           curve.NewP256(),
		AllowUnverified: true,
		Transport:       fixedTransport("not base64!"),
		Store:           storage.NewMemoryStore(),
		Logger:          slog.New(slog.NewJSONHandler(&logs, nil)),
	})
	require.NoError(t, err)

	_, err = c.Issue(context.Background(), 2)
	assert.ErrorIs(t, err, tokenerr.ErrDecode)
	assert.Contains(t, logs.String(), `"level":"WARN"`)
	assert.NotContains(t, logs.String(), `"alert"`)
}

func TestClient_MaxAge(t *testing.T) {
	h := newHarness(t, curve.NewP256(), time.Hour)
	ctx := context.Background()

	_, err := h.client.Issue(ctx, 2)
	require.NoError(t, err)

	h.clock.Add(2 * time.Hour)
	_, err = h.client.Issue(ctx, 1)
	require.NoError(t, err)

	// Redeem purges the two expired tokens first.
	require.NoError(t, h.client.Redeem(ctx, "example.com", "/"))
	count, err := h.client.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestClient_Header(t *testing.T) {
	h := newHarness(t, curve.NewP256(), 0)
	_, err := h.client.Issue(context.Background(), 1)
	require.NoError(t, err)

	header, err := h.client.Header("example.com", "/resource")
	require.NoError(t, err)
	assert.NotEmpty(t, header)

	_, err = h.client.Header("example.com", "/resource")
	assert.ErrorIs(t, err, storage.ErrEmpty)
}

func TestClient_HeaderSkipsExpired(t *testing.T) {
	h := newHarness(t, curve.NewP256(), time.Hour)
	_, err := h.client.Issue(context.Background(), 2)
	require.NoError(t, err)

	h.clock.Add(2 * time.Hour)
	_, err = h.client.Header("example.com", "/resource")
	assert.ErrorIs(t, err, storage.ErrEmpty)

	count, err := h.client.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestNew_Rejects(t *testing.T) {
	grp := curve.NewP256()
	store := storage.NewMemoryStore()
	tr := fixedTransport("")

	_, err := New(Config{Group: grp, Store: store, AllowUnverified: true})
	assert.Error(t, err, "transport required")

	_, err = New(Config{Group: grp, Transport: tr, AllowUnverified: true})
	assert.Error(t, err, "store required")

	_, err = New(Config{Group: grp, Transport: tr, Store: store})
	assert.ErrorIs(t, err, tokenerr.ErrProofIncomplete)
}

type fixedTransport string

func (f fixedTransport) RoundTrip(ctx context.Context, req []byte) ([]byte, error) {
	return []byte(f), nil
}
