package redeem

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/alxdavids/cbs-client/pkg/crypto/blind"
	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
	"github.com/alxdavids/cbs-client/pkg/token"
	"github.com/alxdavids/cbs-client/pkg/tokenerr"
)

// signedToken mints one token and signs it under x without a proof exchange.
func signedToken(t *testing.T, grp curve.Group, x *big.Int) token.SignedToken {
	t.Helper()
	is, err := token.New(token.Config{Group: grp, AllowUnverified: true})
	if err != nil {
		t.Fatal(err)
	}
	minted, err := is.MintTokens(1)
	if err != nil {
		t.Fatal(err)
	}
	sp, err := blind.Sign(grp, x, minted[0].BlindedPoint)
	if err != nil {
		t.Fatal(err)
	}
	return token.SignedToken{Token: minted[0].Token, Blind: minted[0].Blind, SignedPoint: sp}
}

func TestRequestBinding(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	items := [][]byte{[]byte("example.com"), []byte("/resource")}
	mac := CreateRequestBinding(key, items)

	if len(mac) != 32 {
		t.Fatalf("binding should be 32 bytes, got %d", len(mac))
	}
	if !CheckRequestBinding(key, items, mac) {
		t.Fatal("binding should verify under the same key and items")
	}

	cases := map[string]struct {
		key   []byte
		items [][]byte
	}{
		"changed item":  {key, [][]byte{[]byte("example.com"), []byte("/other")}},
		"swapped items": {key, [][]byte{items[1], items[0]}},
		"missing item":  {key, items[:1]},
		"other key":     {[]byte("fedcba9876543210fedcba9876543210"), items},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if CheckRequestBinding(tc.key, tc.items, mac) {
				t.Error("binding should not verify")
			}
		})
	}

	truncated := mac[:31]
	if CheckRequestBinding(key, items, truncated) {
		t.Error("truncated binding should not verify")
	}
}

func TestDeriveKey(t *testing.T) {
	grp := curve.NewP256()
	g := grp.Generator()
	preimage := make([]byte, 32)

	k1 := DeriveKey(g, preimage)
	k2 := DeriveKey(g, preimage)
	if string(k1) != string(k2) {
		t.Fatal("DeriveKey should be deterministic")
	}

	preimage[0] = 1
	if string(DeriveKey(g, preimage)) == string(k1) {
		t.Error("changing the preimage should change the key")
	}

	two, _ := grp.ScalarMult(g, big.NewInt(2))
	if string(DeriveKey(two, make([]byte, 32))) == string(k1) {
		t.Error("changing the shared point should change the key")
	}
}

func TestRedeemExampleResource(t *testing.T) {
	grp := curve.NewP256()
	x, _ := curve.RandomScalar(grp.ID(), rand.Reader)
	st := signedToken(t, grp, x)

	header, err := BuildRedeemHeader(grp, st, "example.com", "/resource")
	if err != nil {
		t.Fatalf("BuildRedeemHeader failed: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		t.Fatalf("header should be base64: %v", err)
	}
	var inner token.BlindSignatureRequest
	if err := json.Unmarshal(raw, &inner); err != nil {
		t.Fatalf("header should be JSON: %v", err)
	}
	if inner.Type != "Redeem" || len(inner.Contents) != 2 {
		t.Fatalf("unexpected redeem payload %+v", inner)
	}
	if string(inner.Contents[0]) != string(st.Preimage) {
		t.Error("first content should be the token preimage")
	}

	shared, err := st.Unblind(grp)
	if err != nil {
		t.Fatal(err)
	}
	key := DeriveKey(shared, st.Preimage)
	if !CheckRequestBinding(key, [][]byte{[]byte("example.com"), []byte("/resource")}, inner.Contents[1]) {
		t.Error("binding should verify for the same host and path")
	}
	if CheckRequestBinding(key, [][]byte{[]byte("example.com"), []byte("/other")}, inner.Contents[1]) {
		t.Error("binding should not verify for a different path")
	}
}

func TestRedemptionIssuerSide(t *testing.T) {
	grp := curve.NewP256()
	x, _ := curve.RandomScalar(grp.ID(), rand.Reader)
	st := signedToken(t, grp, x)

	header, err := BuildRedeemHeader(grp, st, "example.com", "/resource")
	if err != nil {
		t.Fatal(err)
	}
	req, err := WrapRedemptionRequest(header, "example.com", "/resource")
	if err != nil {
		t.Fatal(err)
	}

	var wire map[string]string
	if err := json.Unmarshal(req, &wire); err != nil {
		t.Fatalf("wrapper should be JSON: %v", err)
	}
	if wire["bl_sig_req"] != header || wire["host"] != "example.com" || wire["http"] != "/resource" {
		t.Fatalf("unexpected wrapper %v", wire)
	}

	r, err := ParseRedemptionRequest(req)
	if err != nil {
		t.Fatalf("ParseRedemptionRequest failed: %v", err)
	}
	if err := r.Verify(grp, x); err != nil {
		t.Errorf("honest redemption rejected: %v", err)
	}

	t.Run("OtherPath", func(t *testing.T) {
		moved := r
		moved.Path = "/admin"
		if err := moved.Verify(grp, x); !errors.Is(err, ErrBindingMismatch) {
			t.Errorf("expected ErrBindingMismatch, got %v", err)
		}
	})

	t.Run("OtherKey", func(t *testing.T) {
		other, _ := curve.RandomScalar(grp.ID(), rand.Reader)
		if err := r.Verify(grp, other); !errors.Is(err, ErrBindingMismatch) {
			t.Errorf("expected ErrBindingMismatch, got %v", err)
		}
	})

	t.Run("IssueTypeRejected", func(t *testing.T) {
		inner, _ := token.EncodeRequest(token.TypeIssue, [][]byte{{1}, {2}})
		req, _ := WrapRedemptionRequest(inner, "example.com", "/")
		if _, err := ParseRedemptionRequest(req); !errors.Is(err, tokenerr.ErrDecode) {
			t.Errorf("expected ErrDecode, got %v", err)
		}
	})

	t.Run("WrongContentCount", func(t *testing.T) {
		inner, _ := token.EncodeRequest(token.TypeRedeem, [][]byte{st.Preimage})
		req, _ := WrapRedemptionRequest(inner, "example.com", "/")
		if _, err := ParseRedemptionRequest(req); !errors.Is(err, ErrMalformedRedemption) {
			t.Errorf("expected ErrMalformedRedemption, got %v", err)
		}
	})
}

func TestBuildRedeemHeaderZeroBlind(t *testing.T) {
	grp := curve.NewP256()
	x, _ := curve.RandomScalar(grp.ID(), rand.Reader)
	st := signedToken(t, grp, x)
	st.Blind = big.NewInt(0)

	if _, err := BuildRedeemHeader(grp, st, "example.com", "/"); !errors.Is(err, tokenerr.ErrInvalidScalar) {
		t.Errorf("expected ErrInvalidScalar, got %v", err)
	}
}
