// Package redeem implements token redemption: deriving the per-token shared
// key and binding a redemption to the request it authorizes.
//
// The client unblinds its signed token to obtain N = x*T, which only it and
// the issuer can compute. Both sides derive
//
//	key     = HMAC-SHA256("hash_derive_key", enc(N) || preimage)
//	binding = HMAC-SHA256(key, "hash_request_binding" || item_0 || item_1 ...)
//
// and the issuer accepts the redemption iff the bindings match. Items are
// the request host and path, in that order.
package redeem

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
	"github.com/alxdavids/cbs-client/pkg/crypto/h2c"
	"github.com/alxdavids/cbs-client/pkg/token"
	"github.com/alxdavids/cbs-client/pkg/tokenerr"
)

var (
	// "hash_derive_key"
	deriveKeyTag = []byte{
		0x68, 0x61, 0x73, 0x68, 0x5f, 0x64, 0x65, 0x72, 0x69, 0x76, 0x65, 0x5f, 0x6b, 0x65, 0x79,
	}

	// "hash_request_binding"
	requestBindingTag = []byte{
		0x68, 0x61, 0x73, 0x68, 0x5f, 0x72, 0x65, 0x71, 0x75, 0x65, 0x73, 0x74, 0x5f, 0x62, 0x69,
		0x6e, 0x64, 0x69, 0x6e, 0x67,
	}
)

var (
	// ErrBindingMismatch indicates a request binding that does not verify
	ErrBindingMismatch = errors.New("request binding does not verify")

	// ErrMalformedRedemption indicates a redeem request without exactly a preimage and a binding
	ErrMalformedRedemption = fmt.Errorf("%w: redeem request must carry a preimage and a binding", tokenerr.ErrDecode)
)

// DeriveKey returns HMAC-SHA256 keyed by "hash_derive_key" over the
// uncompressed encoding of shared followed by the token preimage.
func DeriveKey(shared curve.Point, preimage []byte) []byte {
	h := hmac.New(sha256.New, deriveKeyTag)
	h.Write(curve.EncodePoint(shared, false))
	h.Write(preimage)
	return h.Sum(nil)
}

// CreateRequestBinding returns HMAC-SHA256 keyed by key over
// "hash_request_binding" followed by each item in order.
func CreateRequestBinding(key []byte, items [][]byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(requestBindingTag)
	for _, item := range items {
		h.Write(item)
	}
	return h.Sum(nil)
}

// CheckRequestBinding recomputes the binding and compares it in constant time.
func CheckRequestBinding(key []byte, items [][]byte, mac []byte) bool {
	return hmac.Equal(CreateRequestBinding(key, items), mac)
}

func requestItems(host, path string) [][]byte {
	return [][]byte{[]byte(host), []byte(path)}
}

// BuildRedeemHeader unblinds st, binds it to host and path, and returns
// base64(json({"type": "Redeem", "contents": [preimage, binding]})).
func BuildRedeemHeader(g curve.Group, st token.SignedToken, host, path string) (string, error) {
	shared, err := st.Unblind(g)
	if err != nil {
		return "", fmt.Errorf("unblind token: %w", err)
	}
	key := DeriveKey(shared, st.Preimage)
	binding := CreateRequestBinding(key, requestItems(host, path))
	return token.EncodeRequest(token.TypeRedeem, [][]byte{st.Preimage, binding})
}

// WrapRedemptionRequest returns json({"bl_sig_req": header, "host": host, "http": path}).
func WrapRedemptionRequest(header, host, path string) ([]byte, error) {
	return json.Marshal(token.Wrapper{BlindSigReq: header, Host: host, HTTP: path})
}

// Redemption is a decoded redemption request as seen by an issuer.
type Redemption struct {
	Preimage []byte
	Binding  []byte
	Host     string
	Path     string
}

// ParseRedemptionRequest decodes a wrapped redemption request.
func ParseRedemptionRequest(data []byte) (Redemption, error) {
	w, req, err := token.DecodeRequest(data)
	if err != nil {
		return Redemption{}, err
	}
	if req.Type != token.TypeRedeem {
		return Redemption{}, fmt.Errorf("%w: request type %q", tokenerr.ErrDecode, req.Type)
	}
	if len(req.Contents) != 2 {
		return Redemption{}, ErrMalformedRedemption
	}
	return Redemption{
		Preimage: req.Contents[0],
		Binding:  req.Contents[1],
		Host:     w.Host,
		Path:     w.HTTP,
	}, nil
}

// Verify is the issuer's check of a redemption under its secret key x:
// recompute T from the preimage, derive the shared key from x*T and check
// the binding over host and path.
func (r Redemption) Verify(g curve.Group, x *big.Int) error {
	t, err := h2c.DeriveTokenPoint(g.ID(), r.Preimage)
	if err != nil {
		return fmt.Errorf("token preimage: %w", err)
	}
	shared, err := g.ScalarMult(t, x)
	if err != nil {
		return err
	}
	key := DeriveKey(shared, r.Preimage)
	if !CheckRequestBinding(key, requestItems(r.Host, r.Path), r.Binding) {
		return ErrBindingMismatch
	}
	return nil
}
