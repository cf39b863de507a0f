package token

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
	"github.com/alxdavids/cbs-client/pkg/tokenerr"
)

// Request types.
const (
	TypeIssue  = "Issue"
	TypeRedeem = "Redeem"
)

// BlindSignatureRequest is the inner request object. Contents are raw bytes
// and therefore travel as base64 strings in JSON.
type BlindSignatureRequest struct {
	Type     string   `json:"type"`
	Contents [][]byte `json:"contents"`
}

// Wrapper is the outer request object sent to the issuer. Host and HTTP are
// only set on redemption requests.
type Wrapper struct {
	BlindSigReq string `json:"bl_sig_req"`
	Host        string `json:"host,omitempty"`
	HTTP        string `json:"http,omitempty"`
}

// EncodeRequest returns base64(json(BlindSignatureRequest)).
func EncodeRequest(typ string, contents [][]byte) (string, error) {
	b, err := json.Marshal(BlindSignatureRequest{Type: typ, Contents: contents})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodeRequest parses a wrapped request as received by an issuer and
// returns the wrapper and its inner request.
func DecodeRequest(data []byte) (Wrapper, BlindSignatureRequest, error) {
	var w Wrapper
	if err := json.Unmarshal(bytes.TrimSpace(data), &w); err != nil {
		return Wrapper{}, BlindSignatureRequest{}, fmt.Errorf("%w: request wrapper: %v", tokenerr.ErrDecode, err)
	}
	raw, err := base64.StdEncoding.DecodeString(w.BlindSigReq)
	if err != nil {
		return Wrapper{}, BlindSignatureRequest{}, fmt.Errorf("%w: bl_sig_req base64: %v", tokenerr.ErrDecode, err)
	}
	var req BlindSignatureRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return Wrapper{}, BlindSignatureRequest{}, fmt.Errorf("%w: bl_sig_req json: %v", tokenerr.ErrDecode, err)
	}
	return w, req, nil
}

// ParseIssueRequest extracts the blinded points from an issue request.
func ParseIssueRequest(id curve.ID, data []byte) ([]curve.Point, error) {
	_, req, err := DecodeRequest(data)
	if err != nil {
		return nil, err
	}
	if req.Type != TypeIssue {
		return nil, fmt.Errorf("%w: request type %q", tokenerr.ErrDecode, req.Type)
	}
	pts := make([]curve.Point, len(req.Contents))
	for i, c := range req.Contents {
		if pts[i], err = curve.DecodePoint(id, c); err != nil {
			return nil, fmt.Errorf("blinded token %d: %w", i, err)
		}
	}
	return pts, nil
}

// MarshalIssueResponse encodes signed points, and the batch proof when one is
// given, as base64(json([point..., proof])). Points are compressed.
func MarshalIssueResponse(signed []curve.Point, proof string) ([]byte, error) {
	items := make([]string, 0, len(signed)+1)
	for _, p := range signed {
		items = append(items, curve.EncodePointBase64(p, true))
	}
	if proof != "" {
		items = append(items, proof)
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(b)))
	base64.StdEncoding.Encode(out, b)
	return out, nil
}
