package token

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
	"github.com/alxdavids/cbs-client/pkg/crypto/h2c"
	"github.com/alxdavids/cbs-client/pkg/tokenerr"
)

// StorableToken is the flat JSON form of a SignedToken used for persistence.
//
//	curve   curve name
//	token   base64 preimage
//	point   base64 compressed token point
//	blind   hex fixed-width blind
//	signed  base64 uncompressed signed point, still blinded
type StorableToken struct {
	Curve  string `json:"curve"`
	Token  string `json:"token"`
	Point  string `json:"point"`
	Blind  string `json:"blind"`
	Signed string `json:"signed"`
}

// NewStorableToken flattens st.
func NewStorableToken(st SignedToken) StorableToken {
	id := st.Point.Curve()
	return StorableToken{
		Curve:  id.String(),
		Token:  base64.StdEncoding.EncodeToString(st.Preimage),
		Point:  curve.EncodePointBase64(st.Point, true),
		Blind:  hex.EncodeToString(curve.EncodeScalar(id, st.Blind)),
		Signed: curve.EncodePointBase64(st.SignedPoint, false),
	}
}

// Decode rebuilds the SignedToken and checks that the stored point is the
// one derived from the stored preimage.
func (s StorableToken) Decode() (SignedToken, error) {
	grp, err := curve.FromName(s.Curve)
	if err != nil {
		return SignedToken{}, fmt.Errorf("%w: %v", tokenerr.ErrDecode, err)
	}
	id := grp.ID()

	preimage, err := base64.StdEncoding.DecodeString(s.Token)
	if err != nil {
		return SignedToken{}, fmt.Errorf("%w: token preimage: %v", tokenerr.ErrDecode, err)
	}
	point, err := curve.DecodePointBase64(id, s.Point)
	if err != nil {
		return SignedToken{}, fmt.Errorf("token point: %w", err)
	}
	derived, err := h2c.DeriveTokenPoint(id, preimage)
	if err != nil {
		return SignedToken{}, fmt.Errorf("token point: %w", err)
	}
	if !derived.Equal(point) {
		return SignedToken{}, fmt.Errorf("%w: token point does not match preimage", tokenerr.ErrDecode)
	}

	blindBytes, err := hex.DecodeString(s.Blind)
	if err != nil {
		return SignedToken{}, fmt.Errorf("%w: blind hex: %v", tokenerr.ErrDecode, err)
	}
	b, err := curve.DecodeScalar(id, blindBytes)
	if err != nil {
		return SignedToken{}, fmt.Errorf("blind: %w", err)
	}
	signed, err := curve.DecodePointBase64(id, s.Signed)
	if err != nil {
		return SignedToken{}, fmt.Errorf("signed point: %w", err)
	}

	return SignedToken{
		Token:       Token{Preimage: preimage, Point: point},
		Blind:       b,
		SignedPoint: signed,
	}, nil
}
