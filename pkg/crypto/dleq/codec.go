package dleq

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
	"github.com/alxdavids/cbs-client/pkg/tokenerr"
)

// BatchProofPrefix is optionally prepended to the JSON body of a batch proof
// before base64 encoding.
const BatchProofPrefix = "batch-proof="

// proofJSON is the wire form of a Proof: base64 uncompressed points and
// base64 fixed-width scalars.
type proofJSON struct {
	G string `json:"G,omitempty"`
	H string `json:"H,omitempty"`
	M string `json:"M,omitempty"`
	Z string `json:"Z,omitempty"`
	R string `json:"R,omitempty"`
	C string `json:"C,omitempty"`
}

// batchProofJSON is the wire form of a BatchProof. P is base64(json(proofJSON)).
type batchProofJSON struct {
	P string   `json:"P,omitempty"`
	M []string `json:"M"`
	Z []string `json:"Z"`
	C []string `json:"C,omitempty"`
}

// commitmentsJSON is the out-of-band commitments file format.
type commitmentsJSON struct {
	G string `json:"G"`
	H string `json:"H"`
}

// ParseBatchProof decodes a base64 batch proof for curve id.
//
// Fields absent from the JSON stay absent so that verification can report
// them as incomplete. Fields that are present but malformed fail with
// tokenerr.ErrDecode.
func ParseBatchProof(id curve.ID, s string) (*BatchProof, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: batch proof base64: %v", tokenerr.ErrDecode, err)
	}
	raw = bytes.TrimPrefix(raw, []byte(BatchProofPrefix))

	var wire batchProofJSON
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: batch proof json: %v", tokenerr.ErrDecode, err)
	}

	bp := &BatchProof{}
	if wire.P != "" {
		p, err := parseProof(id, wire.P)
		if err != nil {
			return nil, err
		}
		bp.P = *p
	}
	if bp.M, err = decodePoints(id, wire.M); err != nil {
		return nil, fmt.Errorf("batch proof M: %w", err)
	}
	if bp.Z, err = decodePoints(id, wire.Z); err != nil {
		return nil, fmt.Errorf("batch proof Z: %w", err)
	}
	for i, c := range wire.C {
		b, err := base64.StdEncoding.DecodeString(c)
		if err != nil {
			return nil, fmt.Errorf("%w: batch proof C[%d]: %v", tokenerr.ErrDecode, i, err)
		}
		bp.C = append(bp.C, b)
	}
	return bp, nil
}

func parseProof(id curve.ID, s string) (*Proof, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: proof base64: %v", tokenerr.ErrDecode, err)
	}
	var wire proofJSON
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: proof json: %v", tokenerr.ErrDecode, err)
	}

	p := &Proof{}
	for _, f := range []struct {
		name string
		enc  string
		dst  *curve.Point
	}{
		{"G", wire.G, &p.G},
		{"H", wire.H, &p.H},
		{"M", wire.M, &p.M},
		{"Z", wire.Z, &p.Z},
	} {
		if f.enc == "" {
			continue
		}
		pt, err := curve.DecodePointBase64(id, f.enc)
		if err != nil {
			return nil, fmt.Errorf("proof %s: %w", f.name, err)
		}
		*f.dst = pt
	}
	for _, f := range []struct {
		name string
		enc  string
		dst  **big.Int
	}{
		{"R", wire.R, &p.R},
		{"C", wire.C, &p.C},
	} {
		if f.enc == "" {
			continue
		}
		k, err := curve.DecodeScalarBase64(id, f.enc)
		if err != nil {
			return nil, fmt.Errorf("proof %s: %w", f.name, err)
		}
		*f.dst = k
	}
	return p, nil
}

func decodePoints(id curve.ID, encs []string) ([]curve.Point, error) {
	if encs == nil {
		return nil, nil
	}
	pts := make([]curve.Point, len(encs))
	for i, e := range encs {
		p, err := curve.DecodePointBase64(id, e)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		pts[i] = p
	}
	return pts, nil
}

func encodePoints(pts []curve.Point) []string {
	out := make([]string, len(pts))
	for i, p := range pts {
		out[i] = curve.EncodePointBase64(p, false)
	}
	return out
}

// Marshal encodes the proof as base64(json) with uncompressed points.
func (p *Proof) Marshal() (string, error) {
	wire := proofJSON{
		G: curve.EncodePointBase64(p.G, false),
		H: curve.EncodePointBase64(p.H, false),
		M: curve.EncodePointBase64(p.M, false),
		Z: curve.EncodePointBase64(p.Z, false),
	}
	if p.R != nil {
		wire.R = curve.EncodeScalarBase64(p.G.Curve(), p.R)
	}
	if p.C != nil {
		wire.C = curve.EncodeScalarBase64(p.G.Curve(), p.C)
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Marshal encodes the batch proof in the form issuers send it:
// base64(BatchProofPrefix || json).
func (bp *BatchProof) Marshal() (string, error) {
	p, err := bp.P.Marshal()
	if err != nil {
		return "", err
	}
	wire := batchProofJSON{
		P: p,
		M: encodePoints(bp.M),
		Z: encodePoints(bp.Z),
	}
	for _, c := range bp.C {
		wire.C = append(wire.C, base64.StdEncoding.EncodeToString(c))
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(append([]byte(BatchProofPrefix), b...)), nil
}

// ParseCommitments decodes the JSON commitments file {"G": ..., "H": ...}
// holding base64 SEC1 points on curve id.
func ParseCommitments(id curve.ID, data []byte) (Commitments, error) {
	var wire commitmentsJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return Commitments{}, fmt.Errorf("%w: commitments json: %v", tokenerr.ErrDecode, err)
	}
	if wire.G == "" || wire.H == "" {
		return Commitments{}, fmt.Errorf("%w: commitments", tokenerr.ErrProofIncomplete)
	}
	g, err := curve.DecodePointBase64(id, wire.G)
	if err != nil {
		return Commitments{}, fmt.Errorf("commitment G: %w", err)
	}
	h, err := curve.DecodePointBase64(id, wire.H)
	if err != nil {
		return Commitments{}, fmt.Errorf("commitment H: %w", err)
	}
	return Commitments{G: g, H: h}, nil
}

// Marshal encodes the commitments as JSON with base64 uncompressed points.
func (c Commitments) Marshal() ([]byte, error) {
	return json.Marshal(commitmentsJSON{
		G: curve.EncodePointBase64(c.G, false),
		H: curve.EncodePointBase64(c.H, false),
	})
}
