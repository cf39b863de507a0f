// Package transport carries encoded issuer requests and returns the raw
// responses. Both issuance and redemption use the same shape: one request
// body, one response body.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// DefaultMaxResponse caps response bodies read from an issuer.
const DefaultMaxResponse = 1 << 20

// Transport sends one request to an issuer and returns its response.
type Transport interface {
	RoundTrip(ctx context.Context, req []byte) ([]byte, error)
}

var (
	// ErrResponseTooLarge indicates a response above the configured cap
	ErrResponseTooLarge = errors.New("issuer response too large")

	// ErrStatus indicates a non-success HTTP status from the issuer
	ErrStatus = fmt.Errorf("issuer returned error status")
)
