package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

// TCPTransport speaks the raw socket framing of the issuer test harness:
// write the request, half-close, read until the issuer closes.
type TCPTransport struct {
	Addr        string
	Timeout     time.Duration // per round trip; zero means only ctx applies
	MaxResponse int64         // defaults to DefaultMaxResponse

	dialer net.Dialer
}

// NewTCPTransport returns a transport for the issuer at addr.
func NewTCPTransport(addr string, timeout time.Duration) *TCPTransport {
	return &TCPTransport{Addr: addr, Timeout: timeout}
}

// RoundTrip sends req and reads the full response
func (t *TCPTransport) RoundTrip(ctx context.Context, req []byte) ([]byte, error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	conn, err := t.dialer.DialContext(ctx, "tcp", t.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial issuer %s: %w", t.Addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, err
		}
	}

	// Unblock reads when ctx is cancelled without a deadline.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := conn.Write(req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err != nil {
			return nil, fmt.Errorf("close write: %w", err)
		}
	}

	return readCapped(ctx, conn, t.maxResponse())
}

func (t *TCPTransport) maxResponse() int64 {
	if t.MaxResponse > 0 {
		return t.MaxResponse
	}
	return DefaultMaxResponse
}

func readCapped(ctx context.Context, r io.Reader, max int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("read response: %w", ctxErr)
		}
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > max {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}
