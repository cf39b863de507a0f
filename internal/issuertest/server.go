package issuertest

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
	"github.com/alxdavids/cbs-client/pkg/tokenerr"
)

// maxRequest caps request bodies on both front ends.
const maxRequest = 1 << 20

// Router returns the HTTP front end:
//
//	POST /            issue or redeem, by request type
//	GET  /commitments the public (G, H) as JSON
//	GET  /health      liveness
//
// Middleware are applied in the order given, after RequestID and Recoverer.
func (is *Issuer) Router(logger *slog.Logger, mws ...func(http.Handler) http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	for _, mw := range mws {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"ok","service":"cbs-issuer"}`)
	})

	r.Get("/commitments", func(w http.ResponseWriter, r *http.Request) {
		body, err := is.commitments.Marshal()
		if err != nil {
			http.Error(w, "commitments unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	})

	r.Post("/", func(w http.ResponseWriter, r *http.Request) {
		req, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequest))
		if err != nil {
			http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
			return
		}
		resp, err := is.Handle(req)
		if err != nil {
			logger.Warn("issuer rejected request",
				"request_id", middleware.GetReqID(r.Context()),
				"error", err)
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.Write(resp)
	})

	return r
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrDoubleSpend):
		return http.StatusConflict
	case errors.Is(err, tokenerr.ErrDecode), errors.Is(err, curve.ErrInvalidScalar):
		return http.StatusBadRequest
	default:
		return http.StatusForbidden
	}
}

// TCPServer answers the raw socket framing: read the request until the
// client half-closes, write the response, close.
type TCPServer struct {
	issuer  *Issuer
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	ln     net.Listener
	wg     sync.WaitGroup
	closed bool
}

// NewTCPServer returns a server for is. timeout bounds each connection.
func NewTCPServer(is *Issuer, logger *slog.Logger, timeout time.Duration) *TCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TCPServer{issuer: is, logger: logger, timeout: timeout}
}

// Serve accepts connections on ln until Close is called.
func (s *TCPServer) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return net.ErrClosed
	}
	s.ln = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *TCPServer) handle(conn net.Conn) {
	defer conn.Close()
	if s.timeout > 0 {
		conn.SetDeadline(time.Now().Add(s.timeout))
	}

	req, err := io.ReadAll(io.LimitReader(conn, maxRequest))
	if err != nil {
		s.logger.Warn("read request", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}
	resp, err := s.issuer.Handle(req)
	if err != nil {
		s.logger.Warn("issuer rejected request", "remote", conn.RemoteAddr().String(), "error", err)
		resp = []byte("error: " + err.Error())
	}
	conn.Write(resp)
}

// Close stops accepting and waits for open connections to finish.
func (s *TCPServer) Close() error {
	s.mu.Lock()
	s.closed = true
	ln := s.ln
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.wg.Wait()
	return err
}
