// Command cbs-issuer runs the in-memory test issuer on HTTP and raw TCP.
//
// It generates a fresh key on every start and writes its commitments to
// -commitments-out so a client can pin them. It keeps no state on disk and
// is meant for local development and interop testing only.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alxdavids/cbs-client/internal/issuertest"
	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
)

func main() {
	var (
		httpAddr       = flag.String("http", ":8080", "HTTP listen address, empty to disable")
		tcpAddr        = flag.String("tcp", ":2416", "TCP listen address, empty to disable")
		curveName      = flag.String("curve", "p256", "Curve to use (p256|secp256k1)")
		commitmentsOut = flag.String("commitments-out", "commitments.json", "Where to write the issuer commitments")
		rateLimit      = flag.Int("rate-limit", 120, "Max HTTP requests per minute per client")
		spentTTL       = flag.Duration("spent-ttl", 0, "How long redeemed tokens are remembered, 0 for ever")
		omitProof      = flag.Bool("omit-proof", false, "Answer issue requests without a batch proof")
		tamperProof    = flag.Bool("tamper-proof", false, "Send batch proofs that do not verify")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	grp, err := curve.FromName(*curveName)
	if err != nil {
		logger.Error("unsupported curve", "curve", *curveName, "error", err)
		os.Exit(1)
	}

	clk := clock.New()
	is, err := issuertest.New(grp, issuertest.Options{
		OmitProof:   *omitProof,
		TamperProof: *tamperProof,
		SpentTTL:    *spentTTL,
		Clock:       clk,
	})
	if err != nil {
		logger.Error("generate issuer key", "error", err)
		os.Exit(1)
	}

	body, err := is.Commitments().Marshal()
	if err != nil {
		logger.Error("encode commitments", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*commitmentsOut, body, 0o644); err != nil {
		logger.Error("write commitments", "path", *commitmentsOut, "error", err)
		os.Exit(1)
	}
	logger.Info("issuer key generated", "curve", grp.ID().String(), "commitments", *commitmentsOut)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var tcpServer *issuertest.TCPServer
	if *tcpAddr != "" {
		ln, err := net.Listen("tcp", *tcpAddr)
		if err != nil {
			logger.Error("listen tcp", "addr", *tcpAddr, "error", err)
			os.Exit(1)
		}
		tcpServer = issuertest.NewTCPServer(is, logger, 10*time.Second)
		go func() {
			logger.Info("tcp issuer listening", "addr", ln.Addr().String())
			if err := tcpServer.Serve(ln); err != nil {
				logger.Error("tcp server", "error", err)
				cancel()
			}
		}()
	}

	var httpServer *http.Server
	if *httpAddr != "" {
		httpServer = &http.Server{
			Addr: *httpAddr,
			Handler: is.Router(logger,
				middleware.RealIP,
				middleware.Logger,
				middleware.Timeout(30*time.Second),
				issuertest.RateLimit(clk, *rateLimit, time.Minute),
			),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("http issuer listening", "addr", *httpAddr)
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server", "error", err)
				cancel()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down issuer", "spent", is.Spent())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
	}
	if tcpServer != nil {
		tcpServer.Close()
	}
}
